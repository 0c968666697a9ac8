package status

import (
	"fmt"
	"os"
	"path/filepath"
)

const statusFileSuffix = ".status"

// FileStore はキー（出力パス）の隣に <key>.status ファイルとして値を保存します。
type FileStore struct{}

// NewFileStore は FileStore を作成します。
func NewFileStore() *FileStore {
	return &FileStore{}
}

func (s *FileStore) path(key string) string {
	return key + statusFileSuffix
}

// Put は値をステータスファイルへ書き込みます。部分更新は行いません。
func (s *FileStore) Put(key string, value []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path(key)), 0o755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}
	if err := os.WriteFile(s.path(key), value, 0o640); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return nil
}

// Get はステータスファイルの内容を返します。ファイルがなければ ok=false です。
func (s *FileStore) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}
