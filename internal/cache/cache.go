// Package cache はコンテンツアドレス方式のパイプライン結果キャッシュを提供します。
// ファイル内容のハッシュをキーとするため、同一内容のファイルは名前が違っても
// 同じエントリに解決され、同名で内容が変わったファイルは別エントリになります。
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const indexFilename = "cache_index.json"

// Entry はキャッシュインデックスの1件を表します。
type Entry struct {
	OriginalFile string  `json:"original_file"`
	CacheFile    string  `json:"cache_file"`
	Timestamp    float64 `json:"timestamp"`
}

// Cache はフィンガープリントからレコードファイルへの索引を管理します。
// インデックスとレコード本体は別ファイルで、レコードが欠けたエントリは
// 読み取り時に不在として扱われます（自己修復）。
type Cache struct {
	dir       string
	indexPath string

	mu    sync.Mutex
	index map[string]Entry
}

// New は指定ディレクトリ配下にキャッシュを構築し、既存のインデックスを読み込みます。
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{
		dir:       dir,
		indexPath: filepath.Join(dir, indexFilename),
		index:     map[string]Entry{},
	}
	if err := c.loadIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) loadIndex() error {
	data, err := os.ReadFile(c.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache index: %w", err)
	}
	if err := json.Unmarshal(data, &c.index); err != nil {
		return fmt.Errorf("failed to parse cache index: %w", err)
	}
	return nil
}

// saveIndexLocked はインデックスをディスクへ書き出します。呼び出し側が mu を保持します。
func (c *Cache) saveIndexLocked() error {
	payload, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.indexPath, payload, 0o640); err != nil {
		return fmt.Errorf("failed to write cache index: %w", err)
	}
	return nil
}

func (c *Cache) recordPath(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".json")
}

// Lookup はファイル内容に対応するキャッシュレコードを dest に読み込みます。
// インデックスエントリとレコードファイルの両方が存在する場合のみヒットです。
// レコードファイルが手動削除されていた場合は単なるミスとして扱います。
func (c *Cache) Lookup(filePath string, dest any) (bool, error) {
	fingerprint, err := Fingerprint(filePath)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	_, ok := c.index[fingerprint]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}

	data, err := os.ReadFile(c.recordPath(fingerprint))
	if err != nil {
		// インデックスだけ残っている状態はミス扱い
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, nil
	}
	return true, nil
}

// Store はレコードを書き込んでからインデックスを更新し、ディスクへ反映します。
// 同一プロセス内の後続 Lookup からはこの順序により不可分に見えます。
func (c *Cache) Store(filePath string, record any) error {
	fingerprint, err := Fingerprint(filePath)
	if err != nil {
		return err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	recordPath := c.recordPath(fingerprint)
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache record: %w", err)
	}
	if err := os.WriteFile(recordPath, payload, 0o640); err != nil {
		return fmt.Errorf("failed to write cache record: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.index[fingerprint] = Entry{
		OriginalFile: filePath,
		CacheFile:    recordPath,
		Timestamp:    float64(info.ModTime().UnixNano()) / 1e9,
	}
	return c.saveIndexLocked()
}

// IsValid はエントリとレコードが存在し、かつ元ファイルの更新時刻が
// キャッシュ書き込み時点以前であるかを返します。更新時刻の比較は
// ハッシュによる同一性検査の上に重ねた安価な鮮度ヒューリスティックです。
func (c *Cache) IsValid(filePath string) bool {
	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}

	fingerprint, err := Fingerprint(filePath)
	if err != nil {
		return false
	}

	c.mu.Lock()
	entry, ok := c.index[fingerprint]
	c.mu.Unlock()
	if !ok {
		return false
	}

	if _, err := os.Stat(c.recordPath(fingerprint)); err != nil {
		return false
	}
	return float64(info.ModTime().UnixNano())/1e9 <= entry.Timestamp
}
