package cache

import (
	"fmt"
	"os"
	"path/filepath"
)

// TextCache は入力テキストのハッシュをキーにした単純なテキストキャッシュです。
// LLMコラボレーターの応答を cache/llm/<hash>.txt として保存します。
type TextCache struct {
	dir string
}

// NewTextCache は TextCache を作成します。ディレクトリの作成は書き込み時に行います。
func NewTextCache(dir string) *TextCache {
	return &TextCache{dir: dir}
}

func (c *TextCache) path(key string) string {
	return filepath.Join(c.dir, key+".txt")
}

// Get はキーに対応するキャッシュ済みテキストを返します。
func (c *TextCache) Get(key string) (string, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Put はテキストをキャッシュへ保存します。
func (c *TextCache) Put(key, text string) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create text cache directory: %w", err)
	}
	if err := os.WriteFile(c.path(key), []byte(text), 0o640); err != nil {
		return fmt.Errorf("failed to write text cache entry: %w", err)
	}
	return nil
}
