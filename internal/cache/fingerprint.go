package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// hashChunkSize はハッシュ計算時の読み込みバッファサイズです。
// ファイル全体をメモリに載せずにストリーム処理します。
const hashChunkSize = 4096

// Fingerprint はファイルのバイト内容のSHA-256ハッシュ（16進文字列）を返します。
// ファイル名やメタデータには依存せず、内容のみで決まります。
func Fingerprint(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(hasher, file, buf); err != nil {
		return "", fmt.Errorf("failed to read file for hashing: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// TextKey はテキストのSHA-256ハッシュ（16進文字列）を返します。
// LLM応答キャッシュのキーとして使用します。
func TextKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
