// Package storage はアップロードと成果物のローカルファイル保存を提供します。
package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

// Local はアップロード用と出力用のディレクトリを管理します。
type Local struct {
	uploadDir string
	outputDir string
}

// NewLocal は両ディレクトリを作成して Local を返します。
func NewLocal(uploadDir, outputDir string) (*Local, error) {
	for _, dir := range []string{uploadDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &Local{uploadDir: uploadDir, outputDir: outputDir}, nil
}

// UploadPath はアップロードファイル名に対応する保存先パスを返します。
// パス区切りを含む名前はベース名に切り詰めます。
func (l *Local) UploadPath(name string) string {
	return filepath.Join(l.uploadDir, filepath.Base(name))
}

// OutputAudioPath はアップロードファイル名に対応する変換後音声のパスを返します。
func (l *Local) OutputAudioPath(name string) string {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(l.outputDir, stem+".mp3")
}

// SaveUpload はマルチパートのファイルをアップロードディレクトリへ保存し、
// 保存先パスを返します。同名ファイルは上書きします。
func (l *Local) SaveUpload(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	dstPath := l.UploadPath(file.Filename)
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to store uploaded file: %w", err)
	}
	return dstPath, nil
}
