// Package transcribe は whisper.cpp による文字起こしコラボレーターを提供します。
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/yourusername/note-forge/internal/media"
)

// commandResult は外部コマンド実行の結果です。
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner はテスト容易性のためにプロセス実行を抽象化します。
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner は os/exec でコマンドを実行します。
type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// Whisper は whisper.cpp CLI を呼び出すトランスクライバーです。
type Whisper struct {
	binPath   string
	modelPath string
	runner    commandRunner
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	readFile  func(name string) ([]byte, error)
}

// NewWhisper は Whisper トランスクライバーを作成します。
func NewWhisper(binPath, modelPath string) *Whisper {
	return &Whisper{
		binPath:   binPath,
		modelPath: modelPath,
		runner:    &execRunner{},
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		readFile:  os.ReadFile,
	}
}

// Transcribe は音声ファイルを文字起こしし、本文と時間揃え済み区間を返します。
func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (*media.Transcript, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("cannot access audio file %s: %w", audioPath, err)
	}

	tempDir, err := w.mkdirTemp("", "note-forge-whisper-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary workspace: %w", err)
	}
	defer func() {
		_ = w.removeAll(tempDir)
	}()

	outputBase := filepath.Join(tempDir, "transcript")
	args := buildWhisperArgs(w.modelPath, audioPath, outputBase)

	if result, err := w.runner.Run(ctx, w.binPath, args...); err != nil {
		return nil, fmt.Errorf("whisper transcription failed (exit=%d): %s: %w",
			result.ExitCode, strings.TrimSpace(result.Stderr), err)
	}

	payload, err := w.readFile(outputBase + ".json")
	if err != nil {
		return nil, fmt.Errorf("whisper completed but JSON output is missing: %w", err)
	}
	return parseWhisperJSON(payload)
}

// buildWhisperArgs は whisper.cpp のJSON出力付きCLI引数を組み立てます。
func buildWhisperArgs(modelPath, audioPath, outputBase string) []string {
	return []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outputBase,
		"-oj",
		"-np",
	}
}

// whisperOutput は whisper.cpp の -oj 出力の必要部分です。
type whisperOutput struct {
	Transcription []struct {
		Text    string `json:"text"`
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
	} `json:"transcription"`
}

func parseWhisperJSON(payload []byte) (*media.Transcript, error) {
	var output whisperOutput
	if err := json.Unmarshal(payload, &output); err != nil {
		return nil, fmt.Errorf("failed to parse whisper JSON output: %w", err)
	}

	transcript := &media.Transcript{
		Segments: make([]media.Segment, 0, len(output.Transcription)),
	}
	var builder strings.Builder
	for i, segment := range output.Transcription {
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		builder.WriteString(segment.Text)
		transcript.Segments = append(transcript.Segments, media.Segment{
			ID:    i,
			Text:  text,
			Start: float64(segment.Offsets.From) / 1000,
			End:   float64(segment.Offsets.To) / 1000,
		})
	}
	transcript.Text = strings.TrimSpace(builder.String())
	return transcript, nil
}
