// Package transcode は ffmpeg による音声変換コラボレーターを提供します。
// 変換中は出力パスをキーとして進捗レコードを書き込みます。進捗は
// ffmpeg の -progress 出力を ffprobe で測った全体時間と突き合わせて求めます。
package transcode

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/yourusername/note-forge/internal/status"
)

// FFmpeg は ffmpeg / ffprobe を呼び出すトランスコーダーです。
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	tracker     *status.Tracker
	logger      *log.Logger
}

// NewFFmpeg は FFmpeg トランスコーダーを作成します。
func NewFFmpeg(ffmpegPath, ffprobePath string, tracker *status.Tracker, logger *log.Logger) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		tracker:     tracker,
		logger:      logger,
	}
}

func (f *FFmpeg) logf(format string, args ...any) {
	if f.logger != nil {
		f.logger.Printf(format, args...)
	}
}

// Convert は入力メディアをMP3へ変換します。完了はこの関数の戻り値で判定され、
// 進捗レコードは外部向けの表示専用です。
func (f *FFmpeg) Convert(ctx context.Context, inputPath, outputPath string) error {
	if err := f.tracker.Begin(outputPath); err != nil {
		f.logf("failed to begin status record for %s: %v", outputPath, err)
	}

	// 全体時間が測れない場合は途中の進捗なしで変換だけ行う
	duration, err := f.probeDuration(ctx, inputPath)
	if err != nil {
		f.logf("ffprobe duration failed for %s: %v", inputPath, err)
		duration = 0
	}

	args := buildFFmpegArgs(inputPath, outputPath)
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return f.fail(outputPath, fmt.Sprintf("ffmpeg stdout pipe failed: %v", err), err)
	}

	if err := cmd.Start(); err != nil {
		return f.fail(outputPath, fmt.Sprintf("ffmpeg failed to start: %v", err), err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if percent, ok := parseProgressLine(scanner.Text(), duration); ok {
			if err := f.tracker.Tick(outputPath, percent); err != nil {
				f.logf("failed to tick status record for %s: %v", outputPath, err)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		message := fmt.Sprintf("ffmpeg conversion failed: %s", lastStderrLine(stderr.String()))
		return f.fail(outputPath, message, err)
	}

	if _, err := os.Stat(outputPath); err != nil {
		message := "ffmpeg completed but output file is missing"
		return f.fail(outputPath, message, err)
	}

	if err := f.tracker.Complete(outputPath); err != nil {
		f.logf("failed to complete status record for %s: %v", outputPath, err)
	}
	return nil
}

func (f *FFmpeg) fail(outputPath, message string, cause error) error {
	if err := f.tracker.Fail(outputPath, message); err != nil {
		f.logf("failed to write error status record for %s: %v", outputPath, err)
	}
	if cause != nil {
		return fmt.Errorf("%s: %w", message, cause)
	}
	return fmt.Errorf("%s", message)
}

// probeDuration は入力メディアの全体時間（秒）を ffprobe で取得します。
func (f *FFmpeg) probeDuration(ctx context.Context, inputPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseDuration(string(out))
}

func parseDuration(raw string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q: %w", strings.TrimSpace(raw), err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("non-positive duration: %f", value)
	}
	return value, nil
}

// buildFFmpegArgs は進捗を標準出力へ流すMP3変換のCLI引数を組み立てます。
func buildFFmpegArgs(inputPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ar", "44100",
		"-ac", "2",
		"-b:a", "192k",
		"-f", "mp3",
		"-progress", "pipe:1",
		"-nostats",
		outputPath,
	}
}

// parseProgressLine は ffmpeg の -progress 出力1行を進捗率へ変換します。
// out_time_us / out_time_ms はいずれもマイクロ秒単位です。
func parseProgressLine(line string, totalSeconds float64) (int, bool) {
	line = strings.TrimSpace(line)
	if line == "progress=end" {
		return 100, true
	}

	key, value, found := strings.Cut(line, "=")
	if !found {
		return 0, false
	}
	if key != "out_time_us" && key != "out_time_ms" {
		return 0, false
	}
	if totalSeconds <= 0 {
		return 0, false
	}

	micros, err := strconv.ParseInt(value, 10, 64)
	if err != nil || micros < 0 {
		return 0, false
	}
	percent := int(float64(micros) / 1e6 / totalSeconds * 100)
	if percent > 100 {
		percent = 100
	}
	return percent, true
}

func lastStderrLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "unknown error"
}
