package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourusername/note-forge/internal/status"
)

// Process は1本の入力に対してパイプライン全体を実行します。
// 段階は 変換 → 文字起こし → 要約 → ノート生成 の順で厳密に直列化され、
// いずれかの失敗は残りの段階とキャッシュ書き込みを打ち切ります。
// 成功時のキャッシュ書き込みはちょうど1回で、失敗時は0回です。
func (s *Service) Process(ctx context.Context, inputPath, outputPath string, progress ProgressReporter) (*PipelineResult, error) {
	// キャッシュ照会。ヒット時は以降の段階を実行せず、進捗レコードにも触れない。
	var cached PipelineResult
	hit, err := s.cache.Lookup(inputPath, &cached)
	if err != nil {
		return nil, newError("INTERNAL_ERROR", "入力ファイルを読み取れませんでした。", err)
	}
	if hit {
		s.logf("cache hit for %s", inputPath)
		reportProgress(progress, string(status.StageCompleted), 100)
		return &cached, nil
	}

	// 変換。完了判定はトランスコーダーの同期的な戻り値で行い、
	// 進捗レコードは外部向けの表示にのみ使う。進捗レコードの
	// begin/tick/complete/fail は契約上トランスコーダー側が書き込む。
	reportProgress(progress, string(status.StageConverting), 5)
	convertCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.ConvertTimeoutMinutes)*time.Minute)
	defer cancel()
	if err := s.collab.Transcoder.Convert(convertCtx, inputPath, outputPath); err != nil {
		return nil, newError("CONVERSION_FAILED", err.Error(), err)
	}

	// 文字起こし
	if err := s.tracker.Advance(outputPath, status.StageTranscribing); err != nil {
		s.logf("failed to advance status for %s: %v", outputPath, err)
	}
	reportProgress(progress, string(status.StageTranscribing), 40)
	transcript, err := s.collab.Transcriber.Transcribe(ctx, outputPath)
	if err != nil {
		return nil, s.failStage(outputPath, "TRANSCRIPTION_FAILED", err)
	}

	// 要約。タイトルは出力ファイル名の拡張子を除いた部分。
	if err := s.tracker.Advance(outputPath, status.StageSummarizing); err != nil {
		s.logf("failed to advance status for %s: %v", outputPath, err)
	}
	reportProgress(progress, string(status.StageSummarizing), 70)
	title := titleFromOutputPath(outputPath)
	summary, err := s.collab.Summarizer.Summarize(ctx, title, transcript.Text)
	if err != nil {
		return nil, s.failStage(outputPath, "SUMMARY_FAILED", err)
	}

	// ノート生成。要約と文字起こしの結合テキストを渡す。
	reportProgress(progress, string(status.StageSummarizing), 85)
	notes, err := s.collab.Notes.GenerateNotes(ctx, combineForNotes(summary, transcript.Text))
	if err != nil {
		return nil, s.failStage(outputPath, "NOTES_FAILED", err)
	}

	result := &PipelineResult{
		Message:    "Processing successful",
		AudioPath:  outputPath,
		Transcript: *transcript,
		Summary:    summary,
		Notes:      notes,
		Status:     StatusCompleted,
	}

	if err := s.tracker.Complete(outputPath); err != nil {
		s.logf("failed to mark status completed for %s: %v", outputPath, err)
	}
	if err := s.cache.Store(inputPath, result); err != nil {
		// キャッシュ書き込みの失敗は結果そのものを損なわない
		s.logf("failed to store cache for %s: %v", inputPath, err)
	}
	reportProgress(progress, string(status.StageCompleted), 100)
	return result, nil
}

// failStage は進捗レコードを失敗状態にしてから構造化エラーを返します。
func (s *Service) failStage(key, code string, err error) error {
	if ferr := s.tracker.Fail(key, err.Error()); ferr != nil {
		s.logf("failed to mark status failed for %s: %v", key, ferr)
	}
	return newError(code, err.Error(), err)
}

func titleFromOutputPath(outputPath string) string {
	base := filepath.Base(outputPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func combineForNotes(summary, transcriptText string) string {
	return fmt.Sprintf("Summary: %s \n\n\nNotes:\n%s", summary, transcriptText)
}
