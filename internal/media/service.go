// Package media は動画アップロードから要約ノート生成までのパイプラインを提供します。
// 変換・文字起こし・要約・ノート生成は狭い契約を持つコラボレーターとして注入され、
// このパッケージ自身はキャッシュ照会、段階の順序付け、進捗レコードの更新を担います。
package media

import (
	"context"
	"errors"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/yourusername/note-forge/internal/config"
	"github.com/yourusername/note-forge/internal/status"
	"github.com/yourusername/note-forge/internal/storage"
)

// Transcoder は入力メディアを音声へ変換するコラボレーターです。
// 変換中は出力パスをキーとして進捗レコードの begin/tick/complete/fail を
// 書き込むことが契約に含まれます。
type Transcoder interface {
	Convert(ctx context.Context, inputPath, outputPath string) error
}

// Transcriber は音声ファイルを文字起こしするコラボレーターです。
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Transcript, error)
}

// Summarizer はタイトルと本文から短い要約を生成するコラボレーターです。
type Summarizer interface {
	Summarize(ctx context.Context, title, text string) (string, error)
}

// NoteGenerator は結合テキストから構造化ノートを生成するコラボレーターです。
type NoteGenerator interface {
	GenerateNotes(ctx context.Context, text string) (string, error)
}

// ResultCache はコンテンツアドレス方式の結果キャッシュです。
type ResultCache interface {
	Lookup(filePath string, dest any) (bool, error)
	Store(filePath string, record any) error
	IsValid(filePath string) bool
}

// Collaborators はパイプラインの外部コラボレーター一式です。
type Collaborators struct {
	Transcoder  Transcoder
	Transcriber Transcriber
	Summarizer  Summarizer
	Notes       NoteGenerator
}

// Service はパイプラインの組み立てと実行を担います。
// 永続状態は持たず、キャッシュと進捗トラッカーを通してのみ読み書きします。
type Service struct {
	cfg     *config.Config
	store   *storage.Local
	cache   ResultCache
	tracker *status.Tracker
	collab  Collaborators
	logger  *log.Logger
}

// NewService は Service を初期化します。
func NewService(cfg *config.Config, store *storage.Local, cache ResultCache, tracker *status.Tracker, collab Collaborators, logger *log.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if store == nil {
		return nil, errors.New("storage is nil")
	}
	if cache == nil {
		return nil, errors.New("cache is nil")
	}
	if tracker == nil {
		return nil, errors.New("tracker is nil")
	}
	if collab.Transcoder == nil || collab.Transcriber == nil || collab.Summarizer == nil || collab.Notes == nil {
		return nil, errors.New("all collaborators are required")
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		cache:   cache,
		tracker: tracker,
		collab:  collab,
		logger:  logger,
	}, nil
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// SaveUpload はマルチパートの動画ファイルを検証して保存します。
func (s *Service) SaveUpload(ctx context.Context, file *multipart.FileHeader) (*Upload, error) {
	if file == nil {
		return nil, newError("INVALID_INPUT", "動画ファイルをアップロードしてください。", nil)
	}
	if strings.TrimSpace(file.Filename) == "" {
		return nil, newError("INVALID_INPUT", "ファイル名が空です。", nil)
	}
	if s.cfg.MaxFileSize > 0 && file.Size > s.cfg.MaxFileSize {
		return nil, newError("LIMIT_EXCEEDED", "ファイルサイズが上限を超えています。", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.store.SaveUpload(file)
	if err != nil {
		return nil, newError("INTERNAL_ERROR", "アップロードの保存に失敗しました。", err)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, newError("INTERNAL_ERROR", "アップロードの検査に失敗しました。", err)
	}
	if !strings.HasPrefix(mtype.String(), "video/") && !strings.HasPrefix(mtype.String(), "audio/") {
		_ = os.Remove(path)
		return nil, newError("INVALID_INPUT", "動画または音声ファイルのみアップロードできます。", nil)
	}

	return &Upload{
		Filename: filepath.Base(file.Filename),
		Path:     path,
		Size:     file.Size,
	}, nil
}

// RunUpload は保存済みアップロードに対してパイプラインを実行します。
// 同期処理と非同期ジョブの両方がこの入口を使います。
func (s *Service) RunUpload(ctx context.Context, filename string, progress ProgressReporter) (*PipelineResult, error) {
	inputPath := s.store.UploadPath(filename)
	if _, err := os.Stat(inputPath); err != nil {
		return nil, newError("INVALID_INPUT", "アップロードされたファイルが見つかりません。", err)
	}
	return s.Process(ctx, inputPath, s.store.OutputAudioPath(filename), progress)
}

// JobStatus はアップロードファイル名に対する現在状態を解決します。
// 解決順: 入力の存在 → キャッシュヒット → 進捗レコード → pending。
// 入力が削除済みの場合はキャッシュ済みでも not_found になる点は既知の挙動です。
func (s *Service) JobStatus(filename string) *StatusResponse {
	inputPath := s.store.UploadPath(filename)
	if _, err := os.Stat(inputPath); err != nil {
		return &StatusResponse{Status: StatusNotFound}
	}

	if s.cache.IsValid(inputPath) {
		return &StatusResponse{Status: StatusCompleted, Progress: 100, Step: string(status.StageCompleted)}
	}

	if record, ok := s.tracker.Read(s.store.OutputAudioPath(filename)); ok {
		return statusResponseFromRecord(record)
	}

	return &StatusResponse{Status: StatusPending, Progress: 0}
}

// statusResponseFromRecord は進捗レコードを応答へ変換します。
// 未知の段階値もそのまま step へ通します。
func statusResponseFromRecord(record *status.Record) *StatusResponse {
	switch record.Status {
	case status.StageCompleted:
		return &StatusResponse{Status: StatusCompleted, Progress: 100, Step: string(status.StageCompleted)}
	case status.StageError:
		return &StatusResponse{
			Status:   StatusError,
			Progress: record.Progress,
			Step:     string(status.StageError),
			Error:    record.Error,
		}
	default:
		return &StatusResponse{
			Status:   StatusProcessing,
			Progress: record.Progress,
			Step:     string(record.Status),
		}
	}
}
