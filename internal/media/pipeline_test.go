package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yourusername/note-forge/internal/cache"
	"github.com/yourusername/note-forge/internal/config"
	"github.com/yourusername/note-forge/internal/status"
	"github.com/yourusername/note-forge/internal/storage"
)

type stubTranscoder struct {
	tracker *status.Tracker
	calls   int
	fail    bool
}

func (s *stubTranscoder) Convert(ctx context.Context, inputPath, outputPath string) error {
	s.calls++
	if s.fail {
		_ = s.tracker.Fail(outputPath, "ffmpeg audio conversion failed")
		return errors.New("ffmpeg audio conversion failed")
	}
	_ = s.tracker.Begin(outputPath)
	_ = s.tracker.Tick(outputPath, 50)
	_ = s.tracker.Complete(outputPath)
	return os.WriteFile(outputPath, []byte("mp3 bytes"), 0o644)
}

type stubTranscriber struct {
	calls int
	fail  bool
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath string) (*Transcript, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("whisper transcription failed")
	}
	return &Transcript{
		Text:     "lecture transcript",
		Segments: []Segment{{ID: 0, Text: "lecture transcript", Start: 0, End: 2.5}},
	}, nil
}

type stubSummarizer struct {
	calls     int
	fail      bool
	lastTitle string
}

func (s *stubSummarizer) Summarize(ctx context.Context, title, text string) (string, error) {
	s.calls++
	s.lastTitle = title
	if s.fail {
		return "", errors.New("summary generation failed")
	}
	return "short summary", nil
}

type stubNotes struct {
	calls    int
	fail     bool
	lastText string
}

func (s *stubNotes) GenerateNotes(ctx context.Context, text string) (string, error) {
	s.calls++
	s.lastText = text
	if s.fail {
		return "", errors.New("note generation failed")
	}
	return "structured notes", nil
}

type pipelineFixture struct {
	svc         *Service
	cache       *cache.Cache
	tracker     *status.Tracker
	store       *storage.Local
	transcoder  *stubTranscoder
	transcriber *stubTranscriber
	summarizer  *stubSummarizer
	notes       *stubNotes
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewLocal(filepath.Join(dir, "uploads"), filepath.Join(dir, "outputs"))
	if err != nil {
		t.Fatalf("storage.NewLocal returned error: %v", err)
	}
	resultCache, err := cache.New(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("cache.New returned error: %v", err)
	}
	tracker := status.NewTracker(status.NewFileStore())

	transcoder := &stubTranscoder{tracker: tracker}
	transcriber := &stubTranscriber{}
	summarizer := &stubSummarizer{}
	notes := &stubNotes{}

	cfg := &config.Config{ConvertTimeoutMinutes: 5}
	svc, err := NewService(cfg, store, resultCache, tracker, Collaborators{
		Transcoder:  transcoder,
		Transcriber: transcriber,
		Summarizer:  summarizer,
		Notes:       notes,
	}, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	return &pipelineFixture{
		svc:         svc,
		cache:       resultCache,
		tracker:     tracker,
		store:       store,
		transcoder:  transcoder,
		transcriber: transcriber,
		summarizer:  summarizer,
		notes:       notes,
	}
}

func (f *pipelineFixture) writeUpload(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := f.store.UploadPath(name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write upload: %v", err)
	}
	return path
}

func TestProcessRunsAllStagesAndCachesOnce(t *testing.T) {
	f := newPipelineFixture(t)
	f.writeUpload(t, "lecture.mp4", []byte("video bytes"))

	result, err := f.svc.RunUpload(context.Background(), "lecture.mp4", nil)
	if err != nil {
		t.Fatalf("RunUpload returned error: %v", err)
	}

	if result.Status != StatusCompleted {
		t.Fatalf("unexpected result status: %s", result.Status)
	}
	if result.Transcript.Text != "lecture transcript" {
		t.Fatalf("unexpected transcript: %q", result.Transcript.Text)
	}
	if result.Summary != "short summary" || result.Notes != "structured notes" {
		t.Fatalf("unexpected derived artifacts: summary=%q notes=%q", result.Summary, result.Notes)
	}
	if result.AudioPath != f.store.OutputAudioPath("lecture.mp4") {
		t.Fatalf("unexpected audio path: %s", result.AudioPath)
	}
	if f.summarizer.lastTitle != "lecture" {
		t.Fatalf("title not derived from output stem: %q", f.summarizer.lastTitle)
	}
	if f.notes.lastText != "Summary: short summary \n\n\nNotes:\nlecture transcript" {
		t.Fatalf("unexpected note input: %q", f.notes.lastText)
	}

	record, ok := f.tracker.Read(result.AudioPath)
	if !ok || record.Status != status.StageCompleted || record.Progress != 100 {
		t.Fatalf("unexpected final status record: %#v ok=%v", record, ok)
	}

	// 再実行はキャッシュから返り、コラボレーターは一切呼ばれない
	again, err := f.svc.RunUpload(context.Background(), "lecture.mp4", nil)
	if err != nil {
		t.Fatalf("second RunUpload returned error: %v", err)
	}
	if again.Summary != result.Summary || again.Notes != result.Notes {
		t.Fatalf("cached result differs: %#v", again)
	}
	if f.transcoder.calls != 1 || f.transcriber.calls != 1 || f.summarizer.calls != 1 || f.notes.calls != 1 {
		t.Fatalf("collaborators invoked on cache hit: convert=%d transcribe=%d summarize=%d notes=%d",
			f.transcoder.calls, f.transcriber.calls, f.summarizer.calls, f.notes.calls)
	}
}

func TestProcessCacheHitDoesNotTouchStatus(t *testing.T) {
	f := newPipelineFixture(t)
	input := f.writeUpload(t, "lecture.mp4", []byte("video bytes"))

	stored := PipelineResult{Summary: "precomputed", Status: StatusCompleted}
	if err := f.cache.Store(input, stored); err != nil {
		t.Fatalf("cache.Store returned error: %v", err)
	}

	result, err := f.svc.RunUpload(context.Background(), "lecture.mp4", nil)
	if err != nil {
		t.Fatalf("RunUpload returned error: %v", err)
	}
	if result.Summary != "precomputed" {
		t.Fatalf("expected cached result, got %#v", result)
	}
	if f.transcoder.calls != 0 {
		t.Fatalf("transcoder invoked despite cache hit: %d", f.transcoder.calls)
	}
	if _, ok := f.tracker.Read(f.store.OutputAudioPath("lecture.mp4")); ok {
		t.Fatal("cache hit must not create a status record")
	}
}

func TestProcessConversionFailure(t *testing.T) {
	f := newPipelineFixture(t)
	input := f.writeUpload(t, "lecture.mp4", []byte("video bytes"))
	f.transcoder.fail = true

	_, err := f.svc.RunUpload(context.Background(), "lecture.mp4", nil)
	if err == nil {
		t.Fatal("expected conversion error")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "CONVERSION_FAILED" {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.transcriber.calls != 0 {
		t.Fatal("transcriber must not run after conversion failure")
	}

	var record PipelineResult
	hit, lookupErr := f.cache.Lookup(input, &record)
	if lookupErr != nil {
		t.Fatalf("Lookup returned error: %v", lookupErr)
	}
	if hit {
		t.Fatal("failed run must not be cached")
	}
}

func TestProcessTranscriptionFailure(t *testing.T) {
	f := newPipelineFixture(t)
	input := f.writeUpload(t, "lecture.mp4", []byte("video bytes"))
	f.transcriber.fail = true

	_, err := f.svc.RunUpload(context.Background(), "lecture.mp4", nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "TRANSCRIPTION_FAILED" {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.summarizer.calls != 0 || f.notes.calls != 0 {
		t.Fatal("later stages must not run after transcription failure")
	}

	record, ok := f.tracker.Read(f.store.OutputAudioPath("lecture.mp4"))
	if !ok || record.Status != status.StageError {
		t.Fatalf("expected error status record, got %#v ok=%v", record, ok)
	}
	if record.Error == "" {
		t.Fatal("error record must carry a message")
	}

	var cached PipelineResult
	hit, lookupErr := f.cache.Lookup(input, &cached)
	if lookupErr != nil {
		t.Fatalf("Lookup returned error: %v", lookupErr)
	}
	if hit {
		t.Fatal("failed run must not be cached")
	}
}

func TestProcessNotesFailureSkipsCache(t *testing.T) {
	f := newPipelineFixture(t)
	input := f.writeUpload(t, "lecture.mp4", []byte("video bytes"))
	f.notes.fail = true

	_, err := f.svc.RunUpload(context.Background(), "lecture.mp4", nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "NOTES_FAILED" {
		t.Fatalf("unexpected error: %v", err)
	}

	var cached PipelineResult
	hit, lookupErr := f.cache.Lookup(input, &cached)
	if lookupErr != nil {
		t.Fatalf("Lookup returned error: %v", lookupErr)
	}
	if hit {
		t.Fatal("failed run must not be cached")
	}
}

func TestJobStatusResolutionOrder(t *testing.T) {
	f := newPipelineFixture(t)

	// 入力が存在しない
	if resp := f.svc.JobStatus("missing.mp4"); resp.Status != StatusNotFound {
		t.Fatalf("expected not_found, got %#v", resp)
	}

	// 入力はあるがレコードもキャッシュも無い
	f.writeUpload(t, "lecture.mp4", []byte("video bytes"))
	if resp := f.svc.JobStatus("lecture.mp4"); resp.Status != StatusPending || resp.Progress != 0 {
		t.Fatalf("expected pending, got %#v", resp)
	}

	// 変換中レコードは段階をそのまま通す
	outputPath := f.store.OutputAudioPath("lecture.mp4")
	if err := f.tracker.Begin(outputPath); err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if err := f.tracker.Tick(outputPath, 42); err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	resp := f.svc.JobStatus("lecture.mp4")
	if resp.Status != StatusProcessing || resp.Step != string(status.StageConverting) || resp.Progress != 42 {
		t.Fatalf("expected converting progress, got %#v", resp)
	}

	// 失敗レコードはメッセージ付きで返る
	if err := f.tracker.Fail(outputPath, "boom"); err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	resp = f.svc.JobStatus("lecture.mp4")
	if resp.Status != StatusError || resp.Error != "boom" {
		t.Fatalf("expected error response, got %#v", resp)
	}

	// キャッシュヒットはレコードより優先される
	if _, err := f.svc.RunUpload(context.Background(), "lecture.mp4", nil); err != nil {
		t.Fatalf("RunUpload returned error: %v", err)
	}
	resp = f.svc.JobStatus("lecture.mp4")
	if resp.Status != StatusCompleted || resp.Progress != 100 {
		t.Fatalf("expected completed from cache, got %#v", resp)
	}
}

func TestProgressReporterObservesStages(t *testing.T) {
	f := newPipelineFixture(t)
	f.writeUpload(t, "lecture.mp4", []byte("video bytes"))

	var stages []string
	var percents []int
	reporter := func(stage string, percent int) {
		stages = append(stages, stage)
		percents = append(percents, percent)
	}

	if _, err := f.svc.RunUpload(context.Background(), "lecture.mp4", reporter); err != nil {
		t.Fatalf("RunUpload returned error: %v", err)
	}

	if len(stages) == 0 || stages[0] != string(status.StageConverting) {
		t.Fatalf("expected converting as first reported stage: %v", stages)
	}
	if stages[len(stages)-1] != string(status.StageCompleted) || percents[len(percents)-1] != 100 {
		t.Fatalf("expected completed/100 as final report: %v %v", stages, percents)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("reported progress decreased: %v", percents)
		}
	}
}
