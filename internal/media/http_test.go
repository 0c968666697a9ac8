package media

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubUploadService struct {
	upload    *Upload
	saveErr   error
	result    *PipelineResult
	runErr    error
	runCalled int
}

func (s *stubUploadService) SaveUpload(ctx context.Context, file *multipart.FileHeader) (*Upload, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	if s.upload != nil {
		return s.upload, nil
	}
	return &Upload{Filename: file.Filename, Size: file.Size}, nil
}

func (s *stubUploadService) RunUpload(ctx context.Context, filename string, progress ProgressReporter) (*PipelineResult, error) {
	s.runCalled++
	return s.result, s.runErr
}

type stubScheduler struct {
	jobID    string
	filename string
	err      error
}

func (s *stubScheduler) Schedule(ctx context.Context, jobID, filename string) error {
	s.jobID = jobID
	s.filename = filename
	return s.err
}

type stubStatusService struct {
	resp *StatusResponse
}

func (s *stubStatusService) JobStatus(filename string) *StatusResponse {
	return s.resp
}

func multipartVideoRequest(t *testing.T, target string, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile("video", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := io.Copy(fileWriter, bytes.NewReader(content)); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadHandlerNoFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubUploadService{}

	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/upload", UploadHandler(service, HandlerOptions{}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != "INVALID_INPUT" {
		t.Fatalf("unexpected code: %s", payload["code"])
	}
}

func TestUploadHandlerSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubUploadService{
		result: &PipelineResult{
			Message:   "Processing successful",
			AudioPath: "outputs/a.mp3",
			Transcript: Transcript{
				Text:     "hello",
				Segments: []Segment{{ID: 0, Text: "hello", Start: 0, End: 1}},
			},
			Summary: "summary",
			Notes:   "notes",
			Status:  StatusCompleted,
		},
	}

	req := multipartVideoRequest(t, "/upload", "a.mp4", []byte("dummy video"))
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/upload", UploadHandler(service, HandlerOptions{}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var payload PipelineResult
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Status != StatusCompleted {
		t.Fatalf("unexpected status field: %s", payload.Status)
	}
	if payload.AudioPath != "outputs/a.mp3" || payload.Summary != "summary" || payload.Notes != "notes" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
	if len(payload.Transcript.Segments) != 1 {
		t.Fatalf("unexpected segments: %#v", payload.Transcript.Segments)
	}
}

func TestUploadHandlerPipelineFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubUploadService{
		runErr: newError("TRANSCRIPTION_FAILED", "whisper transcription failed", nil),
	}

	req := multipartVideoRequest(t, "/upload", "a.mp4", []byte("dummy video"))
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/upload", UploadHandler(service, HandlerOptions{}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["error"] != "whisper transcription failed" {
		t.Fatalf("unexpected error message: %s", payload["error"])
	}
}

func TestUploadHandlerLimitExceeded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubUploadService{
		saveErr: newError("LIMIT_EXCEEDED", "ファイルサイズが上限を超えています。", nil),
	}

	req := multipartVideoRequest(t, "/upload", "a.mp4", []byte("dummy video"))
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/upload", UploadHandler(service, HandlerOptions{}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestUploadHandlerAsyncThreshold(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubUploadService{
		upload: &Upload{Filename: "big.mp4", Size: 500},
	}
	scheduler := &stubScheduler{}

	req := multipartVideoRequest(t, "/upload", "big.mp4", []byte("dummy video"))
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/upload", UploadHandler(service, HandlerOptions{
		Scheduler:           scheduler,
		AsyncThresholdBytes: 100,
	}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["jobId"] == "" {
		t.Fatal("expected jobId in async response")
	}
	if scheduler.filename != "big.mp4" {
		t.Fatalf("scheduler received unexpected filename: %s", scheduler.filename)
	}
	if service.runCalled != 0 {
		t.Fatal("synchronous pipeline must not run on async path")
	}
}

func TestStatusHandlerNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubStatusService{resp: &StatusResponse{Status: StatusNotFound}}

	req := httptest.NewRequest(http.MethodGet, "/status/missing.mp4", nil)
	rec := httptest.NewRecorder()

	router := gin.New()
	router.GET("/status/:filename", StatusHandler(service))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestStatusHandlerProgress(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubStatusService{resp: &StatusResponse{
		Status:   StatusProcessing,
		Progress: 42,
		Step:     "converting",
	}}

	req := httptest.NewRequest(http.MethodGet, "/status/a.mp4", nil)
	rec := httptest.NewRecorder()

	router := gin.New()
	router.GET("/status/:filename", StatusHandler(service))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Status != StatusProcessing || payload.Progress != 42 || payload.Step != "converting" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}
