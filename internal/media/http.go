package media

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UploadService はアップロードの保存とパイプライン実行を提供します。
type UploadService interface {
	SaveUpload(ctx context.Context, file *multipart.FileHeader) (*Upload, error)
	RunUpload(ctx context.Context, filename string, progress ProgressReporter) (*PipelineResult, error)
}

// StatusService はアップロードファイル名に対する状態照会を提供します。
type StatusService interface {
	JobStatus(filename string) *StatusResponse
}

// JobScheduler はジョブを非同期キューに投入するためのインターフェースです。
type JobScheduler interface {
	Schedule(ctx context.Context, jobID, filename string) error
}

// HandlerOptions は同期/非同期切り替えのための設定です。
type HandlerOptions struct {
	Scheduler           JobScheduler
	AsyncThresholdBytes int64
}

// UploadHandler は POST /upload のハンドラーを返します。
// 閾値以下のファイルは同期実行して結果を返し、閾値を超えるファイルは
// ジョブとしてキューへ投入して 202 と jobId を返します。
func UploadHandler(svc UploadService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := c.FormFile("video")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":  "INVALID_INPUT",
				"error": "動画ファイルが添付されていません。フィールド名は video です。",
			})
			return
		}

		up, err := svc.SaveUpload(c.Request.Context(), file)
		if err != nil {
			respondWithError(c, err)
			return
		}

		if shouldProcessAsync(up, opts) {
			jobID := uuid.NewString()
			if err := opts.Scheduler.Schedule(c.Request.Context(), jobID, up.Filename); err != nil {
				respondWithError(c, err)
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
			return
		}

		result, err := svc.RunUpload(c.Request.Context(), up.Filename, nil)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// StatusHandler は GET /status/:filename のハンドラーを返します。
func StatusHandler(svc StatusService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filename := strings.TrimSpace(c.Param("filename"))
		if filename == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":  "INVALID_INPUT",
				"error": "ファイル名を指定してください。",
			})
			return
		}

		resp := svc.JobStatus(filename)
		if resp.Status == StatusNotFound {
			c.JSON(http.StatusNotFound, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func shouldProcessAsync(up *Upload, opts HandlerOptions) bool {
	if up == nil || opts.Scheduler == nil {
		return false
	}
	return opts.AsyncThresholdBytes > 0 && up.Size > opts.AsyncThresholdBytes
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		httpStatus := http.StatusInternalServerError
		switch apiErr.Code {
		case "INVALID_INPUT":
			httpStatus = http.StatusBadRequest
		case "LIMIT_EXCEEDED":
			httpStatus = http.StatusRequestEntityTooLarge
		}
		c.JSON(httpStatus, gin.H{
			"code":  apiErr.Code,
			"error": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":  "REQUEST_CANCELED",
			"error": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": "サーバー内部でエラーが発生しました。",
		})
	}
}
