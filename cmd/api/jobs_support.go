package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/note-forge/internal/config"
	"github.com/yourusername/note-forge/internal/jobs"
	"github.com/yourusername/note-forge/internal/media"
)

type mediaJobScheduler struct {
	manager *jobs.Manager
}

func (s *mediaJobScheduler) Schedule(ctx context.Context, jobID, filename string) error {
	_, err := s.manager.Enqueue(ctx, &jobs.TaskPayload{
		JobID:    jobID,
		Filename: filename,
	})
	return err
}

func setupJobs(cfg *config.Config, mediaService *media.Service) (*jobs.Manager, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	ttlMinutes := cfg.JobExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	store := jobs.NewStore(redisClient, time.Duration(ttlMinutes)*time.Minute)
	manager, err := jobs.NewManager(cfg, mediaService, store, log.Default())
	if err != nil {
		return nil, err
	}
	return manager, nil
}

func jobStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := manager.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		payload := gin.H{
			"jobId":    record.JobID,
			"filename": record.Filename,
			"status":   record.Status,
			"progress": gin.H{
				"percent": record.Progress.Percent,
				"stage":   record.Progress.Stage,
				"message": record.Progress.Message,
			},
			"updatedAt": record.UpdatedAt,
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}

		c.JSON(http.StatusOK, payload)
	}
}

func jobResultHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := manager.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}
		if record.Status != jobs.StatusSucceeded || record.Result == nil {
			c.JSON(http.StatusConflict, gin.H{
				"code":    "JOB_NOT_DONE",
				"message": "ジョブはまだ完了していません。",
				"status":  record.Status,
			})
			return
		}

		c.JSON(http.StatusOK, record.Result)
	}
}
