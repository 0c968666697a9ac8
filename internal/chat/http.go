package chat

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type processRequest struct {
	TextID string `json:"text_id"`
	Text   string `json:"text"`
}

type askRequest struct {
	TextID   string `json:"text_id"`
	Question string `json:"question"`
}

type deleteRequest struct {
	TextID string `json:"text_id"`
}

// ProcessHandler は POST /chat/process のハンドラーを返します。
func ProcessHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req processRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.TextID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "text_id と text を指定してください。",
			})
			return
		}

		if err := svc.ProcessText(req.TextID, req.Text); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "テキストの登録に失敗しました。",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Text processed successfully",
		})
	}
}

// AskHandler は POST /chat/ask のハンドラーを返します。
// 応答は回答本文と、今回の往復を含む会話履歴全体です。
func AskHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req askRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.TextID) == "" || strings.TrimSpace(req.Question) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "text_id と question を指定してください。",
			})
			return
		}

		answer, history, err := svc.AskQuestion(c.Request.Context(), req.TextID, req.Question)
		if err != nil {
			if errors.Is(err, ErrTextNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "Text not found",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "質問への回答に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"answer":       answer,
			"chat_history": history,
		})
	}
}

// DeleteHandler は POST /chat/delete のハンドラーを返します。
func DeleteHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req deleteRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.TextID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "text_id を指定してください。",
			})
			return
		}

		svc.DeleteText(req.TextID)
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "Text deleted successfully",
		})
	}
}
