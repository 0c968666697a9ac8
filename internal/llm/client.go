// Package llm は OpenAI API を用いた要約とノート生成コラボレーターを提供します。
// ノート生成の応答は入力テキストのハッシュをキーにキャッシュされます。
package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/yourusername/note-forge/internal/cache"
)

const notesSystemPrompt = "You are an AI that generates detailed, structured, and accurate lecture notes from transcriptions. Minimum 2-3 page response is required. The format must be markdown that can be embedded into a website. Add proper line breaks and bullet points for lists, subtopics, and lines to look it good. You may add information that is not present in the transcription, but ensure it is relevant and accurate."

const notesUserPromptFormat = "Generate detailed and structured lecture notes from the following transcription:\n%s\n\nPlease follow these guidelines:\n- Organize the notes into clear sections (e.g., Introduction, Key Concepts, Examples, Summary).\n- Include definitions, explanations, and key points made by the lecturer.\n- Ensure the notes are comprehensive, accurate, and coherent.\n- Break down complex ideas into simpler terms.\n- Use bullet points for lists and subtopics.\n- If possible, highlight any key takeaways or important conclusions.\n- Maintain the authenticity of the information provided in the transcription."

const summarySystemPrompt = "You are an AI that writes short, faithful summaries of lecture transcripts. Respond with roughly five sentences of plain text, focused on the given title."

// emptyTranscriptSummary は本文が空のときに返す固定文です。
const emptyTranscriptSummary = "No valid sentences to summarize."

// completer はチャット補完APIを抽象化します。*openai.Client が満たします。
type completer interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client は要約とノート生成の両コラボレーターを実装します。
type Client struct {
	api    completer
	model  string
	cache  *cache.TextCache
	logger *log.Logger
}

// NewClient は OpenAI API を使う Client を作成します。
func NewClient(apiKey, model string, textCache *cache.TextCache, logger *log.Logger) *Client {
	return &Client{
		api:    openai.NewClient(apiKey),
		model:  model,
		cache:  textCache,
		logger: logger,
	}
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Summarize はタイトルに沿った短い要約を生成します。本文が空の場合は
// API を呼ばずに固定文を返します。
func (c *Client) Summarize(ctx context.Context, title, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return emptyTranscriptSummary, nil
	}

	userPrompt := fmt.Sprintf("Title: %s\n\nTranscript:\n%s", title, text)
	summary, err := c.complete(ctx, summarySystemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}
	return summary, nil
}

// GenerateNotes は結合テキストから構造化ノートを生成します。
// 同一入力に対する応答はテキストキャッシュから返します。
func (c *Client) GenerateNotes(ctx context.Context, text string) (string, error) {
	key := cache.TextKey(text)
	if cached, ok := c.cache.Get(key); ok {
		c.logf("using cached LLM response for key %s", key)
		return cached, nil
	}

	notes, err := c.complete(ctx, notesSystemPrompt, fmt.Sprintf(notesUserPromptFormat, text))
	if err != nil {
		return "", fmt.Errorf("note generation failed: %w", err)
	}

	if err := c.cache.Put(key, notes); err != nil {
		// キャッシュ書き込み失敗は応答自体を損なわない
		c.logf("failed to cache LLM response: %v", err)
	}
	return notes, nil
}
