// Package chat は処理済みの文字起こしテキストに対する対話型Q&Aを提供します。
// テキストは text_id 単位で登録され、チャンク分割・会話履歴とともに
// メモリ上に保持されます。回答は質問と語彙的に近いチャンクを文脈として
// チャット補完APIへ渡すことで生成します。
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200

	// 1回の質問で文脈として渡すチャンク数の上限
	maxContextChunks = 4
)

const answerSystemPrompt = "You are a study assistant that answers questions about a lecture transcript. Answer using only the provided transcript excerpts and the conversation so far. If the excerpts do not contain the answer, say so plainly instead of guessing."

// 履歴メッセージの話者種別。応答の chat_history にそのまま載ります。
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// ErrTextNotFound は未登録の text_id への質問を表します。
var ErrTextNotFound = errors.New("text not found")

// Message は会話履歴の1件です。
type Message struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// completer はチャット補完APIを抽象化します。*openai.Client が満たします。
type completer interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// conversation は1テキスト分のチャンクと会話履歴を保持します。
type conversation struct {
	chunks  []string
	history []Message
}

// Service は text_id ごとの会話状態を管理し、質問に回答します。
type Service struct {
	api    completer
	model  string
	logger *log.Logger

	mu            sync.Mutex
	conversations map[string]*conversation
}

// NewService は OpenAI API を使う Service を作成します。
func NewService(apiKey, model string, logger *log.Logger) *Service {
	return &Service{
		api:           openai.NewClient(apiKey),
		model:         model,
		logger:        logger,
		conversations: map[string]*conversation{},
	}
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// ProcessText はテキストをチャンク分割して質問受付可能な状態で登録します。
// 同じ text_id への再登録は上書きとなり、会話履歴もリセットされます。
func (s *Service) ProcessText(textID, text string) error {
	if strings.TrimSpace(textID) == "" {
		return errors.New("text_id is required")
	}

	chunks := splitText(text)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[textID] = &conversation{chunks: chunks}
	s.logf("registered chat text %s (%d chunks)", textID, len(chunks))
	return nil
}

// AskQuestion は登録済みテキストについての質問に回答し、質問と回答を
// 履歴へ追記した上で履歴全体を返します。
func (s *Service) AskQuestion(ctx context.Context, textID, question string) (string, []Message, error) {
	s.mu.Lock()
	conv, ok := s.conversations[textID]
	var chunks []string
	var history []Message
	if ok {
		chunks = conv.chunks
		history = append([]Message(nil), conv.history...)
	}
	s.mu.Unlock()
	if !ok {
		return "", nil, ErrTextNotFound
	}

	resp, err := s.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: buildMessages(chunks, history, question),
	})
	if err != nil {
		return "", nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, errors.New("chat completion returned no choices")
	}
	answer := resp.Choices[0].Message.Content

	turn := []Message{
		{Content: question, Role: RoleHuman},
		{Content: answer, Role: RoleAI},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 応答待ちの間に削除された場合は履歴を残さず、今回の往復だけを返す
	conv, ok = s.conversations[textID]
	if !ok {
		return answer, turn, nil
	}
	conv.history = append(conv.history, turn...)
	return answer, append([]Message(nil), conv.history...), nil
}

// DeleteText は登録済みテキストと履歴を破棄します。未登録でも成功扱いです。
func (s *Service) DeleteText(textID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, textID)
}

// buildMessages は過去の往復と関連チャンクから補完リクエストを組み立てます。
func buildMessages(chunks []string, history []Message, question string) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: answerSystemPrompt},
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAI {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	var prompt strings.Builder
	prompt.WriteString("Transcript excerpts:\n")
	for _, chunk := range relevantChunks(chunks, question, maxContextChunks) {
		prompt.WriteString("---\n")
		prompt.WriteString(chunk)
		prompt.WriteString("\n")
	}
	prompt.WriteString("\nQuestion: ")
	prompt.WriteString(question)

	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt.String(),
	})
}

// splitText は改行区切りで行を積み上げた約 chunkSize 文字のチャンク列を返します。
// 前チャンク末尾のおよそ chunkOverlap 文字分の行を次チャンクへ持ち越し、
// チャンク境界での文脈の断絶を抑えます。1行が chunkSize を超える場合は
// その行だけで1チャンクになります。
func splitText(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	length := func(parts []string) int {
		total := 0
		for _, p := range parts {
			total += len(p) + 1
		}
		return total
	}

	var chunks []string
	var current []string
	for _, line := range strings.Split(trimmed, "\n") {
		if len(current) > 0 && length(current)+len(line) > chunkSize {
			chunks = append(chunks, strings.Join(current, "\n"))

			var carried []string
			for i := len(current) - 1; i >= 0; i-- {
				if length(carried)+len(current[i]) > chunkOverlap {
					break
				}
				carried = append([]string{current[i]}, carried...)
			}
			current = carried
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}

// relevantChunks は質問との語彙の重なりでチャンクを採点し、上位 limit 件を
// 元の出現順で返します。重なりが皆無の場合は先頭からの limit 件になります。
func relevantChunks(chunks []string, question string, limit int) []string {
	if len(chunks) <= limit {
		return chunks
	}

	terms := queryTerms(question)
	type scored struct {
		index int
		score int
	}
	ranked := make([]scored, 0, len(chunks))
	for i, chunk := range chunks {
		lower := strings.ToLower(chunk)
		score := 0
		for term := range terms {
			score += strings.Count(lower, term)
		}
		ranked = append(ranked, scored{index: i, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	top := ranked[:limit]
	sort.Slice(top, func(i, j int) bool {
		return top[i].index < top[j].index
	})
	picked := make([]string, 0, limit)
	for _, entry := range top {
		picked = append(picked, chunks[entry.index])
	}
	return picked
}

func queryTerms(question string) map[string]struct{} {
	terms := map[string]struct{}{}
	for _, field := range strings.Fields(strings.ToLower(question)) {
		field = strings.Trim(field, ".,!?\"'()")
		if len(field) < 3 {
			continue
		}
		terms[field] = struct{}{}
	}
	return terms
}
