package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAPIBase     = "https://api.siliconflow.cn/v1"
	defaultModel       = "Pro/deepseek-ai/DeepSeek-R1"
	defaultMaxTokens   = 512
	defaultTemperature = 0.7
	defaultTimeout     = 30 * time.Second
)

// SiliconFlow implements domain.Enricher against the SiliconFlow
// chat-completions API. Both enrichment calls are advisory: callers
// fall back to the raw message on any error.
type SiliconFlow struct {
	apiKey      string
	apiBase     string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
	logger      *slog.Logger
}

type Config struct {
	APIKey      string
	APIBase     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Logger      *slog.Logger
}

func NewSiliconFlow(cfg Config) *SiliconFlow {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SiliconFlow{
		apiKey:      cfg.APIKey,
		apiBase:     strings.TrimRight(cfg.APIBase, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      SharedHTTPClient(cfg.Timeout),
		logger:      cfg.Logger,
	}
}

func (s *SiliconFlow) Name() string { return "siliconflow" }

func (s *SiliconFlow) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", s.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("siliconflow not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("siliconflow: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("siliconflow returned %d", resp.StatusCode)
	}
	return nil
}

const analyzeSystemPrompt = `你是一個智能微信機器人助手，專門幫助大學班長判斷老師的消息是否需要轉發給學生。

請判斷以下消息是否需要轉發給全班同學：
- 如果是班級相關的重要通知、學業安排、科研信息、保研通知、集體活動等，回答"需要轉發"
- 如果是私人聊天、個人問候、非正式交流等，回答"不需要轉發"

只需要回答"需要轉發"或"不需要轉發"，不要添加其他內容。`

// ShouldForward asks the model whether a teacher message is a class
// notice worth fanning out.
func (s *SiliconFlow) ShouldForward(ctx context.Context, teacher string, text string) (bool, error) {
	content, err := s.chatCompletion(ctx, []chatMessage{
		{Role: "system", Content: analyzeSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("發送者: %s\n\n消息內容：%s", teacher, text)},
	})
	if err != nil {
		return false, err
	}
	return strings.Contains(content, "需要轉發") && !strings.Contains(content, "不需要轉發"), nil
}

const summarizeSystemPrompt = `你是一個大學班長，負責將老師的消息轉發給同學們。
請將老師的原始消息整理成適合轉發給同學們的格式。

要求：
1. 保持原始信息的完整性
2. 添加適當的標題和來源說明
3. 使用正式但友好的語調
4. 突出重要信息`

// Summarize rewrites a teacher message into a forward-ready notice.
func (s *SiliconFlow) Summarize(ctx context.Context, teacher string, text string) (string, error) {
	content, err := s.chatCompletion(ctx, []chatMessage{
		{Role: "system", Content: summarizeSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("老師姓名：%s\n原始消息：%s", teacher, text)},
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("siliconflow: empty completion")
	}
	return strings.TrimSpace(content), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	N           int           `json:"n"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (s *SiliconFlow) chatCompletion(ctx context.Context, messages []chatMessage) (string, error) {
	body := chatRequest{
		Model:       s.model,
		Messages:    messages,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		TopP:        0.7,
		N:           1,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	buildReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", s.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		return req, nil
	}

	resp, err := doWithRetry(ctx, s.client, buildReq, s.logger)
	if err != nil {
		return "", fmt.Errorf("siliconflow request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("siliconflow %d: %s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("siliconflow: no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}
