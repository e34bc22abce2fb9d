// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"docchat-go/internal/config"
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
}

// StreamReader 是一次流式聊天调用的消费端视图。
type StreamReader interface {
	// Fragments 返回增量文本分段通道，流结束（或出错）后关闭。
	Fragments() <-chan string
	// Err 返回导致流提前终止的错误；必须在 Fragments 通道关闭后调用。
	Err() error
	// Close 释放底层连接。消费方中途放弃时必须调用。
	Close() error
}

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 以整段方式调用聊天接口，返回完整的生成文本。
	Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
	// StreamCompletion 以流式方式调用聊天接口。返回的流按生成顺序逐段
	// 产出增量文本；消费方不取走分段时生产方阻塞（背压）。
	StreamCompletion(ctx context.Context, messages []Message, gen *GenerationParams) (StreamReader, error)
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(cfg config.LLMConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream 是一次流式聊天调用的句柄。分段顺序与模型生成顺序一致，
// Fragments 通道关闭后可通过 Err 查询流是否异常终止。
type Stream struct {
	fragments chan string
	body      io.ReadCloser
	closeOnce sync.Once
	err       error
}

// Fragments 返回增量文本分段通道，流结束（或出错）后关闭。
func (s *Stream) Fragments() <-chan string {
	return s.fragments
}

// Err 返回导致流提前终止的错误；必须在 Fragments 通道关闭后调用。
func (s *Stream) Err() error {
	return s.err
}

// Close 释放底层连接。消费方中途放弃时必须调用，以免持续拉取剩余分段。
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.body.Close()
	})
	return nil
}

func (c *openAICompatibleClient) buildRequest(ctx context.Context, messages []Message, gen *GenerationParams, stream bool) (*http.Request, error) {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   stream,
	}
	// 生成参数：传参优先，其次取全局配置中的非零值
	if gen != nil {
		reqBody.Temperature = gen.Temperature
		reqBody.MaxTokens = gen.MaxTokens
	} else {
		if c.cfg.Generation.Temperature != 0 {
			t := c.cfg.Generation.Temperature
			reqBody.Temperature = &t
		}
		if c.cfg.Generation.MaxTokens != 0 {
			m := c.cfg.Generation.MaxTokens
			reqBody.MaxTokens = &m
		}
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

// Complete calls the chat completions API and returns the full generated text.
func (c *openAICompatibleClient) Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	req, err := c.buildRequest(ctx, messages, gen, false)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat api returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// StreamCompletion calls the chat completions API in stream mode and parses the SSE frames.
func (c *openAICompatibleClient) StreamCompletion(ctx context.Context, messages []Message, gen *GenerationParams) (StreamReader, error) {
	req, err := c.buildRequest(ctx, messages, gen, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	s := &Stream{
		// 无缓冲：消费方未取走前一个分段时生产方阻塞
		fragments: make(chan string),
		body:      resp.Body,
	}

	go func() {
		defer close(s.fragments)
		defer s.Close()

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					s.err = fmt.Errorf("failed to read from stream: %w", err)
				}
				return
			}

			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if strings.TrimSpace(data) == "[DONE]" {
				return
			}

			var chunk chatStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			content := chunk.Choices[0].Delta.Content
			if content == "" {
				continue
			}

			select {
			case s.fragments <- content:
			case <-ctx.Done():
				return
			}
		}
	}()

	return s, nil
}
