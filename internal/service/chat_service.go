// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"strings"

	"docchat-go/internal/config"
	"docchat-go/internal/model"
	"docchat-go/pkg/embedding"
	"docchat-go/pkg/llm"
	"docchat-go/pkg/log"
	"docchat-go/pkg/markdown"
	"docchat-go/pkg/vectorstore"
)

// 面向用户的固定文案。检索与生成的异常不会原样透出，统一折叠成这几条。
const (
	msgEmptyQuery    = "Please enter a valid question."
	msgNoContext     = "I couldn't find relevant information in your documents."
	msgUpstreamError = "An error occurred while generating the answer. Please try again."
)

const systemPromptPrefix = "You are an intelligent assistant. Use the context below to answer questions:\n\n"
const systemPromptSuffix = "\n\nIf the answer is not in the context, reply: 'I don't know based on the document.'"

// ChatService 定义了检索问答的接口。
type ChatService interface {
	// AnswerQuery 以整答模式回答问题，返回规范化后的 HTML 片段。
	AnswerQuery(ctx context.Context, namespace string, req model.ChatRequest) string
	// StreamAnswer 以流式模式回答问题，逐片段调用 emit。
	// 片段保证在空白边界对齐，不会切开单词；emit 返回错误时中断下发。
	StreamAnswer(ctx context.Context, namespace string, req model.ChatRequest, emit func(fragment string) error) error
}

type chatService struct {
	embedder  embedding.Client
	store     vectorstore.Store
	llmClient llm.Client
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(embedder embedding.Client, store vectorstore.Store, llmClient llm.Client) ChatService {
	return &chatService{
		embedder:  embedder,
		store:     store,
		llmClient: llmClient,
	}
}

// AnswerQuery 协调整答模式的 RAG 流程：检索上下文、构建提示词、调用模型并规范化输出。
func (s *chatService) AnswerQuery(ctx context.Context, namespace string, req model.ChatRequest) string {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return msgEmptyQuery
	}

	contextText, ok := s.retrieveContext(ctx, namespace, query, req.SelectedFile)
	if !ok {
		return msgUpstreamError
	}
	if contextText == "" {
		return msgNoContext
	}

	answer, err := s.llmClient.Complete(ctx, s.buildMessages(contextText, query), s.buildGenerationParams())
	if err != nil {
		log.Errorf("调用聊天模型失败: %v", err)
		return msgUpstreamError
	}

	return markdown.FormatToHTML(answer)
}

// StreamAnswer 协调流式模式的 RAG 流程。
// 空问题、无检索结果和上游错误都退化为单个固定文案片段。
func (s *chatService) StreamAnswer(ctx context.Context, namespace string, req model.ChatRequest, emit func(fragment string) error) error {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return emit(msgEmptyQuery)
	}

	contextText, ok := s.retrieveContext(ctx, namespace, query, req.SelectedFile)
	if !ok {
		return emit(msgUpstreamError)
	}
	if contextText == "" {
		return emit(msgNoContext)
	}

	stream, err := s.llmClient.StreamCompletion(ctx, s.buildMessages(contextText, query), s.buildGenerationParams())
	if err != nil {
		log.Errorf("建立聊天模型流式连接失败: %v", err)
		return emit(msgUpstreamError)
	}
	defer stream.Close()

	buf := newStreamBuffer()
	for fragment := range stream.Fragments() {
		completed := buf.Push(fragment)
		if completed == "" {
			continue
		}
		if err := emit(completed); err != nil {
			// 客户端已断开，停止消费上游流
			return err
		}
	}

	if err := stream.Err(); err != nil {
		log.Errorf("聊天模型流式响应中断: %v", err)
		return emit(msgUpstreamError)
	}

	if tail, ok := buf.Flush(); ok {
		return emit(tail)
	}
	return nil
}

// retrieveContext 执行 embedding 与向量检索并拼装上下文。
// 第二个返回值为 false 表示上游失败（已记录日志）。
func (s *chatService) retrieveContext(ctx context.Context, namespace, query, selectedFile string) (string, bool) {
	vectors, err := s.embedder.CreateEmbeddings(ctx, []string{query})
	if err != nil {
		log.Errorf("查询向量化失败: %v", err)
		return "", false
	}

	matches, err := s.store.Query(ctx, namespace, vectors[0], config.Conf.Chat.TopK, true)
	if err != nil {
		log.Errorf("向量检索失败: namespace=%s, %v", namespace, err)
		return "", false
	}

	return assembleContext(matches, selectedFile), true
}

// assembleContext 把检索结果拼接为上下文文本。
// 指定了文件时只保留该文件的分块；缺少正文的分块被跳过。
func assembleContext(matches []vectorstore.Match, selectedFile string) string {
	var parts []string
	for _, m := range matches {
		if selectedFile != "" && m.Metadata.File != selectedFile {
			continue
		}
		if m.Metadata.Text == "" {
			continue
		}
		parts = append(parts, m.Metadata.Text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func (s *chatService) buildMessages(contextText, query string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: systemPromptPrefix + contextText + systemPromptSuffix},
		{Role: "user", Content: query},
	}
}

func (s *chatService) buildGenerationParams() *llm.GenerationParams {
	t := config.Conf.LLM.Generation.Temperature
	m := config.Conf.LLM.Generation.MaxTokens
	return &llm.GenerationParams{Temperature: &t, MaxTokens: &m}
}
