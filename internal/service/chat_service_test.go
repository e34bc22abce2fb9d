package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"docchat-go/internal/config"
	"docchat-go/internal/model"
	"docchat-go/pkg/llm"
	"docchat-go/pkg/vectorstore"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeStore struct {
	queryCalls int
	matches    []vectorstore.Match
	err        error
	gotTopK    int
	gotNS      string
}

func (f *fakeStore) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	return nil
}

func (f *fakeStore) Query(ctx context.Context, namespace string, vector []float32, topK int, includeMetadata bool) ([]vectorstore.Match, error) {
	f.queryCalls++
	f.gotTopK = topK
	f.gotNS = namespace
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func (f *fakeStore) Scan(ctx context.Context, namespace string, limit int) ([]vectorstore.Match, error) {
	return f.matches, f.err
}

func (f *fakeStore) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	return nil
}

func (f *fakeStore) DeleteAll(ctx context.Context, namespace string) error {
	return nil
}

type fakeStream struct {
	fragments chan string
	err       error
}

func newFakeStream(fragments []string, err error) *fakeStream {
	ch := make(chan string, len(fragments))
	for _, f := range fragments {
		ch <- f
	}
	close(ch)
	return &fakeStream{fragments: ch, err: err}
}

func (s *fakeStream) Fragments() <-chan string { return s.fragments }
func (s *fakeStream) Err() error               { return s.err }
func (s *fakeStream) Close() error             { return nil }

type fakeLLM struct {
	completeCalls int
	streamCalls   int
	answer        string
	completeErr   error
	fragments     []string
	streamErr     error
	streamOpenErr error
	gotMessages   []llm.Message
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.completeCalls++
	f.gotMessages = messages
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.answer, nil
}

func (f *fakeLLM) StreamCompletion(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (llm.StreamReader, error) {
	f.streamCalls++
	f.gotMessages = messages
	if f.streamOpenErr != nil {
		return nil, f.streamOpenErr
	}
	return newFakeStream(f.fragments, f.streamErr), nil
}

func setupChatConfig(t *testing.T) {
	t.Helper()
	config.Conf.Chat.TopK = 5
	config.Conf.LLM.Generation.Temperature = 0.2
	config.Conf.LLM.Generation.MaxTokens = 800
}

func newTestChatService(embedder *fakeEmbedder, store *fakeStore, llmClient *fakeLLM) ChatService {
	return NewChatService(embedder, store, llmClient)
}

func TestAnswerQueryEmptyQuery(t *testing.T) {
	setupChatConfig(t)
	embedder := &fakeEmbedder{}
	store := &fakeStore{}
	llmClient := &fakeLLM{}
	svc := newTestChatService(embedder, store, llmClient)

	for _, query := range []string{"", "   ", "\n\t"} {
		answer := svc.AnswerQuery(context.Background(), "user_1", model.ChatRequest{Query: query})
		require.Equal(t, "Please enter a valid question.", answer)
	}

	// 空问题不触发任何上游调用
	require.Zero(t, embedder.calls)
	require.Zero(t, store.queryCalls)
	require.Zero(t, llmClient.completeCalls)
}

func TestAnswerQueryNoMatches(t *testing.T) {
	setupChatConfig(t)
	embedder := &fakeEmbedder{}
	store := &fakeStore{} // 空命名空间，无任何匹配
	llmClient := &fakeLLM{}
	svc := newTestChatService(embedder, store, llmClient)

	answer := svc.AnswerQuery(context.Background(), "user_1", model.ChatRequest{Query: "what is this?"})
	require.Equal(t, "I couldn't find relevant information in your documents.", answer)
	require.Zero(t, llmClient.completeCalls, "no chat model call without grounding context")
}

func TestAnswerQueryHappyPath(t *testing.T) {
	setupChatConfig(t)
	embedder := &fakeEmbedder{}
	store := &fakeStore{
		matches: []vectorstore.Match{
			{ID: "1", Metadata: vectorstore.Metadata{Text: "chunk one", File: "a.pdf"}},
			{ID: "2", Metadata: vectorstore.Metadata{Text: "chunk two", File: "a.pdf"}},
		},
	}
	llmClient := &fakeLLM{answer: "**Hello** *world*"}
	svc := newTestChatService(embedder, store, llmClient)

	answer := svc.AnswerQuery(context.Background(), "user_1", model.ChatRequest{Query: "hi"})
	require.Equal(t, "<strong>Hello</strong> <em>world</em>", answer)

	require.Equal(t, 5, store.gotTopK)
	require.Equal(t, "user_1", store.gotNS)

	require.Len(t, llmClient.gotMessages, 2)
	require.Equal(t, "system", llmClient.gotMessages[0].Role)
	require.Contains(t, llmClient.gotMessages[0].Content, "chunk one\nchunk two")
	require.Contains(t, llmClient.gotMessages[0].Content, "I don't know based on the document.")
	require.Equal(t, "user", llmClient.gotMessages[1].Role)
	require.Equal(t, "hi", llmClient.gotMessages[1].Content)
}

func TestAnswerQuerySelectedFileFilter(t *testing.T) {
	setupChatConfig(t)
	embedder := &fakeEmbedder{}
	store := &fakeStore{
		matches: []vectorstore.Match{
			{ID: "1", Metadata: vectorstore.Metadata{Text: "from a", File: "a.pdf"}},
			{ID: "2", Metadata: vectorstore.Metadata{Text: "from b", File: "b.pdf"}},
			{ID: "3", Metadata: vectorstore.Metadata{File: "a.pdf"}}, // 无正文，跳过
		},
	}
	llmClient := &fakeLLM{answer: "ok"}
	svc := newTestChatService(embedder, store, llmClient)

	svc.AnswerQuery(context.Background(), "user_1", model.ChatRequest{Query: "q", SelectedFile: "a.pdf"})
	require.Contains(t, llmClient.gotMessages[0].Content, "from a")
	require.NotContains(t, llmClient.gotMessages[0].Content, "from b")

	// 所有匹配都被过滤掉时等价于无检索结果
	llmClient2 := &fakeLLM{answer: "ok"}
	svc2 := newTestChatService(&fakeEmbedder{}, store, llmClient2)
	answer := svc2.AnswerQuery(context.Background(), "user_1", model.ChatRequest{Query: "q", SelectedFile: "missing.pdf"})
	require.Equal(t, "I couldn't find relevant information in your documents.", answer)
	require.Zero(t, llmClient2.completeCalls)
}

func TestAnswerQueryUpstreamErrors(t *testing.T) {
	setupChatConfig(t)
	fallback := "An error occurred while generating the answer. Please try again."

	// embedding 失败
	embedder := &fakeEmbedder{err: errors.New("quota exceeded")}
	store := &fakeStore{}
	svc := newTestChatService(embedder, store, &fakeLLM{})
	answer := svc.AnswerQuery(context.Background(), "user_1", model.ChatRequest{Query: "q"})
	require.Equal(t, fallback, answer)
	require.Zero(t, store.queryCalls)

	// 向量检索失败
	svc = newTestChatService(&fakeEmbedder{}, &fakeStore{err: errors.New("index down")}, &fakeLLM{})
	answer = svc.AnswerQuery(context.Background(), "user_1", model.ChatRequest{Query: "q"})
	require.Equal(t, fallback, answer)

	// 聊天模型失败
	store = &fakeStore{matches: []vectorstore.Match{{ID: "1", Metadata: vectorstore.Metadata{Text: "ctx", File: "a"}}}}
	svc = newTestChatService(&fakeEmbedder{}, store, &fakeLLM{completeErr: errors.New("500")})
	answer = svc.AnswerQuery(context.Background(), "user_1", model.ChatRequest{Query: "q"})
	require.Equal(t, fallback, answer)
}

func streamToSlice(t *testing.T, svc ChatService, namespace string, req model.ChatRequest) []string {
	t.Helper()
	var out []string
	err := svc.StreamAnswer(context.Background(), namespace, req, func(fragment string) error {
		out = append(out, fragment)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestStreamAnswerWordBoundaries(t *testing.T) {
	setupChatConfig(t)
	store := &fakeStore{matches: []vectorstore.Match{{ID: "1", Metadata: vectorstore.Metadata{Text: "ctx", File: "a"}}}}
	llmClient := &fakeLLM{fragments: []string{"The qui", "ck bro", "wn fox"}}
	svc := newTestChatService(&fakeEmbedder{}, store, llmClient)

	out := streamToSlice(t, svc, "user_1", model.ChatRequest{Query: "q"})
	require.Equal(t, "The quick brown fox", strings.Join(out, ""))
	for i, f := range out {
		if i < len(out)-1 {
			require.True(t, strings.HasSuffix(f, " "), "fragment %q not boundary aligned", f)
		}
	}
}

func TestStreamAnswerTerminalConditions(t *testing.T) {
	setupChatConfig(t)

	// 空问题：单个固定片段
	svc := newTestChatService(&fakeEmbedder{}, &fakeStore{}, &fakeLLM{})
	out := streamToSlice(t, svc, "user_1", model.ChatRequest{Query: "  "})
	require.Equal(t, []string{"Please enter a valid question."}, out)

	// 无检索结果：单个固定片段，不建立模型流
	llmClient := &fakeLLM{}
	svc = newTestChatService(&fakeEmbedder{}, &fakeStore{}, llmClient)
	out = streamToSlice(t, svc, "user_1", model.ChatRequest{Query: "q"})
	require.Equal(t, []string{"I couldn't find relevant information in your documents."}, out)
	require.Zero(t, llmClient.streamCalls)

	// 建立流失败：单个回退片段
	store := &fakeStore{matches: []vectorstore.Match{{ID: "1", Metadata: vectorstore.Metadata{Text: "ctx", File: "a"}}}}
	svc = newTestChatService(&fakeEmbedder{}, store, &fakeLLM{streamOpenErr: errors.New("dial failed")})
	out = streamToSlice(t, svc, "user_1", model.ChatRequest{Query: "q"})
	require.Equal(t, []string{"An error occurred while generating the answer. Please try again."}, out)
}

func TestStreamAnswerMidStreamError(t *testing.T) {
	setupChatConfig(t)
	store := &fakeStore{matches: []vectorstore.Match{{ID: "1", Metadata: vectorstore.Metadata{Text: "ctx", File: "a"}}}}
	llmClient := &fakeLLM{
		fragments: []string{"partial answer "},
		streamErr: errors.New("connection reset"),
	}
	svc := newTestChatService(&fakeEmbedder{}, store, llmClient)

	out := streamToSlice(t, svc, "user_1", model.ChatRequest{Query: "q"})
	// 可见序列以回退片段收尾
	require.NotEmpty(t, out)
	require.Equal(t, "An error occurred while generating the answer. Please try again.", out[len(out)-1])
}
