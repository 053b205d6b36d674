package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one turn in an agent's per-article chat history.
type Message struct {
	Role    string // "system", "user", or "assistant"
	Content string
}

// Request describes a single structured-output generation call.
type Request struct {
	Model       string
	History     []Message
	Prompt      string
	Schema      string // JSON schema describing the expected structured output
	Temperature float64
	MaxTokens   int
}

// Response is the engine's raw answer. Text is expected to be JSON
// matching the request's Schema; callers are responsible for decoding it
// and deciding whether a failure is retryable.
type Response struct {
	Text string
}

// Engine is the read-only abstraction over an LLM backend.
// Implementations own their own transport, authentication, and model
// routing.
type Engine interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// HTTPEngine is an HTTP-based Engine implementation speaking the Ollama
// chat shape: it POSTs the chat history to {baseURL}/api/chat and carries
// the structured-output schema in Ollama's "format" field. It does not
// speak the OpenAI /chat/completions shape or its response_format field.
type HTTPEngine struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPEngine creates an HTTPEngine pointed at baseURL (e.g.
// "http://localhost:11434" for Ollama, or a gateway serving the same
// /api/chat shape).
func NewHTTPEngine(baseURL, apiKey string, timeout time.Duration) *HTTPEngine {
	return &HTTPEngine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Format      string        `json:"format,omitempty"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChunk struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Generate implements Engine by POSTing to {baseURL}/api/chat with a
// "format" field carrying the requested JSON schema.
func (e *HTTPEngine) Generate(ctx context.Context, req Request) (Response, error) {
	messages := make([]chatMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Format:      req.Schema,
		Stream:      true,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm engine: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("llm engine: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("llm engine: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Response{}, fmt.Errorf("llm engine: status %d: %s", resp.StatusCode, string(respBody))
	}

	var sb strings.Builder
	decoder := json.NewDecoder(resp.Body)
	for decoder.More() {
		var chunk chatChunk
		if err := decoder.Decode(&chunk); err != nil {
			if sb.Len() > 0 {
				break
			}
			return Response{}, fmt.Errorf("llm engine: decode chunk: %w", err)
		}
		sb.WriteString(chunk.Message.Content)
		if chunk.Done {
			break
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Response{}, fmt.Errorf("llm engine: empty response")
	}
	return Response{Text: text}, nil
}
