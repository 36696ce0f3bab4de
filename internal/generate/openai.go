/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package generate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	DefaultOpenAIModel = "gpt-4o-mini"

	systemPrompt = "You are a trivia expert. Generate accurate, well-researched lists in JSON format only."

	maxCompletionTokens = 8000
	maxEventLine        = 1 << 20
	maxErrorBody        = 512
)

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	Temperature         float32       `json:"temperature"`
	MaxCompletionTokens int           `json:"max_completion_tokens"`
	Stream              bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *chatError `json:"error,omitempty"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *chatError `json:"error,omitempty"`
}

type chatError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// OpenAI talks to a chat completions endpoint over plain HTTP. It is safe
// for concurrent use.
type OpenAI struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	return NewOpenAIWithConfig(apiKey, model, DefaultOpenAIURL)
}

// NewOpenAIWithConfig points the client at baseURL, which is useful for
// compatible servers and for tests.
func NewOpenAIWithConfig(apiKey, model, baseURL string) *OpenAI {
	if model == "" {
		model = DefaultOpenAIModel
	}

	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}

	return &OpenAI{
		// Streams are bounded by the caller's context, not a client timeout.
		httpClient: &http.Client{Timeout: 0},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

func (o *OpenAI) String() string {
	return "openai/" + o.model
}

func (o *OpenAI) post(ctx context.Context, prompt string, stream bool) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:         0.7,
		MaxCompletionTokens: maxCompletionTokens,
		Stream:              stream,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	return resp, nil
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	started := time.Now()

	resp, err := o.post(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %w", ErrUpstream, err)
	}

	if out.Error != nil {
		return "", fmt.Errorf("%w: %s: %s", ErrUpstream, out.Error.Type, out.Error.Message)
	}

	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices after %s", ErrUpstream, time.Since(started).Round(time.Millisecond))
	}

	return out.Choices[0].Message.Content, nil
}

// Stream requests a streamed completion and yields each content delta.
// Server-sent event lines other than "data:" are skipped and "[DONE]" ends
// the stream. Breaking out of the loop closes the connection.
func (o *OpenAI) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := o.post(ctx, prompt, true)
		if err != nil {
			yield("", err)

			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64<<10), maxEventLine)

		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data:")
			if !ok {
				continue
			}

			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				return
			}

			var chunk chatChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}

			if chunk.Error != nil {
				yield("", fmt.Errorf("%w: %s: %s", ErrUpstream, chunk.Error.Type, chunk.Error.Message))

				return
			}

			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}

			if !yield(chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}

			yield("", fmt.Errorf("%w: reading stream: %w", ErrUpstream, err))
		}
	}
}
