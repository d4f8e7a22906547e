package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient runs entries through an OpenAI assistant: create a thread, post
// the entry, start a run, poll it and read the assistant's reply.
type OpenAIClient struct {
	APIKey       string
	AssistantID  string
	Model        string
	BaseURL      string
	PollInterval time.Duration
	HTTP         *http.Client
	Logger       *zap.Logger
}

func NewOpenAIClient(apiKey, assistantID string) *OpenAIClient {
	return &OpenAIClient{
		APIKey:       apiKey,
		AssistantID:  assistantID,
		BaseURL:      defaultOpenAIBaseURL,
		PollInterval: 700 * time.Millisecond,
		HTTP:         http.DefaultClient,
		Logger:       zap.NewNop(),
	}
}

func (c *OpenAIClient) Analyze(ctx context.Context, req Request) (*Result, error) {
	text, err := c.runAssistant(ctx, BuildUserPrompt(req))
	if err != nil {
		return nil, err
	}
	return decodeOutput(text, req, "openai")
}

func (c *OpenAIClient) runAssistant(ctx context.Context, prompt string) (string, error) {

	// -------------------------------
	// 1. Create Thread
	// -------------------------------
	var thread struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/threads", map[string]any{}, &thread); err != nil {
		return "", fmt.Errorf("openai: create thread: %w", err)
	}

	// -------------------------------
	// 2. Add message to thread
	// -------------------------------
	msg := map[string]any{
		"role":    "user",
		"content": prompt,
	}
	if err := c.call(ctx, http.MethodPost, "/threads/"+thread.ID+"/messages", msg, nil); err != nil {
		return "", fmt.Errorf("openai: add message: %w", err)
	}

	// -------------------------------
	// 3. Run the assistant
	// -------------------------------
	runBody := map[string]any{
		"assistant_id": c.AssistantID,
		"instructions": scheduleSystemPrompt,
	}
	if c.Model != "" {
		runBody["model"] = c.Model
	}
	var run struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/threads/"+thread.ID+"/runs", runBody, &run); err != nil {
		return "", fmt.Errorf("openai: start run: %w", err)
	}

	// -------------------------------
	// 4. Poll result
	// -------------------------------
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		var check struct {
			Status    string `json:"status"`
			LastError *struct {
				Message string `json:"message"`
			} `json:"last_error"`
		}
		if err := c.call(ctx, http.MethodGet, "/threads/"+thread.ID+"/runs/"+run.ID, nil, &check); err != nil {
			return "", fmt.Errorf("openai: poll run: %w", err)
		}

		switch check.Status {
		case "completed":
		case "queued", "in_progress", "cancelling":
			continue
		default:
			reason := check.Status
			if check.LastError != nil {
				reason += ": " + check.LastError.Message
			}
			c.Logger.Warn("assistant run ended", zap.String("run_id", run.ID), zap.String("status", reason))
			return "", fmt.Errorf("openai: run %s", reason)
		}
		break
	}

	// -------------------------------
	// 5. Fetch messages
	// -------------------------------
	var msgs struct {
		Data []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text struct {
					Value string `json:"value"`
				} `json:"text"`
			} `json:"content"`
		} `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, "/threads/"+thread.ID+"/messages?order=desc", nil, &msgs); err != nil {
		return "", fmt.Errorf("openai: list messages: %w", err)
	}

	for _, m := range msgs.Data {
		if m.Role != "assistant" {
			continue
		}
		for _, part := range m.Content {
			if part.Type == "text" && part.Text.Value != "" {
				return part.Text.Value, nil
			}
		}
	}

	return "", fmt.Errorf("openai: assistant did not return text")
}

func (c *OpenAIClient) call(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", res.StatusCode, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
