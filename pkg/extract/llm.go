package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eventhint/eventhint/pkg/event"
	"github.com/eventhint/eventhint/pkg/logging"
)

const llmSystemPrompt = `You are an expert at extracting calendar events and tasks from text.

Extract events/tasks and return them as JSON matching this schema:
{
  "events": [
    {
      "type": "event" | "task",
      "title": "string",
      "start": "ISO-8601 datetime",
      "end": "ISO-8601 datetime or null",
      "allday": boolean,
      "timezone": "IANA timezone (default: Europe/Budapest)",
      "location": "string or null",
      "online_url": "string or null",
      "notes": "string or null",
      "attendees": [{"name": "", "email": ""}],
      "reminders": [{"method": "popup", "minutes": 30}],
      "labels": ["exam", "meeting", "deadline", etc.]
    }
  ]
}

Rules:
- Honor locales: if date like "2025.11.04." and time "8 óra 50 perc", use Europe/Budapest timezone
- Extract ALL events you find, not just one
- If time is ambiguous, note it in "notes"
- Never invent locations - only extract if explicitly mentioned
- For exams, add smart reminders: -1 day, -2 hours, -30 minutes
- For flights, add: -24h (check-in), -3h, -1h
- Return empty array if no events found
`

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// LLMContext carries optional hints included in the user prompt.
type LLMContext struct {
	Sender   string `json:"sender,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// LLMExtractor calls an OpenAI-compatible chat completion endpoint with
// a JSON response format. It is strictly best-effort: every failure,
// from network errors to malformed output, yields an empty draft list.
// The deterministic path remains the floor.
type LLMExtractor struct {
	apiKey    string
	model     string
	maxTokens int
	enabled   bool
	baseURL   string
	client    *http.Client
	log       logging.Logger
}

// LLMConfig configures the LLM extractor.
type LLMConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Enabled   bool
	// BaseURL overrides the OpenAI endpoint, mainly for tests.
	BaseURL string
}

// NewLLMExtractor builds an extractor. A missing API key or a disabled
// flag results in an extractor that always returns empty.
func NewLLMExtractor(cfg LLMConfig, log logging.Logger) *LLMExtractor {
	if log == nil {
		log = logging.NewNopLogger()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &LLMExtractor{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		enabled:   cfg.Enabled,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 60 * time.Second},
		log:       log,
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type llmResult struct {
	Events []event.Draft `json:"events"`
}

// Extract asks the model for structured events. Never returns an error;
// failures are logged and produce an empty list.
func (x *LLMExtractor) Extract(ctx context.Context, text, timezone string, llmCtx *LLMContext) []event.Draft {
	if x.apiKey == "" {
		x.log.Debug("llm extraction skipped, no api key configured")
		return nil
	}
	if !x.enabled {
		x.log.Debug("llm extraction disabled")
		return nil
	}

	userPrompt := fmt.Sprintf("Extract calendar events from this text:\n\n%s", text)
	if llmCtx != nil {
		if ctxJSON, err := json.MarshalIndent(llmCtx, "", "  "); err == nil {
			userPrompt += fmt.Sprintf("\n\nContext: %s", ctxJSON)
		}
	}
	userPrompt += fmt.Sprintf("\n\nDefault timezone: %s", timezone)

	reqBody := chatRequest{
		Model: x.model,
		Messages: []chatMessage{
			{Role: "system", Content: llmSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0.1,
		MaxTokens:      x.maxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	content, err := x.complete(ctx, reqBody)
	if err != nil {
		x.log.Error("llm extraction failed", logging.Err(err))
		return nil
	}

	var result llmResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		x.log.Error("llm returned malformed json", logging.Err(err))
		return nil
	}

	for i := range result.Events {
		d := &result.Events[i]
		d.Method = event.MethodLLM
		suffix := "\n[Extracted by AI]"
		if d.Notes == nil {
			d.Notes = event.StrPtr(suffix)
		} else {
			d.Notes = event.StrPtr(*d.Notes + suffix)
		}
	}

	x.log.Info("llm extracted events", logging.F("count", len(result.Events)))
	return result.Events
}

func (x *LLMExtractor) complete(ctx context.Context, reqBody chatRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		x.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+x.apiKey)

	resp, err := x.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
