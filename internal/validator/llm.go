package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const llmPrompt = `You are reviewing an automated trading signal. Reply with a JSON object
{"accepted": bool, "confidence": number 0-100, "comment": string} and nothing else.`

// LLMValidator asks a chat-completions endpoint for a second opinion.
type LLMValidator struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// NewLLMValidator creates a validator against an OpenAI-compatible endpoint.
func NewLLMValidator(url, apiKey, model string) *LLMValidator {
	return &LLMValidator{
		url:    url,
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Validate sends the summary and parses the model's JSON verdict.
func (v *LLMValidator) Validate(ctx context.Context, s Summary) (Verdict, error) {
	summary, err := json.Marshal(s)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: marshal summary: %v", ErrUnavailable, err)
	}

	body, err := json.Marshal(chatRequest{
		Model: v.model,
		Messages: []chatMessage{
			{Role: "system", Content: llmPrompt},
			{Role: "user", Content: string(summary)},
		},
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("%w: validator returned %d", ErrUnavailable, resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return Verdict{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(chat.Choices) == 0 {
		return Verdict{}, fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("%w: unparseable verdict: %v", ErrUnavailable, err)
	}

	log.Debug().
		Bool("accepted", verdict.Accepted).
		Float64("confidence", verdict.Confidence).
		Str("comment", verdict.Comment).
		Msg("🤖 Validator verdict")

	return verdict, nil
}
