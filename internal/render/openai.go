package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAIConfig configures the OpenAI responses endpoint and HTTP behavior.
type OpenAIConfig struct {
	ResponsesURL string
	APIKey       string
	Model        string
	HTTPClient   *http.Client
}

type openAIGenerator struct {
	cfg OpenAIConfig
}

// NewOpenAIGenerator builds a generator backed by the OpenAI responses
// endpoint.
func NewOpenAIGenerator(cfg OpenAIConfig) Generator {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.ResponsesURL) == "" {
		cfg.ResponsesURL = "https://api.openai.com/v1/responses"
	}
	return &openAIGenerator{cfg: cfg}
}

func (g *openAIGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	apiKey := strings.TrimSpace(g.cfg.APIKey)
	model := strings.TrimSpace(g.cfg.Model)
	if apiKey == "" {
		return Response{}, fmt.Errorf("api key is required")
	}
	if model == "" {
		return Response{}, fmt.Errorf("model is required")
	}

	prompt, err := buildPrompt(req)
	if err != nil {
		return Response{}, fmt.Errorf("build prompt: %w", err)
	}
	requestBody, err := json.Marshal(map[string]any{
		"model": model,
		"input": prompt,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal generate request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.ResponsesURL, bytes.NewReader(requestBody))
	if err != nil {
		return Response{}, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Credential material is sent only as an Authorization header and is never
	// echoed in errors or response payloads.
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := g.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("generate request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return Response{}, fmt.Errorf("read generate error body: %w", err)
		}
		return Response{}, fmt.Errorf("generate request status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		OutputText string `json:"output_text"`
		Output     []struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return Response{}, fmt.Errorf("decode generate response: %w", err)
	}
	outputText := strings.TrimSpace(payload.OutputText)
	if outputText == "" {
		for _, item := range payload.Output {
			for _, content := range item.Content {
				if strings.TrimSpace(content.Text) != "" {
					outputText = strings.TrimSpace(content.Text)
					break
				}
			}
			if outputText != "" {
				break
			}
		}
	}
	if outputText == "" {
		return Response{}, fmt.Errorf("generate response missing output text")
	}
	return Response{Narrative: outputText}, nil
}

// buildPrompt serializes the block's structural fields and the story state
// into the instruction sent to the model. Only strictly-prior context is in
// the request by construction.
func buildPrompt(req Request) (string, error) {
	structure, err := json.Marshal(req.Block)
	if err != nil {
		return "", err
	}
	state, err := json.Marshal(req.State)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Write a short narrative paragraph for the next segment of a ")
	b.WriteString("basketball game recap. Use only the structural facts and the ")
	b.WriteString("running story context below. Do not reference anything that ")
	b.WriteString("happens after this segment.\n\nSegment: ")
	b.Write(structure)
	b.WriteString("\n\nStory so far: ")
	b.Write(state)
	return b.String(), nil
}
