package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// DefaultGeminiBaseURL is the Generative Language API host.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "gemini-flash-latest"
)

// Service generates text for a prompt.
type Service interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiService calls the Gemini generateContent endpoint.
type GeminiService struct {
	BaseURL string
	Model   string
	APIKey  string
	Client  *http.Client
}

// NewGeminiService creates a Gemini client with optional proxy support.
func NewGeminiService(baseURL, model, apiKey, proxyURL string, timeout time.Duration) *GeminiService {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiService{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout, Transport: transport},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

// Generate sends the prompt and returns the first candidate's text.
func (g *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.BaseURL, url.PathEscape(g.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.APIKey)

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ServiceError{
			StatusCode: resp.StatusCode,
			Status:     gjson.GetBytes(respBody, "error.status").String(),
			Message:    gjson.GetBytes(respBody, "error.message").String(),
		}
	}

	text := gjson.GetBytes(respBody, "candidates.0.content.parts.#.text")
	var b strings.Builder
	for _, part := range text.Array() {
		b.WriteString(part.String())
	}
	if b.Len() == 0 {
		reason := gjson.GetBytes(respBody, "promptFeedback.blockReason").String()
		if reason == "" {
			reason = gjson.GetBytes(respBody, "candidates.0.finishReason").String()
		}
		return "", errors.New("gemini returned no text: " + reason)
	}
	return b.String(), nil
}
