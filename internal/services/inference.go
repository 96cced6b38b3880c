package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatrelay/internal/conversation"
)

const defaultBaseURL = "https://api-inference.huggingface.co/models"

// GenerationParams are forwarded to the text-generation backend.
type GenerationParams struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
}

type inferenceRequest struct {
	Inputs     string           `json:"inputs"`
	Parameters GenerationParams `json:"parameters"`
}

type inferenceResponse struct {
	GeneratedText string `json:"generated_text"`
}

// InferenceService calls the Hugging Face hosted text-generation API.
type InferenceService struct {
	apiKey     string
	model      string
	params     GenerationParams
	baseURL    string
	httpClient *http.Client
	rateChan   chan struct{} // Token bucket
}

func NewInferenceService(apiKey, model string, params GenerationParams, timeout time.Duration, concurrentReqs int) *InferenceService {
	// Token bucket for bounding concurrent backend calls
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &InferenceService{
		apiKey:     apiKey,
		model:      model,
		params:     params,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
		rateChan:   rateChan,
	}
}

// SetBaseURL overrides the backend endpoint. Used in tests.
func (s *InferenceService) SetBaseURL(url string) {
	s.baseURL = url
}

// acquireRate blocks until a rate slot is available
func (s *InferenceService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for inference rate slot")
	}
}

func (s *InferenceService) releaseRate() {
	s.rateChan <- struct{}{}
}

// Generate sends the rendered conversation context to the backend and
// returns the raw generated text, which may be empty. Any transport
// error, non-2xx status, or undecodable body is returned as an error; no
// retries are attempted.
func (s *InferenceService) Generate(ctx context.Context, prompt string) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	body, err := json.Marshal(inferenceRequest{
		Inputs:     prompt,
		Parameters: s.params,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode inference request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", s.baseURL, s.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build inference request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read inference response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return "", fmt.Errorf("inference backend returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return "", fmt.Errorf("inference backend returned %d", resp.StatusCode)
	}

	return decodeGeneratedText(respBody)
}

// decodeGeneratedText accepts both response shapes the API serves: a
// JSON array of candidates and a bare object.
func decodeGeneratedText(body []byte) (string, error) {
	var candidates []inferenceResponse
	if err := json.Unmarshal(body, &candidates); err == nil {
		if len(candidates) == 0 {
			return "", nil
		}
		return candidates[0].GeneratedText, nil
	}

	var single inferenceResponse
	if err := json.Unmarshal(body, &single); err != nil {
		return "", fmt.Errorf("failed to decode inference response: %w", err)
	}
	return single.GeneratedText, nil
}

// ExtractReply isolates the newly generated bot turn from text that may
// echo the input context. The reply is everything after the first
// marker, trimmed; text without a marker is returned unchanged. Total
// for every input, including the empty string.
func ExtractReply(generatedText string) string {
	idx := strings.Index(generatedText, conversation.ContextMarker)
	if idx < 0 {
		return generatedText
	}
	return strings.TrimSpace(generatedText[idx+len(conversation.ContextMarker):])
}
