package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// embeddingRequest/Response mirror the OpenAI-compatible embeddings API
// shape.
type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingDatum struct {
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Data []embeddingDatum `json:"data"`
}

// HTTPService calls an OpenAI-compatible /embeddings endpoint.
type HTTPService struct {
	client *http.Client
	host   string
	apiKey string
	model  string
}

// NewHTTPService returns a Service backed by an HTTP embeddings endpoint.
func NewHTTPService(client *http.Client, host, apiKey, model string) *HTTPService {
	if client == nil {
		client = http.DefaultClient
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &HTTPService{client: client, host: host, apiKey: apiKey, model: model}
}

// EmbedText posts a single-text embedding request and returns the resulting
// vector.
func (s *HTTPService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	body, err := json.Marshal(embeddingRequest{Model: s.model, Input: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}
	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embeddings endpoint returned no data")
	}
	return parsed.Data[0].Embedding, nil
}

var _ Service = (*HTTPService)(nil)
