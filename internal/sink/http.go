package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cardbridge/stream-renderer/internal/model"
)

// HTTPSink posts card documents to a chat-platform bridge over JSON.
type HTTPSink struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPSink creates a sink for the bridge at baseURL.
func NewHTTPSink(baseURL, token string, timeout time.Duration) (*HTTPSink, error) {
	if baseURL == "" {
		return nil, errors.New("sink base URL is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type sendRequest struct {
	ChatID string   `json:"chat_id"`
	Banner string   `json:"banner,omitempty"`
	Blocks []string `json:"blocks"`
}

type sendResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// SendArtifact creates a new artifact.
func (s *HTTPSink) SendArtifact(ctx context.Context, chatID string, doc *model.Document) (string, error) {
	body := sendRequest{ChatID: chatID, Banner: doc.Banner, Blocks: doc.Blocks}
	var resp sendResponse
	if err := s.do(ctx, http.MethodPost, s.baseURL+"/v1/artifacts", body, &resp); err != nil {
		return "", fmt.Errorf("send artifact: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("send artifact: %s", resp.Error)
	}
	if resp.ID == "" {
		return "", errors.New("send artifact: bridge returned no ID")
	}
	return resp.ID, nil
}

// UpdateArtifact replaces an artifact's content in place.
func (s *HTTPSink) UpdateArtifact(ctx context.Context, artifactID string, doc *model.Document) error {
	body := sendRequest{Banner: doc.Banner, Blocks: doc.Blocks}
	var resp sendResponse
	if err := s.do(ctx, http.MethodPut, s.baseURL+"/v1/artifacts/"+artifactID, body, &resp); err != nil {
		return fmt.Errorf("update artifact %s: %w", artifactID, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("update artifact %s: %s", artifactID, resp.Error)
	}
	return nil
}

// DeleteArtifact removes an artifact.
func (s *HTTPSink) DeleteArtifact(ctx context.Context, artifactID string) error {
	if err := s.do(ctx, http.MethodDelete, s.baseURL+"/v1/artifacts/"+artifactID, nil, nil); err != nil {
		return fmt.Errorf("delete artifact %s: %w", artifactID, err)
	}
	return nil
}

func (s *HTTPSink) do(ctx context.Context, method, url string, in, out any) error {
	var reqBody *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bridge returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
