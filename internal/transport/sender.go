package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Sender is the outbound send primitive. The channel protocol client lives
// outside this service; implementations are assumed at-least-once and may
// fail transiently.
type Sender interface {
	SendMessage(ctx context.Context, sessionID string, contactNumber string, body string, mediaURL string) (messageRef string, err error)
}

// HTTPSender forwards sends to an external transport gateway.
type HTTPSender struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPSender(baseURL, token string) *HTTPSender {
	return &HTTPSender{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{},
	}
}

type sendPayload struct {
	SessionID string `json:"session_id"`
	To        string `json:"to"`
	Body      string `json:"body"`
	MediaURL  string `json:"media_url,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func (s *HTTPSender) SendMessage(ctx context.Context, sessionID, contactNumber, body, mediaURL string) (string, error) {
	payload := sendPayload{
		SessionID: sessionID,
		To:        contactNumber,
		Body:      body,
		MediaURL:  mediaURL,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("transport returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result sendResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("invalid transport response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("transport error: %s", result.Error)
	}

	return result.MessageID, nil
}
