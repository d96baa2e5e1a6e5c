package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cdmsuite/config"
)

// SMSClient posts sequence SMS steps to the configured gateway.
type SMSClient struct {
	client *http.Client
}

func NewSMSClient() *SMSClient {
	return &SMSClient{client: &http.Client{Timeout: 15 * time.Second}}
}

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
}

// Send delivers one SMS and returns the gateway's message ID when available.
func (s *SMSClient) Send(ctx context.Context, to, body string) (string, error) {
	if config.AppConfig.SMSGatewayURL == "" {
		return "", fmt.Errorf("sms gateway is not configured")
	}

	payload, err := json.Marshal(smsRequest{To: to, Body: body})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.AppConfig.SMSGatewayURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+config.AppConfig.SMSAPIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	}

	var parsed smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", nil // delivered, gateway response just wasn't parseable
	}
	return parsed.MessageID, nil
}
