package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NotificationClient pushes moderation events to the notification service
type NotificationClient interface {
	Push(ctx context.Context, recipients []uint64, actorID uint64, eventType string, payload map[string]string) error
}

type notificationClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewNotificationClient creates a new notification service client
func NewNotificationClient(baseURL string) NotificationClient {
	return &notificationClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type pushRequest struct {
	Recipients []uint64          `json:"recipients"`
	ActorID    uint64            `json:"actor_id"`
	EventType  string            `json:"event_type"`
	Payload    map[string]string `json:"payload"`
}

// Push sends a notification. Delivery (email, on-site, digest) is the
// notification service's concern.
func (c *notificationClient) Push(ctx context.Context, recipients []uint64, actorID uint64, eventType string, payload map[string]string) error {
	body, err := json.Marshal(pushRequest{
		Recipients: recipients,
		ActorID:    actorID,
		EventType:  eventType,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/notifications", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call notification service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notification service returned %s: %s", resp.Status, string(respBody))
	}
	return nil
}
