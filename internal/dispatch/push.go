package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/carpool/internal/events"
)

// Notifier delivers one lifecycle event to one user.
type Notifier interface {
	Notify(userID string, ev events.Event) error
}

// PushDispatcher tries the WS registry first and falls back to posting the
// event to an external push provider endpoint.
type PushDispatcher struct {
	Endpoint string
	Client   *http.Client
	WS       *WSRegistry
}

func NewPushDispatcher(endpoint string, ws *WSRegistry) *PushDispatcher {
	return &PushDispatcher{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws}
}

func (p *PushDispatcher) Notify(userID string, ev events.Event) error {
	if p.WS != nil {
		if err := p.WS.Notify(userID, ev); err == nil {
			return nil
		}
	}
	if p.Endpoint == "" {
		return ErrNoSession
	}
	body, err := json.Marshal(map[string]any{"user_id": userID, "event": ev})
	if err != nil {
		return err
	}
	resp, err := p.Client.Post(p.Endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
	return nil
}
