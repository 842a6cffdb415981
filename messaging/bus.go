package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Bus delivers requests to the background and broadcasts events.
type Bus interface {
	// Send delivers msg and decodes the reply into reply.
	Send(ctx context.Context, msg Message, reply any) error
	// Publish broadcasts msg without waiting for any reply.
	Publish(ctx context.Context, msg Message)
}

// LocalBus connects contexts living in the same process.
type LocalBus struct {
	router *Router

	mu          sync.Mutex
	subscribers map[string]map[int]func(Message)
	nextID      int
}

// NewLocalBus creates a bus delivering messages to router.
func NewLocalBus(router *Router) *LocalBus {
	return &LocalBus{
		router:      router,
		subscribers: make(map[string]map[int]func(Message)),
	}
}

// Send dispatches msg through the router. Replies round-trip through JSON
// so callers see the same shapes as over HTTP.
func (b *LocalBus) Send(ctx context.Context, msg Message, reply any) error {
	resp := b.router.Dispatch(ctx, msg)
	if reply == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode reply to %s: %w", msg.Action(), err)
	}
	if err := json.Unmarshal(data, reply); err != nil {
		return fmt.Errorf("failed to decode reply to %s: %w", msg.Action(), err)
	}
	return nil
}

// Publish calls every subscriber of msg's action.
func (b *LocalBus) Publish(_ context.Context, msg Message) {
	b.mu.Lock()
	var fns []func(Message)
	for _, fn := range b.subscribers[msg.Action()] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

// Subscribe registers fn for broadcasts of action. The returned function
// removes the subscription.
func (b *LocalBus) Subscribe(action string, fn func(Message)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[action] == nil {
		b.subscribers[action] = make(map[int]func(Message))
	}
	id := b.nextID
	b.nextID++
	b.subscribers[action][id] = fn
	return func() {
		b.mu.Lock()
		delete(b.subscribers[action], id)
		b.mu.Unlock()
	}
}

// MessagesPath is where the HTTP transport accepts messages.
const MessagesPath = "/api/v1/messages"

// HTTPBus sends messages to a remote background service.
type HTTPBus struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPBus creates a bus posting to the service at baseURL.
func NewHTTPBus(baseURL string, timeout time.Duration) *HTTPBus {
	return &HTTPBus{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBus) Send(ctx context.Context, msg Message, reply any) error {
	body, err := Encode(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+MessagesPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Action(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read reply to %s: %w", msg.Action(), err)
	}
	if resp.StatusCode != http.StatusOK {
		var e ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("failed to send %s: %s", msg.Action(), e.Error)
		}
		return fmt.Errorf("failed to send %s: status %d", msg.Action(), resp.StatusCode)
	}
	if reply == nil {
		return nil
	}
	if err := json.Unmarshal(data, reply); err != nil {
		return fmt.Errorf("failed to decode reply to %s: %w", msg.Action(), err)
	}
	return nil
}

func (b *HTTPBus) Publish(ctx context.Context, msg Message) {
	if err := b.Send(ctx, msg, nil); err != nil {
		log.Printf("⚠️ Failed to publish %s: %v", msg.Action(), err)
	}
}
