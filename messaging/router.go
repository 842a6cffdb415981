package messaging

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// HandlerFunc answers one message. The returned value is sent back as the
// reply.
type HandlerFunc func(ctx context.Context, msg Message) (any, error)

// Router dispatches messages to the handler registered for their action.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRouter creates an empty dispatch table.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register sets the handler for action, replacing any previous one.
func (r *Router) Register(action string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = fn
}

// Handle registers a handler typed on the concrete message.
func Handle[T Message](r *Router, fn func(ctx context.Context, msg T) (any, error)) {
	var zero T
	r.Register(zero.Action(), func(ctx context.Context, msg Message) (any, error) {
		typed, ok := msg.(T)
		if !ok {
			return nil, fmt.Errorf("unexpected message type %T for %s", msg, zero.Action())
		}
		return fn(ctx, typed)
	})
}

// Has reports whether a handler is registered for action.
func (r *Router) Has(action string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[action]
	return ok
}

// Dispatch runs the handler for msg. It never fails: errors, panics and
// unknown actions become an ErrorResponse.
func (r *Router) Dispatch(ctx context.Context, msg Message) (resp any) {
	r.mu.RLock()
	fn, ok := r.handlers[msg.Action()]
	r.mu.RUnlock()
	if !ok {
		return ErrorResponse{Error: fmt.Sprintf("%v: %s", ErrUnknownAction, msg.Action())}
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("❌ Panic handling %s: %v", msg.Action(), rec)
			resp = ErrorResponse{Error: fmt.Sprint(rec)}
		}
	}()

	out, err := fn(ctx, msg)
	if err != nil {
		log.Printf("❌ Error handling %s: %v", msg.Action(), err)
		return ErrorResponse{Error: err.Error()}
	}
	if out == nil {
		return Ack{}
	}
	return out
}
