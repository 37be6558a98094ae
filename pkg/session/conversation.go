package session

import (
	"MedicChat/models"
	"context"
	"fmt"
	"sync"
)

// Conversation is a View kept current by a relay subscription.
type Conversation struct {
	View *View
	sub  *Subscription
}

// Open joins the relay before fetching history. Broadcasts that arrive
// while the history request is in flight are buffered and replayed through
// View.Apply afterwards, so a message is neither lost in the gap nor shown
// twice. onMessage (optional) sees every message Apply accepts; onError
// (optional) sees chat error frames.
func (c *Client) Open(ctx context.Context, customerID uint, onMessage func(models.Message), onError func(ChatError)) (*Conversation, error) {
	view := NewView(customerID)

	var (
		mu      sync.Mutex
		loaded  bool
		pending []models.Message
	)
	deliver := func(m models.Message) {
		if view.Apply(m) && onMessage != nil {
			onMessage(m)
		}
	}

	sub, err := c.Subscribe(ctx, func(ev Event) {
		if ev.Err != nil {
			if onError != nil {
				onError(*ev.Err)
			}
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if !loaded {
			pending = append(pending, ev.Message)
			return
		}
		deliver(ev.Message)
	})
	if err != nil {
		return nil, err
	}

	history, err := c.History(ctx, customerID)
	if err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("load history: %w", err)
	}

	mu.Lock()
	view.Load(history)
	for _, m := range pending {
		deliver(m)
	}
	pending = nil
	loaded = true
	mu.Unlock()

	return &Conversation{View: view, sub: sub}, nil
}

// Emit sends through the realtime path of this conversation's connection.
func (cv *Conversation) Emit(ctx context.Context, in models.MessageInput) error {
	if in.CustomerID == 0 {
		in.CustomerID = models.CustomerID(cv.View.CustomerID)
	}
	return cv.sub.Emit(ctx, in)
}

func (cv *Conversation) Done() <-chan struct{} { return cv.sub.Done() }

func (cv *Conversation) Close() error { return cv.sub.Close() }
