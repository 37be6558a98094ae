//go:generate go run go.uber.org/mock/mockgen -source=chat.go -destination=../../mocks/mock_broadcaster.go -package=mocks
package services

import (
	"MedicChat/models"
	"MedicChat/pkg/relay"
	"MedicChat/pkg/store"
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Broadcaster pushes an event to every connected realtime client.
type Broadcaster interface {
	Broadcast(event string, payload any) error
}

// ChatService is the one send path used by both the REST gateway and the
// realtime channel: validate, persist, then broadcast exactly once.
type ChatService struct {
	store store.Store
	relay Broadcaster
	log   zerolog.Logger

	slotsMu sync.Mutex
	slots   map[uint]*convSlot
}

type convSlot struct {
	sem  chan struct{}
	refs int
}

func NewChatService(st store.Store, b Broadcaster, log zerolog.Logger) *ChatService {
	return &ChatService{
		store: st,
		relay: b,
		log:   log.With().Str("component", "chat").Logger(),
		slots: make(map[uint]*convSlot),
	}
}

// Send persists the message and broadcasts the stored row. Nothing is
// broadcast when validation or the write fails, and an idempotent replay
// returns the original row without a second broadcast.
//
// Append and broadcast run under a per-conversation slot so that, within
// this process, clients see a conversation's messages in stored order.
func (s *ChatService) Send(ctx context.Context, in models.MessageInput) (models.Message, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return models.Message{}, err
	}

	release, err := s.acquire(ctx, uint(in.CustomerID))
	if err != nil {
		return models.Message{}, err
	}
	defer release()

	msg, created, err := s.store.Append(ctx, in)
	if err != nil {
		s.log.Error().Err(err).Uint("customer_id", uint(in.CustomerID)).Msg("append failed")
		return models.Message{}, err
	}
	if !created {
		s.log.Info().Uint("message_id", msg.ID).Uint("customer_id", msg.CustomerID).Msg("duplicate request id, replaying stored message")
		return msg, nil
	}

	if err := s.relay.Broadcast(relay.EventChatMessage, msg); err != nil {
		s.log.Error().Err(err).Uint("message_id", msg.ID).Msg("broadcast failed")
	}
	return msg, nil
}

// History returns the conversation in stored order.
func (s *ChatService) History(ctx context.Context, customerID uint) ([]models.Message, error) {
	return s.store.ListByConversation(ctx, customerID)
}

func (s *ChatService) acquire(ctx context.Context, customerID uint) (func(), error) {
	s.slotsMu.Lock()
	sl := s.slots[customerID]
	if sl == nil {
		sl = &convSlot{sem: make(chan struct{}, 1)}
		s.slots[customerID] = sl
	}
	sl.refs++
	s.slotsMu.Unlock()

	select {
	case sl.sem <- struct{}{}:
	case <-ctx.Done():
		s.drop(customerID, sl)
		return nil, ctx.Err()
	}
	return func() {
		<-sl.sem
		s.drop(customerID, sl)
	}, nil
}

func (s *ChatService) drop(customerID uint, sl *convSlot) {
	s.slotsMu.Lock()
	defer s.slotsMu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(s.slots, customerID)
	}
}
