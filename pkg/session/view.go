// Package session is the client side of the chat contract: history over
// REST, live messages over the websocket relay, and a local view that
// merges both without duplicates.
package session

import (
	"MedicChat/models"
	"sync"
)

// View is the in-memory conversation for one customer. Relay broadcasts
// cover every conversation, so Apply filters by customer id and drops
// anything at or below the watermark (the highest id already shown).
type View struct {
	CustomerID uint

	mu        sync.Mutex
	messages  []models.Message
	watermark uint
}

func NewView(customerID uint) *View {
	return &View{CustomerID: customerID}
}

// Load replaces the view with a fetched history.
func (v *View) Load(history []models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = v.messages[:0]
	v.watermark = 0
	for _, m := range history {
		if m.CustomerID != v.CustomerID {
			continue
		}
		v.messages = append(v.messages, m)
		if m.ID > v.watermark {
			v.watermark = m.ID
		}
	}
}

// Apply appends a live message and reports whether it was new.
func (v *View) Apply(m models.Message) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if m.CustomerID != v.CustomerID || m.ID <= v.watermark {
		return false
	}
	v.messages = append(v.messages, m)
	v.watermark = m.ID
	return true
}

func (v *View) Watermark() uint {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.watermark
}

// Messages returns a copy of the current view.
func (v *View) Messages() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Message, len(v.messages))
	copy(out, v.messages)
	return out
}
