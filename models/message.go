package models

import (
	"time"
)

// Message is one persisted entry of a conversation log. Rows are only ever
// inserted; nothing in this service updates or deletes them.
type Message struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Sender          string    `gorm:"size:100;not null" json:"sender"`
	Receiver        string    `gorm:"size:100;not null" json:"receiver"`
	Content         string    `gorm:"type:text;not null" json:"content"`
	CustomerID      uint      `gorm:"not null;index:idx_messages_customer_created,priority:1;uniqueIndex:idx_messages_customer_request,priority:1" json:"customer_id"`
	ClientRequestID *string   `gorm:"size:64;uniqueIndex:idx_messages_customer_request,priority:2" json:"client_request_id,omitempty"`
	CreatedAt       time.Time `gorm:"not null;index:idx_messages_customer_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// MessageInput is what a client submits, over REST or the realtime channel.
type MessageInput struct {
	Sender          string     `json:"sender" validate:"notblank,max=100"`
	Receiver        string     `json:"receiver" validate:"notblank,max=100"`
	Content         string     `json:"content" validate:"notblank"`
	CustomerID      CustomerID `json:"customer_id" validate:"gt=0,lte=9223372036854775807"`
	ClientRequestID string     `json:"client_request_id,omitempty" validate:"omitempty,max=64"`
}

// ToMessage builds the row to insert. ID and CreatedAt are left for the store.
func (in MessageInput) ToMessage() Message {
	m := Message{
		Sender:     in.Sender,
		Receiver:   in.Receiver,
		Content:    in.Content,
		CustomerID: uint(in.CustomerID),
	}
	if in.ClientRequestID != "" {
		rid := in.ClientRequestID
		m.ClientRequestID = &rid
	}
	return m
}
