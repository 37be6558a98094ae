package main

import (
	"MedicChat/models"
	"MedicChat/pkg/session"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	created := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	renderTable(&buf, []models.Message{
		{ID: 1, Sender: "admin", Receiver: "Jane", Content: "Hello", CustomerID: 42, CreatedAt: created},
		{ID: 2, Sender: "Jane", Receiver: "admin", Content: "Hi doctor", CustomerID: 42, CreatedAt: created.Add(time.Minute)},
	})

	out := buf.String()
	require.Contains(t, out, "CONTENT")
	require.Contains(t, out, "Hello")
	require.Contains(t, out, "Hi doctor")
	require.Less(t, bytes.Index(buf.Bytes(), []byte("Hello")), bytes.Index(buf.Bytes(), []byte("Hi doctor")))
}

func TestRenderTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderTable(&buf, nil)
	require.Contains(t, buf.String(), "SENDER")
}

func TestPrintLine(t *testing.T) {
	var buf bytes.Buffer
	printLine(&buf, models.Message{ID: 3, Sender: "admin", Receiver: "Jane", Content: "See you at 10", CreatedAt: time.Now()})
	require.Contains(t, buf.String(), "admin -> Jane")
	require.Contains(t, buf.String(), "See you at 10")
}

func TestPrintChatError(t *testing.T) {
	var buf bytes.Buffer
	printChatError(&buf, session.ChatError{Error: "Missing message data", Fields: []string{"content"}})
	require.Contains(t, buf.String(), "chat error: Missing message data [content]")
}

func TestParseCustomer(t *testing.T) {
	id, err := parseCustomer("42")
	require.NoError(t, err)
	require.Equal(t, uint(42), id)

	_, err = parseCustomer("abc")
	require.Error(t, err)
}
