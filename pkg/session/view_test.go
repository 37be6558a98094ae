package session

import (
	"MedicChat/models"
	"testing"

	"github.com/stretchr/testify/require"
)

func msg(id, customer uint, content string) models.Message {
	return models.Message{ID: id, CustomerID: customer, Sender: "admin", Receiver: "Jane", Content: content}
}

func TestViewLoadSetsWatermark(t *testing.T) {
	v := NewView(42)
	v.Load([]models.Message{msg(3, 42, "a"), msg(7, 42, "b"), msg(9, 7, "other")})

	require.Equal(t, uint(7), v.Watermark())
	require.Len(t, v.Messages(), 2)
}

func TestViewApplyDropsDuplicatesAndForeign(t *testing.T) {
	req := require.New(t)
	v := NewView(42)
	v.Load([]models.Message{msg(3, 42, "a"), msg(7, 42, "b")})

	req.False(v.Apply(msg(7, 42, "b")), "already in history")
	req.False(v.Apply(msg(5, 42, "older")), "below watermark")
	req.False(v.Apply(msg(8, 43, "foreign")), "other conversation")
	req.True(v.Apply(msg(8, 42, "c")))
	req.False(v.Apply(msg(8, 42, "c")), "replayed broadcast")

	got := v.Messages()
	req.Len(got, 3)
	req.Equal("c", got[2].Content)
	req.Equal(uint(8), v.Watermark())
}

func TestViewMessagesIsACopy(t *testing.T) {
	v := NewView(1)
	v.Load([]models.Message{msg(1, 1, "a")})
	got := v.Messages()
	got[0].Content = "changed"
	require.Equal(t, "a", v.Messages()[0].Content)
}
