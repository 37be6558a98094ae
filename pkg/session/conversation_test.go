package session_test

import (
	"MedicChat/models"
	"MedicChat/pkg/config"
	"MedicChat/pkg/database"
	"MedicChat/pkg/relay"
	svc "MedicChat/pkg/services"
	"MedicChat/pkg/session"
	"MedicChat/pkg/store"
	"MedicChat/routes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type server struct {
	URL   string
	Hub   *relay.Hub
	Store *store.GormStore
	DB    *gorm.DB
}

func startServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Options{
		Driver:       database.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "chat.db"),
		MaxOpenConns: 1,
		Log:          zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))

	st := store.New(db)
	hub := relay.NewHub(zerolog.Nop(), relay.Options{})
	chat := svc.NewChatService(st, hub, zerolog.Nop())
	cfg := &config.Config{
		AppEnv:                 "development",
		RateLimitWindowSeconds: 10,
		RateLimitCapacity:      1000,
	}
	srv := httptest.NewServer(routes.NewEngine(routes.Deps{Chat: chat, Customers: store.NewCustomerStore(db), Hub: hub, DB: st, Config: cfg, Log: zerolog.Nop()}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &server{URL: srv.URL, Hub: hub, Store: st, DB: db}
}

type inbox struct {
	mu   sync.Mutex
	msgs []models.Message
	errs []session.ChatError
}

func (b *inbox) onMessage(m models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, m)
}

func (b *inbox) onError(e session.ChatError) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, e)
}

func (b *inbox) messages() []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Message(nil), b.msgs...)
}

func (b *inbox) errors() []session.ChatError {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]session.ChatError(nil), b.errs...)
}

func TestOpenMergesHistoryAndLiveMessages(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)
	ctx := context.Background()

	cl, err := session.NewClient(srv.URL)
	req.NoError(err)
	_, err = cl.Send(ctx, sample(42, "before open"))
	req.NoError(err)

	box := &inbox{}
	conv, err := cl.Open(ctx, 42, box.onMessage, box.onError)
	req.NoError(err)
	defer conv.Close()
	req.Eventually(func() bool { return srv.Hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	req.Len(conv.View.Messages(), 1)
	req.Equal("before open", conv.View.Messages()[0].Content)

	_, err = cl.Send(ctx, sample(7, "other conversation"))
	req.NoError(err)
	sent, err := cl.Send(ctx, sample(42, "Hello"))
	req.NoError(err)

	req.Eventually(func() bool { return len(box.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	live := box.messages()[0]
	req.Equal(sent.ID, live.ID)
	req.Equal("Hello", live.Content)

	view := conv.View.Messages()
	req.Len(view, 2)
	req.Equal(sent.ID, conv.View.Watermark())
}

func TestOpenEmitPersistsAndBroadcastsToAll(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)
	ctx := context.Background()

	cl, err := session.NewClient(srv.URL)
	req.NoError(err)

	a, b := &inbox{}, &inbox{}
	convA, err := cl.Open(ctx, 42, a.onMessage, a.onError)
	req.NoError(err)
	defer convA.Close()
	convB, err := cl.Open(ctx, 42, b.onMessage, b.onError)
	req.NoError(err)
	defer convB.Close()
	req.Eventually(func() bool { return srv.Hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	req.NoError(convA.Emit(ctx, models.MessageInput{Sender: "admin", Receiver: "Jane", Content: "over the relay"}))

	req.Eventually(func() bool { return len(a.messages()) == 1 && len(b.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	req.Equal(a.messages()[0].ID, b.messages()[0].ID)

	history, err := cl.History(ctx, 42)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("over the relay", history[0].Content)
}

func TestOpenEmitInvalidGetsChatError(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)
	ctx := context.Background()

	cl, err := session.NewClient(srv.URL)
	req.NoError(err)
	box := &inbox{}
	conv, err := cl.Open(ctx, 42, box.onMessage, box.onError)
	req.NoError(err)
	defer conv.Close()

	in := models.MessageInput{Sender: "admin", Receiver: "Jane", Content: "  ", ClientRequestID: "r-1"}
	req.NoError(conv.Emit(ctx, in))

	req.Eventually(func() bool { return len(box.errors()) == 1 }, 2*time.Second, 10*time.Millisecond)
	e := box.errors()[0]
	req.Equal("Missing message data", e.Error)
	req.Contains(e.Fields, "content")
	req.Equal("r-1", e.ClientRequestID)
	req.Empty(box.messages())

	n, err := srv.Store.Count(ctx, 42)
	req.NoError(err)
	req.Zero(n)
}

func TestSubscriptionEndsWhenHubCloses(t *testing.T) {
	srv := startServer(t)
	cl, err := session.NewClient(srv.URL)
	require.NoError(t, err)

	sub, err := cl.Subscribe(context.Background(), func(session.Event) {})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	srv.Hub.Close()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}
	require.NoError(t, sub.Err())
}

func TestSubscribeReturnsOnlyOnceRegistered(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)
	ctx := context.Background()
	cl, err := session.NewClient(srv.URL)
	req.NoError(err)

	box := &inbox{}
	sub, err := cl.Subscribe(ctx, func(ev session.Event) {
		if ev.Err == nil {
			box.onMessage(ev.Message)
		}
	})
	req.NoError(err)
	defer sub.Close()
	req.Equal(1, srv.Hub.ClientCount())

	// stored right after Subscribe returns, so the broadcast must arrive
	sent, err := cl.Send(ctx, sample(42, "right away"))
	req.NoError(err)
	req.Eventually(func() bool { return len(box.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	req.Equal(sent.ID, box.messages()[0].ID)
}

func TestCustomerLookup(t *testing.T) {
	req := require.New(t)
	srv := startServer(t)
	req.NoError(srv.DB.Create(&models.Customer{FirstName: "Jane", LastName: "Doe", AccountNumber: "ACC-1"}).Error)
	cl, err := session.NewClient(srv.URL)
	req.NoError(err)

	c, err := cl.Customer(context.Background(), 1)
	req.NoError(err)
	req.Equal("Jane Doe", c.DisplayName())

	_, err = cl.Customer(context.Background(), 2)
	var apiErr *session.APIError
	req.ErrorAs(err, &apiErr)
	req.Equal(http.StatusNotFound, apiErr.Status)
}
