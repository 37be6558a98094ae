package controllers

import (
	"MedicChat/models"
	"MedicChat/pkg/relay"
	svc "MedicChat/pkg/services"
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// sendTimeout bounds one inbound realtime send.
const sendTimeout = 10 * time.Second

// chatErrorPayload is emitted to the originating client only.
type chatErrorPayload struct {
	Error           string   `json:"error"`
	Fields          []string `json:"fields,omitempty"`
	ClientRequestID string   `json:"client_request_id,omitempty"`
}

func newUpgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(origins) == 0 {
				return true
			}
			return slices.Contains(origins, "*") || slices.Contains(origins, origin)
		},
	}
}

// ChatWS upgrades to a websocket and joins the relay.
// Client protocol (JSON frames):
//
//	-> {event: "chat message", data: {sender, receiver, content, customer_id, client_request_id?}}
//	<- {event: "chat message", data: <stored message>}       to every client
//	<- {event: "chat error",   data: {error, fields?, client_request_id?}}   to the sender only
func ChatWS(hub *relay.Hub, chat *svc.ChatService, origins []string, log zerolog.Logger) gin.HandlerFunc {
	upgrader := newUpgrader(origins)
	log = log.With().Str("component", "ws").Logger()

	handle := func(ctx context.Context, cl *relay.Client, f relay.Frame) {
		switch f.Event {
		case relay.EventChatMessage:
			var in models.MessageInput
			if err := json.Unmarshal(f.Data, &in); err != nil {
				log.Warn().Err(err).Str("client", cl.ID).Msg("bad chat message payload")
				_ = hub.Emit(cl, relay.EventChatError, chatErrorPayload{Error: "Missing message data"})
				return
			}

			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()
			if _, err := chat.Send(sendCtx, in); err != nil {
				log.Error().Err(err).Str("client", cl.ID).Uint("customer_id", uint(in.CustomerID)).Msg("socket message error")
				_, text, fields := classifySendError(err)
				_ = hub.Emit(cl, relay.EventChatError, chatErrorPayload{
					Error:           text,
					Fields:          fields,
					ClientRequestID: in.ClientRequestID,
				})
			}
		default:
			log.Debug().Str("client", cl.ID).Str("event", f.Event).Msg("unknown event ignored")
		}
	}

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("upgrade error")
			return
		}
		hub.Serve(c.Request.Context(), hub.NewClient(conn), handle)
	}
}
