package rpc

import (
	"context"
	"net/http"
	"time"

	"github.com/Sternrassler/pokeref/pkg/logging"
	"github.com/Sternrassler/pokeref/pkg/resource"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// intentReadLimit bounds a single intent message.
	intentReadLimit = 4 << 10

	// intentIdleTimeout closes connections that send nothing, not even pongs.
	intentIdleTimeout = 60 * time.Second

	intentPingInterval = 30 * time.Second
	intentWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Intents only warm the cache; any origin may send them.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Intent signals that a user is likely to request a query soon, e.g. on
// pointer hover. An empty name means the kind's list.
type Intent struct {
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`
}

// IntentReply acknowledges one intent.
type IntentReply struct {
	Status string    `json:"status,omitempty"`
	Error  *APIError `json:"error,omitempty"`
}

// intents serves GET /ws/intent. Every intent message queues a prefetch
// and is answered in order.
func (s *Server) intents(c *gin.Context) {
	logger := logging.FromContext(c.Request.Context(), "rpc-server")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	logger.Debug().Msg("Intent stream opened")

	// Prefetches are detached from ctx; it only scopes the ping loop.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	conn.SetReadLimit(intentReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(intentIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(intentIdleTimeout))
	})

	go s.pingLoop(ctx, conn)

	for {
		var intent Intent
		if err := conn.ReadJSON(&intent); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("Intent stream ended")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(intentIdleTimeout))

		reply := s.handleIntent(ctx, intent)
		_ = conn.SetWriteDeadline(time.Now().Add(intentWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			logger.Debug().Err(err).Msg("Intent reply failed")
			return
		}
	}
}

func (s *Server) handleIntent(ctx context.Context, intent Intent) IntentReply {
	kind, err := resource.ParseKind(intent.Kind)
	if err == nil {
		err = s.queueIntent(ctx, kind, intent.Name)
	}
	if err != nil {
		_, code := classify(err)
		return IntentReply{Error: &APIError{Code: code, Message: err.Error()}}
	}
	return IntentReply{Status: "queued"}
}

// pingLoop keeps idle intent streams alive. gorilla/websocket allows
// WriteControl concurrently with WriteJSON.
func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(intentPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(intentWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
