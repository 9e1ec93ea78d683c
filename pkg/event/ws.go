package event

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/choraleia/coach/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	feedBuffer   = 64
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
)

// FeedMessage is one frame of the conversation feed.
type FeedMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	TS    int64           `json:"ts"` // unix ms
}

// WSHandler streams conversation events to websocket clients.
type WSHandler struct {
	emitter  *Emitter
	upgrader websocket.Upgrader
	userOf   func(*gin.Context) string
	logger   *slog.Logger
}

// NewWSHandler creates a feed on emitter. userOf resolves the caller so
// that only the caller's own conversations are pushed; nil delivers all.
func NewWSHandler(emitter *Emitter, userOf func(*gin.Context) string) *WSHandler {
	return &WSHandler{
		emitter: emitter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		userOf: userOf,
		logger: utils.GetLogger(),
	}
}

// Handle upgrades the request and pushes matching events until the client
// goes away. ?events=a,b limits the feed to those event names.
func (h *WSHandler) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	filter := parseFilter(c.Query("events"))
	var userID string
	if h.userOf != nil {
		userID = h.userOf(c)
	}

	feed := make(chan FeedMessage, feedBuffer)
	unsubscribe := h.emitter.OnAny(func(ev Event) {
		if !wants(filter, userID, ev) {
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		select {
		case feed <- FeedMessage{Event: ev.EventName(), Data: data, TS: time.Now().UnixMilli()}:
		default:
			h.logger.Warn("Event feed full, dropping event", "event", ev.EventName(), "userID", userID)
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go drainClient(conn, closed)

	// Only this loop writes to conn.
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		var err error
		select {
		case <-c.Request.Context().Done():
			return
		case <-closed:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err = conn.WriteMessage(websocket.PingMessage, nil)
		case msg := <-feed:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err = conn.WriteJSON(msg)
		}
		if err != nil {
			return
		}
	}
}

// drainClient discards client frames so pongs are processed, and closes
// closed when the connection drops.
func drainClient(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func parseFilter(param string) map[string]bool {
	if param == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, name := range strings.Split(param, ",") {
		if name = strings.TrimSpace(name); name != "" {
			filter[name] = true
		}
	}
	return filter
}

// wants reports whether a subscriber with filter and userID receives ev.
// Events without an owner go to everyone.
func wants(filter map[string]bool, userID string, ev Event) bool {
	if filter != nil && !filter[ev.EventName()] {
		return false
	}
	if userID == "" {
		return true
	}
	owned, ok := ev.(interface{ Owner() string })
	if !ok || owned.Owner() == "" {
		return true
	}
	return owned.Owner() == userID
}
