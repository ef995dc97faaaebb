package feed

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MJE43/ebb-flow/internal/garden"
)

const writeTimeout = 5 * time.Second

// Message is one frame of the live feed.
type Message struct {
	Type   string        `json:"type"`
	Garden garden.Garden `json:"garden"`
}

// Snapshotter reads the current garden.
type Snapshotter interface {
	Snapshot(ctx context.Context) (garden.Garden, error)
}

// Handler upgrades a request to a websocket and streams the garden: the
// current snapshot first, then one frame per published change.
type Handler struct {
	hub    *Hub
	source Snapshotter
	logger *log.Logger
}

// NewHandler creates a feed handler. logger may be nil.
func NewHandler(hub *Hub, source Snapshotter, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stdout, "[FEED] ", log.LstdFlags|log.Lshortfile)
	}
	return &Handler{hub: hub, source: source, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Printf("accept_failed remote_addr=%s error=%v", r.RemoteAddr, err)
		return
	}
	defer conn.CloseNow()

	updates, cancel := h.hub.Subscribe()
	defer cancel()

	// The client never sends; CloseRead cancels ctx once it disconnects.
	ctx := conn.CloseRead(r.Context())

	h.logger.Printf("subscriber_connected remote_addr=%s subscribers=%d", r.RemoteAddr, h.hub.Subscribers())
	err = h.stream(ctx, conn, updates)
	h.logger.Printf("subscriber_disconnected remote_addr=%s reason=%v", r.RemoteAddr, err)

	if errors.Is(err, errHubClosed) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

var errHubClosed = errors.New("feed: hub closed")

func (h *Handler) stream(ctx context.Context, conn *websocket.Conn, updates <-chan garden.Garden) error {
	snap, err := h.source.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := send(ctx, conn, snap); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case g, ok := <-updates:
			if !ok {
				return errHubClosed
			}
			if err := send(ctx, conn, g); err != nil {
				return err
			}
		}
	}
}

func send(ctx context.Context, conn *websocket.Conn, g garden.Garden) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, Message{Type: "garden", Garden: g})
}
