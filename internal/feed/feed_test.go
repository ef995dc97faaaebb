package feed

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MJE43/ebb-flow/internal/garden"
)

func TestHubLatestWins(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	for i := int64(1); i <= 3; i++ {
		h.Publish(garden.Garden{TotalLeavesCollected: i})
	}
	select {
	case g := <-ch:
		if g.TotalLeavesCollected != 3 {
			t.Errorf("got total %d, want the latest snapshot 3", g.TotalLeavesCollected)
		}
	default:
		t.Fatal("no snapshot delivered")
	}
	select {
	case g := <-ch:
		t.Fatalf("unexpected extra snapshot %d", g.TotalLeavesCollected)
	default:
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe()
	_, cancelB := h.Subscribe()
	defer cancelB()

	if h.Subscribers() != 2 {
		t.Fatalf("subscribers = %d, want 2", h.Subscribers())
	}
	cancelA()
	cancelA()
	if h.Subscribers() != 1 {
		t.Fatalf("subscribers = %d after cancel, want 1", h.Subscribers())
	}
	if _, ok := <-a; ok {
		t.Error("cancelled channel is still open")
	}
	h.Publish(garden.Garden{TotalLeavesCollected: 9})
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	h.Close()
	if _, ok := <-ch; ok {
		t.Error("channel open after Close")
	}
	cancel()

	late, _ := h.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription after Close should be closed")
	}
}

type staticSource struct{ g garden.Garden }

func (s staticSource) Snapshot(context.Context) (garden.Garden, error) { return s.g, nil }

func TestHandlerStreamsSnapshots(t *testing.T) {
	hub := NewHub()
	h := NewHandler(hub, staticSource{g: garden.Garden{TotalLeavesCollected: 7}}, log.New(io.Discard, "", 0))
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var first Message
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("Failed to read snapshot: %v", err)
	}
	if first.Type != "garden" || first.Garden.TotalLeavesCollected != 7 {
		t.Fatalf("first frame = %+v", first)
	}

	// The subscription is registered before the first frame is written.
	hub.Publish(garden.Garden{TotalLeavesCollected: 8})

	var next Message
	if err := wsjson.Read(ctx, conn, &next); err != nil {
		t.Fatalf("Failed to read update: %v", err)
	}
	if next.Garden.TotalLeavesCollected != 8 {
		t.Errorf("update total = %d, want 8", next.Garden.TotalLeavesCollected)
	}

	hub.Close()
	_, _, err = conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Errorf("close status = %v, want going away", websocket.CloseStatus(err))
	}
}
