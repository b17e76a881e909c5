package offline

import (
	"testing"
)

func TestHubBroadcastDeliversToAll(t *testing.T) {
	h := NewHub()
	a, releaseA := h.Subscribe()
	defer releaseA()
	b, releaseB := h.Subscribe()
	defer releaseB()

	h.Broadcast(syncCompleteMessage{Type: "SYNC_COMPLETE", Timestamp: 1})

	for name, c := range map[string]*hubClient{"a": a, "b": b} {
		select {
		case msg := <-c.ch:
			if string(msg) != `{"type":"SYNC_COMPLETE","timestamp":1}` {
				t.Fatalf("client %s message: got=%s", name, msg)
			}
		default:
			t.Fatalf("client %s received nothing", name)
		}
	}
}

func TestHubSlowClientDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	c, release := h.Subscribe()
	defer release()

	// Fill the client buffer, then one more must drop rather than stall.
	for i := 0; i <= clientBuffer; i++ {
		h.Broadcast(syncCompleteMessage{Type: "SYNC_COMPLETE", Timestamp: int64(i)})
	}

	if got := len(c.ch); got != clientBuffer {
		t.Fatalf("buffered messages: got=%d want=%d", got, clientBuffer)
	}
}

func TestHubReleaseRemovesClient(t *testing.T) {
	h := NewHub()
	_, release := h.Subscribe()
	if h.Count() != 1 {
		t.Fatalf("count: got=%d want=1", h.Count())
	}
	release()
	if h.Count() != 0 {
		t.Fatalf("count after release: got=%d want=0", h.Count())
	}
}
