package ws

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go_hostpanel/internal/auth"
	"go_hostpanel/internal/logging"
)

type broadcast struct {
	room  string
	event string
}

type fakeBroadcaster struct {
	sent []broadcast
}

func (f *fakeBroadcaster) BroadcastToRoom(namespace string, room, event string, args ...interface{}) bool {
	f.sent = append(f.sent, broadcast{room: room, event: event})
	return true
}

func (f *fakeBroadcaster) BroadcastToNamespace(namespace string, event string, args ...interface{}) bool {
	f.sent = append(f.sent, broadcast{event: event})
	return true
}

func TestHub_Publish(t *testing.T) {
	fb := &fakeBroadcaster{}
	hub := NewHub(fb, NewBuffer(10), logging.Discard())

	hub.Publish("service.status", map[string]any{"serviceId": 12, "status": "active"})
	hub.Publish("migration.status", map[string]any{"jobId": "abc", "status": "running"})
	hub.Publish("misc", "hello")

	want := []broadcast{
		{event: "service.status"}, {room: "service:12", event: "service.status"},
		{event: "migration.status"}, {room: "migration:abc", event: "migration.status"},
		{event: "misc"},
	}
	if len(fb.sent) != len(want) {
		t.Fatalf("Expected %d broadcasts, got %d: %+v", len(want), len(fb.sent), fb.sent)
	}
	for i := range want {
		if fb.sent[i] != want[i] {
			t.Errorf("Broadcast %d: expected %+v, got %+v", i, want[i], fb.sent[i])
		}
	}
	if hub.Buffer().LatestID() != 3 {
		t.Errorf("Expected latest id 3, got %d", hub.Buffer().LatestID())
	}
}

func TestBuffer_Since(t *testing.T) {
	b := NewBuffer(3)
	for i := 0; i < 5; i++ {
		room := "service:1"
		if i%2 == 1 {
			room = "service:2"
		}
		b.Append("service.status", room, i)
	}
	// ids 3,4,5 remain

	tests := []struct {
		name   string
		last   int64
		room   string
		ids    []int64
		wantOK bool
	}{
		{"covered", 2, "", []int64{3, 4, 5}, true},
		{"room filter", 2, "service:1", []int64{3, 5}, true},
		{"up to date", 5, "", nil, true},
		{"evicted", 1, "", nil, false},
		{"from the future", 9, "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, ok := b.Since(tt.last, tt.room)
			if ok != tt.wantOK {
				t.Fatalf("Expected ok=%v, got %v", tt.wantOK, ok)
			}
			if len(events) != len(tt.ids) {
				t.Fatalf("Expected %d events, got %d", len(tt.ids), len(events))
			}
			for i, ev := range events {
				if ev.ID != tt.ids[i] {
					t.Errorf("Expected id %d, got %d", tt.ids[i], ev.ID)
				}
			}
		})
	}
}

func TestReplay(t *testing.T) {
	b := NewBuffer(2)
	for i := 0; i < 4; i++ {
		b.Append("service.status", "service:1", i)
	}

	resp := replay(b, SubscribeRequest{Room: "service:1"})
	if resp.Reload || resp.Events == nil || len(resp.Events) != 0 {
		t.Errorf("Expected an empty replay without lastEventId, got %+v", resp)
	}
	if resp := replay(b, SubscribeRequest{Room: "service:1", LastEventID: 3}); len(resp.Events) != 1 || resp.Events[0].ID != 4 {
		t.Errorf("Expected event 4, got %+v", resp)
	}
	if resp := replay(b, SubscribeRequest{Room: "service:1", LastEventID: 1}); !resp.Reload {
		t.Error("Expected reload once events were evicted")
	}
}

func TestWrapWithAuth(t *testing.T) {
	signer := auth.NewSigner("secret", "hostpanel", time.Hour)
	token, err := signer.Generate("7", "admin", auth.ActorTypeUser)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := WrapWithAuth(next, signer, logging.Discard())

	tests := []struct {
		name   string
		url    string
		header string
		want   int
	}{
		{"no token", "/socket.io/?EIO=4&transport=polling", "", http.StatusUnauthorized},
		{"bad token", "/socket.io/?EIO=4&token=nope", "", http.StatusUnauthorized},
		{"query token", "/socket.io/?EIO=4&token=" + token, "", http.StatusOK},
		{"header token", "/socket.io/?EIO=4", "Bearer " + token, http.StatusOK},
		{"other path", "/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}
