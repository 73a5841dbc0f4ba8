package ws

import (
	"strings"

	socketio "github.com/googollee/go-socket.io"
	"github.com/sirupsen/logrus"
)

// SubscribeRequest joins a client to one entity's room
type SubscribeRequest struct {
	Room        string `json:"room"`
	LastEventID int64  `json:"lastEventId"`
}

// ReplayResponse answers subscribe and request:events. Reload is set when
// the buffer no longer covers lastEventId.
type ReplayResponse struct {
	Room   string  `json:"room,omitempty"`
	Events []Event `json:"events"`
	Reload bool    `json:"reload"`
}

func validRoom(room string) bool {
	return strings.HasPrefix(room, "service:") || strings.HasPrefix(room, "migration:")
}

// replay builds the catch-up answer for a client
func replay(buffer *Buffer, req SubscribeRequest) ReplayResponse {
	resp := ReplayResponse{Room: req.Room, Events: []Event{}}
	if req.LastEventID <= 0 {
		return resp
	}
	events, ok := buffer.Since(req.LastEventID, req.Room)
	if !ok {
		resp.Reload = true
		return resp
	}
	if events != nil {
		resp.Events = events
	}
	return resp
}

func registerEventHandlers(io *socketio.Server, hub *Hub, logger *logrus.Entry) {
	io.OnEvent(namespace, "subscribe", func(c socketio.Conn, req SubscribeRequest) {
		if !validRoom(req.Room) {
			c.Emit("error", map[string]any{"message": "unknown room " + req.Room})
			return
		}
		c.Join(req.Room)
		logger.WithFields(logrus.Fields{"conn": c.ID(), "room": req.Room}).Debug("client subscribed")
		c.Emit("events", replay(hub.buffer, req))
	})

	io.OnEvent(namespace, "unsubscribe", func(c socketio.Conn, req SubscribeRequest) {
		c.Leave(req.Room)
	})

	io.OnEvent(namespace, "request:events", func(c socketio.Conn, req SubscribeRequest) {
		c.Emit("events", replay(hub.buffer, req))
	})
}
