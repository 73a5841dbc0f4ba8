// Package ws pushes service and migration status changes to admin clients
// over Socket.IO.
package ws

import (
	"net/http"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/sirupsen/logrus"
)

const namespace = "/"

// Broadcaster is the part of the Socket.IO server the hub emits through
type Broadcaster interface {
	BroadcastToRoom(namespace string, room, event string, args ...interface{}) bool
	BroadcastToNamespace(namespace string, event string, args ...interface{}) bool
}

// Hub records events and broadcasts them. It satisfies the Notifier
// interfaces of the provisioning and migration packages.
type Hub struct {
	server Broadcaster
	buffer *Buffer
	logger *logrus.Entry
}

// NewHub creates a Hub over any Broadcaster
func NewHub(server Broadcaster, buffer *Buffer, logger *logrus.Entry) *Hub {
	if buffer == nil {
		buffer = NewBuffer(0)
	}
	return &Hub{server: server, buffer: buffer, logger: logger.WithField("component", "ws")}
}

// Publish stores the event and sends it to everyone and to the entity's
// room. Delivery failures never reach the caller.
func (h *Hub) Publish(topic string, payload any) {
	room := roomOf(payload)
	ev := h.buffer.Append(topic, room, payload)
	if h.server == nil {
		return
	}
	h.server.BroadcastToNamespace(namespace, topic, ev)
	if room != "" {
		h.server.BroadcastToRoom(namespace, room, topic, ev)
	}
	h.logger.WithFields(logrus.Fields{"eventId": ev.ID, "topic": topic, "room": room}).Debug("event broadcast")
}

// Buffer exposes the replay buffer
func (h *Hub) Buffer() *Buffer {
	return h.buffer
}

// Server wraps the Socket.IO server with its hub
type Server struct {
	*socketio.Server
	Hub    *Hub
	logger *logrus.Entry
}

// NewServer creates the Socket.IO server, registers the event handlers
// and starts serving in the background
func NewServer(logger *logrus.Entry) *Server {
	checkOrigin := func(r *http.Request) bool { return true }
	io := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&polling.Transport{CheckOrigin: checkOrigin},
			&websocket.Transport{CheckOrigin: checkOrigin},
		},
	})

	s := &Server{Server: io, logger: logger.WithField("component", "ws")}
	s.Hub = NewHub(io, nil, logger)

	io.OnConnect(namespace, func(c socketio.Conn) error {
		s.logger.WithField("conn", c.ID()).Info("client connected")
		c.Emit("connected", map[string]any{"ok": true, "lastEventId": s.Hub.buffer.LatestID()})
		return nil
	})
	io.OnDisconnect(namespace, func(c socketio.Conn, reason string) {
		s.logger.WithFields(logrus.Fields{"conn": c.ID(), "reason": reason}).Info("client disconnected")
	})
	io.OnError(namespace, func(c socketio.Conn, err error) {
		if c == nil {
			s.logger.WithError(err).Warn("socket.io error")
			return
		}
		s.logger.WithError(err).WithField("conn", c.ID()).Warn("socket.io error")
	})
	registerEventHandlers(io, s.Hub, s.logger)

	go func() {
		if err := io.Serve(); err != nil {
			s.logger.WithError(err).Error("socket.io server stopped")
		}
	}()
	return s
}
