package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/telemetrygate/event"
	"github.com/c360/telemetrygate/hub"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards connect from arbitrary origins; the token gate is the
	// access control, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts a gorilla connection to the hub's delivery interface. All
// writes are serialized through writeMu because gorilla allows at most one
// concurrent writer.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
}

func (c *wsConn) WriteEvent(ev event.LiveEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(ev)
}

func (c *wsConn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.ws.Close()
	})
	return err
}

// clientMessage is what subscribers may send upstream. Only application
// pings are recognized.
type clientMessage struct {
	Type string `json:"type"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		http.Error(w, "deviceId query parameter is required", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "device_id", deviceID, "error", err)
		return
	}

	conn := &wsConn{ws: ws}
	sub, err := s.hub.Subscribe(deviceID, conn)
	if err != nil {
		s.logger.Warn("subscribe failed", "device_id", deviceID, "error", err)
		_ = conn.Close()
		return
	}

	s.logger.Info("subscriber connected", "device_id", deviceID, "subscription_id", sub.ID)
	go s.readLoop(sub, conn, deviceID)
}

// readLoop services upstream traffic until the peer goes away. Application
// pings get a pong event back on the same connection; everything else is
// ignored.
func (s *Server) readLoop(sub *hub.Subscription, conn *wsConn, deviceID string) {
	defer func() {
		s.hub.Unsubscribe(sub)
		s.logger.Info("subscriber disconnected", "device_id", deviceID, "subscription_id", sub.ID)
	}()

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			if err := conn.WriteEvent(event.Pong(deviceID, time.Now())); err != nil {
				return
			}
		}
	}
}

// authorized checks the shared token on a /ws request. The token arrives as
// either a Bearer header or a token query parameter; a mismatched header
// still falls through to the query parameter.
func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}

	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") && strings.TrimPrefix(authz, "Bearer ") == s.token {
		return true
	}
	return r.URL.Query().Get("token") == s.token
}
