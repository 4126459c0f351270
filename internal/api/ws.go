package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/concierge/internal/dialog"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsMaxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsInbound is a frame sent by the browser client.
type wsInbound struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	UserID string `json:"userId"`
}

// wsOutbound is a frame sent to the browser client.
type wsOutbound struct {
	Type       string           `json:"type"`
	Text       string           `json:"text,omitempty"`
	WatsonData *dialog.Response `json:"watsonData,omitempty"`
}

// wsConn serializes writes to a websocket connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg wsOutbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(msg)
}

// serveWebSocket handles the browser chat protocol: "ping" frames are echoed,
// "msg" frames are processed and answered. Messages on one connection are
// processed concurrently, so replies may arrive out of order.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessageSize)

	var wg sync.WaitGroup
	defer wg.Wait()

	// In-flight messages are abandoned when the client goes away.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &wsConn{conn: conn}

	s.logger.Debug("websocket client connected", "remote", r.RemoteAddr)
	for {
		var msg wsInbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		switch msg.Type {
		case "ping":
			if err := client.send(wsOutbound{Type: "ping"}); err != nil {
				s.logger.Warn("websocket write failed", "error", err)
				return
			}
		case "msg":
			if msg.UserID == "" || msg.Text == "" {
				continue
			}
			wg.Add(1)
			go func(msg wsInbound) {
				defer wg.Done()
				reply := s.proc.ProcessMessage(ctx, msg.UserID, msg.Text)
				if err := client.send(wsOutbound{Type: "msg", Text: reply.Text, WatsonData: reply.Response}); err != nil {
					s.logger.Warn("websocket write failed", "user", msg.UserID, "error", err)
				}
			}(msg)
		default:
			s.logger.Debug("ignoring websocket frame", "type", msg.Type)
		}
	}
}
