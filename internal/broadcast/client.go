package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 16
	maxPollsJoined = 32
)

// Client pumps hub messages to one websocket and reads join/leave requests
// from it.
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub
	log  *zap.Logger
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, hub *Hub, log *zap.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:   id,
		conn: conn,
		hub:  hub,
		log:  log.With(zap.String("conn_id", id)),
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Deliver queues msg for the writer. A full buffer drops the message; the
// viewer catches up on its next fetch.
func (c *Client) Deliver(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops both pumps. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Run serves the connection until it fails or is closed, then leaves every
// poll it joined.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
	c.hub.Remove(c)
	c.Close()
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	joined := make(map[string]struct{})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(Message{Type: TypeError, Message: "malformed message"})
			continue
		}

		switch msg.Type {
		case TypeJoinPoll:
			if msg.PollID == "" {
				c.reply(Message{Type: TypeError, Message: "pollId is required"})
				continue
			}
			if _, ok := joined[msg.PollID]; !ok && len(joined) >= maxPollsJoined {
				c.reply(Message{Type: TypeError, Message: "too many polls joined"})
				continue
			}
			if !c.hub.Subscribe(msg.PollID, c) {
				return
			}
			joined[msg.PollID] = struct{}{}
			c.log.Debug("joined poll", zap.String("poll_id", msg.PollID))
		case TypeLeavePoll:
			c.hub.Unsubscribe(msg.PollID, c)
			delete(joined, msg.PollID)
		case TypeVoteSubmitted:
			// tally changes are announced by the server once a vote commits
		default:
			c.reply(Message{Type: TypeError, Message: "unknown message type"})
		}
	}
}

func (c *Client) reply(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	c.Deliver(data)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("websocket write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
