package server

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-supportchat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 256
)

type ConnState int32

const (
	StateConnecting ConnState = iota
	StateJoined
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Client is one WebSocket connection bound to a single room.
type Client struct {
	id   uuid.UUID
	conn *websocket.Conn
	log  *log.Logger
	user types.User
	send chan *ServerMessage
	// room is set by the room actor before the join completes
	room      *Room
	state     atomic.Int32
	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, l *log.Logger) *Client {
	return &Client{
		id:   uuid.New(),
		conn: conn,
		log:  l,
		user: user,
		send: make(chan *ServerMessage, sendQueueSize),
		stop: make(chan struct{}),
	}
}

func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrorEvent(errInvalidMessage))
			continue
		}

		if msg.Type == "" {
			msg.Type = TypeChatMessage
		}
		if msg.Type != TypeChatMessage && msg.Type != TypeTyping {
			c.queueMessage(ErrorEvent(errUnsupportedType))
			continue
		}

		msg.sender = c.user
		msg.client = c
		c.deliver(&msg)
	}
}

func (c *Client) deliver(msg *ClientMessage) {
	select {
	case c.room.clientMsgChan <- msg:
	case <-c.room.done:
	default:
		c.log.Printf("clientMsgChan full for room %q", c.room.roomId)
		c.queueMessage(ErrorEvent(errUnavailable))
	}
}

// queueMessage reports false when the send queue is full.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// stopped reports whether the client has been told to stop writing.
func (c *Client) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// Close leaves the room and tears the connection down. Only the first call
// has any effect, and it never fails: the leave is delivered unless the room
// has already stopped.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		prev := ConnState(c.state.Swap(int32(StateClosed)))

		if prev == StateJoined && c.room != nil {
			leave := &ClientMessage{Type: typeLeave, sender: c.user, client: c}
			select {
			case c.room.clientMsgChan <- leave:
			case <-c.room.done:
			}
		}

		c.stopClient()
		if c.conn != nil {
			c.conn.Close()
		}
	})
}
