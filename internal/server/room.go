package server

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/stats"
	"github.com/npezzotti/go-supportchat/internal/support"
)

const persistTimeout = 10 * time.Second

// Room serializes everything that happens in one chat room. Messages are
// appended and broadcast one at a time, so every member sees them in log
// order.
type Room struct {
	id            int
	roomId        string
	info          database.Room
	cs            *ChatServer
	log           *log.Logger
	joinChan      chan *joinRequest
	clientMsgChan chan *ClientMessage
	clients       map[*Client]struct{}
	// killTimer unloads the room once it has been idle
	killTimer *time.Timer
	exit      chan exitReq
	// done is closed when the actor returns
	done chan struct{}
}

func newRoom(cs *ChatServer, info database.Room) *Room {
	return &Room{
		id:            info.Id,
		roomId:        info.RoomId,
		info:          info,
		cs:            cs,
		log:           cs.log,
		joinChan:      make(chan *joinRequest, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		clients:       make(map[*Client]struct{}),
		exit:          make(chan exitReq),
		done:          make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.roomId)
	r.killTimer = time.NewTimer(r.cs.idleRoomTimeout)
	defer func() {
		r.killTimer.Stop()
		close(r.done)
	}()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case msg := <-r.clientMsgChan:
			r.handleClientMessage(msg)
		case <-r.killTimer.C:
			select {
			case r.cs.unloadRoomChan <- r:
			case e := <-r.exit:
				if r.handleRoomExit(e) {
					return
				}
			}
		case e := <-r.exit:
			if r.handleRoomExit(e) {
				return
			}
		}
	}
}

// handleRoomExit reports whether the room stopped.
func (r *Room) handleRoomExit(e exitReq) bool {
	if !e.force && (len(r.clients) > 0 || len(r.joinChan) > 0 || len(r.clientMsgChan) > 0) {
		if len(r.clients) == 0 {
			r.killTimer.Reset(r.cs.idleRoomTimeout)
		}
		e.done <- false
		return false
	}

	r.log.Printf("room %q is exiting", r.roomId)
	for c := range r.clients {
		c.stopClient()
		r.cs.stats.Decr(stats.ActiveConnections)
	}
	clear(r.clients)

	for {
		select {
		case join := <-r.joinChan:
			join.done <- ErrShuttingDown
		case msg := <-r.clientMsgChan:
			if msg.reply != nil {
				msg.reply <- relayResult{err: ErrShuttingDown}
			}
		default:
			e.done <- true
			return true
		}
	}
}

func (r *Room) handleJoin(join *joinRequest) {
	c := join.client
	c.room = r
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateJoined)) {
		// closed while the join was queued
		join.done <- ErrClientClosed
		return
	}

	r.killTimer.Stop()
	r.clients[c] = struct{}{}
	r.cs.stats.Incr(stats.ActiveConnections)

	r.log.Printf("client %s (%q) joined room %q", c.id, c.user.Username, r.roomId)
	r.broadcast(PresenceEvent(TypeUserJoin, c.user))

	join.done <- nil
}

func (r *Room) handleClientMessage(msg *ClientMessage) {
	switch msg.Type {
	case TypeChatMessage:
		r.saveAndBroadcast(msg)
	case TypeTyping:
		r.broadcast(TypingEvent(msg.sender, msg.IsTyping))
	case typeLeave:
		r.handleLeave(msg.client)
	}
}

func (r *Room) handleLeave(c *Client) {
	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	r.cs.stats.Decr(stats.ActiveConnections)
	r.log.Printf("client %s (%q) left room %q", c.id, c.user.Username, r.roomId)

	r.broadcast(PresenceEvent(TypeUserLeave, c.user))

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.roomId)
		r.killTimer.Reset(r.cs.idleRoomTimeout)
	}
}

// saveAndBroadcast persists with its own deadline so a sender disconnecting
// does not abort an accepted append.
func (r *Room) saveAndBroadcast(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	saved, err := r.cs.svc.Messages.Append(ctx, r.info, msg.sender, msg.Message)
	cancel()

	if err != nil {
		var event string
		switch {
		case errors.Is(err, support.ErrRoomClosed):
			r.info.IsActive = false
			event = errRoomClosed
		case errors.Is(err, support.ErrEmptyMessage):
			event = errEmptyMessage
		default:
			r.log.Println("append message:", err)
			event = errInternal
		}

		if msg.client != nil {
			msg.client.queueMessage(ErrorEvent(event))
		}
		if msg.reply != nil {
			msg.reply <- relayResult{err: err}
		}
		return
	}

	r.broadcast(ChatMessageEvent(saved, msg.sender))
	r.cs.stats.Incr(stats.MessagesRelayed)

	if msg.reply != nil {
		msg.reply <- relayResult{msg: saved}
	}
}

// broadcast never blocks on a member. A member whose queue is full is
// disconnected and leaves through its own cleanup; until then it is skipped.
func (r *Room) broadcast(msg *ServerMessage) {
	for c := range r.clients {
		if c.stopped() {
			continue
		}
		if !c.queueMessage(msg) {
			r.log.Printf("dropping slow client %s (%q) from room %q", c.id, c.user.Username, r.roomId)
			r.cs.stats.Incr(stats.DroppedClients)
			c.stopClient()
		}
	}
}
