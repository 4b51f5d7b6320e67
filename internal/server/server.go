package server

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/stats"
	"github.com/npezzotti/go-supportchat/internal/support"
	"github.com/npezzotti/go-supportchat/internal/types"
)

const defaultIdleRoomTimeout = 5 * time.Second

var (
	ErrShuttingDown       = errors.New("chat server is shutting down")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrClientClosed       = errors.New("client closed before joining")
)

type joinRequest struct {
	client *Client
	room   database.Room
	done   chan error
}

type relayRequest struct {
	room database.Room
	msg  *ClientMessage
}

type exitReq struct {
	// force exits even with connected clients
	force bool
	done  chan bool
}

// ChatServer owns the set of loaded room actors. Every room is touched only
// from Run, so the map needs no lock.
type ChatServer struct {
	log             *log.Logger
	svc             *support.Services
	stats           stats.StatsProvider
	rooms           map[string]*Room
	joinChan        chan *joinRequest
	relayChan       chan *relayRequest
	unloadRoomChan  chan *Room
	idleRoomTimeout time.Duration
	stop            chan struct{}
	done            chan struct{}
}

func NewChatServer(logger *log.Logger, svc *support.Services, sp stats.StatsProvider) *ChatServer {
	if sp == nil {
		sp = stats.NopStats{}
	}

	for _, name := range []string{
		stats.ActiveConnections,
		stats.LoadedRooms,
		stats.MessagesRelayed,
		stats.DroppedClients,
	} {
		sp.RegisterMetric(name)
	}

	return &ChatServer{
		log:             logger,
		svc:             svc,
		stats:           sp,
		rooms:           make(map[string]*Room),
		joinChan:        make(chan *joinRequest),
		relayChan:       make(chan *relayRequest),
		unloadRoomChan:  make(chan *Room),
		idleRoomTimeout: defaultIdleRoomTimeout,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

func (cs *ChatServer) Run() {
	for {
		select {
		case req := <-cs.joinChan:
			r := cs.getOrLoadRoom(req.room)
			select {
			case r.joinChan <- req:
			default:
				cs.log.Printf("join channel full on room %q", r.roomId)
				req.done <- ErrServiceUnavailable
			}
		case req := <-cs.relayChan:
			r := cs.getOrLoadRoom(req.room)
			select {
			case r.clientMsgChan <- req.msg:
			default:
				cs.log.Printf("message channel full on room %q", r.roomId)
				req.msg.reply <- relayResult{err: ErrServiceUnavailable}
			}
		case r := <-cs.unloadRoomChan:
			cs.unloadRoom(r)
		case <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				done := make(chan bool, 1)
				r.exit <- exitReq{force: true, done: done}
				<-done
				cs.stats.Decr(stats.LoadedRooms)
			}
			clear(cs.rooms)

			close(cs.done)
			return
		}
	}
}

func (cs *ChatServer) getOrLoadRoom(info database.Room) *Room {
	if r, ok := cs.rooms[info.RoomId]; ok {
		return r
	}

	r := newRoom(cs, info)
	cs.rooms[r.roomId] = r
	cs.stats.Incr(stats.LoadedRooms)
	go r.start()

	return r
}

// unloadRoom asks an idle room to exit. The room refuses when a client or a
// queued request arrived after its idle timer fired.
func (cs *ChatServer) unloadRoom(r *Room) {
	if cs.rooms[r.roomId] != r {
		return
	}

	done := make(chan bool, 1)
	r.exit <- exitReq{done: done}
	if !<-done {
		return
	}

	cs.log.Printf("unloaded room %q", r.roomId)
	delete(cs.rooms, r.roomId)
	cs.stats.Decr(stats.LoadedRooms)
}

// JoinRoom adds c to the room's group and returns once the join event has been
// broadcast. The room must already be authorized for c's user.
func (cs *ChatServer) JoinRoom(ctx context.Context, c *Client, room database.Room) error {
	req := &joinRequest{client: c, room: room, done: make(chan error, 1)}

	select {
	case cs.joinChan <- req:
	case <-cs.done:
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitMessage appends body through the room's actor so that it is ordered
// and broadcast exactly like a message received over a WebSocket.
func (cs *ChatServer) SubmitMessage(ctx context.Context, room database.Room, sender types.User, body string) (database.Message, error) {
	msg := &ClientMessage{
		Type:    TypeChatMessage,
		Message: body,
		sender:  sender,
		reply:   make(chan relayResult, 1),
	}

	select {
	case cs.relayChan <- &relayRequest{room: room, msg: msg}:
	case <-cs.done:
		return database.Message{}, ErrShuttingDown
	case <-ctx.Done():
		return database.Message{}, ctx.Err()
	}

	select {
	case res := <-msg.reply:
		return res.msg, res.err
	case <-ctx.Done():
		return database.Message{}, ctx.Err()
	}
}

// Shutdown disconnects every client and stops all rooms.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	select {
	case <-cs.stop:
	default:
		close(cs.stop)
	}

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
