package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/mjrt0817/quiz-bonenkai/internal/game"
	"github.com/mjrt0817/quiz-bonenkai/internal/store"
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	Code  string
	Reply chan *Room
}

type GetRoom struct {
	Code  string
	Reply chan *Room
}

type EnsureRoom struct {
	Code  string
	Reply chan *Room
}

type RemoveRoom struct {
	Code string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Hub is the room registry. Rooms are keyed by an explicit code; nothing in
// the tree store is special-cased to a single room, so one server hosts any
// number of concurrent quizzes.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*Room
	st     *store.TreeStore
	rules  game.Rules
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, st *store.TreeStore, rules game.Rules, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*Room),
		st:     st,
		rules:  rules,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.open(msg.Code)

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // May be nil

			case EnsureRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.open(msg.Code)

			case RemoveRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					rm.close()
					delete(h.rooms, msg.Code)
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) open(code string) *Room {
	rm, err := newRoom(h.ctx, h.st, code, h.rules, h.log)
	if err != nil {
		h.log.Error("room open failed", zap.String("code", code), zap.Error(err))
		return nil
	}
	h.rooms[code] = rm
	return rm
}

func (h *Hub) shutdown() {
	for code, rm := range h.rooms {
		rm.close()
		delete(h.rooms, code)
	}
	h.cancel()
}
