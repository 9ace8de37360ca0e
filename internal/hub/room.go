package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/mjrt0817/quiz-bonenkai/internal/comm"
	"github.com/mjrt0817/quiz-bonenkai/internal/game"
	"github.com/mjrt0817/quiz-bonenkai/internal/roster"
	"github.com/mjrt0817/quiz-bonenkai/internal/store"
)

// Room is one isolated game session: its store paths, its roster engine and
// a resident privileged channel. The resident channel guarantees the state
// document is bootstrapped and the roster stays denormalized into it even
// while no operator console is connected.
type Room struct {
	Code string

	st     *store.TreeStore
	rules  game.Rules
	log    *zap.Logger
	svc    *comm.Channel
	ros    *roster.Engine
	ctx    context.Context
	cancel context.CancelFunc
}

func newRoom(parent context.Context, st *store.TreeStore, code string, rules game.Rules, log *zap.Logger) (*Room, error) {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		Code:   code,
		st:     st,
		rules:  rules,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	svc, err := comm.Open(ctx, st, code, r.StatePath(), r.PlayersPath(), comm.RoleAdmin, rules, log)
	if err != nil {
		cancel()
		return nil, err
	}
	r.svc = svc
	r.ros = roster.New(st, r.PlayersPath(), log)
	return r, nil
}

func (r *Room) StatePath() string   { return "rooms/" + r.Code + "/state" }
func (r *Room) PlayersPath() string { return "rooms/" + r.Code + "/players" }

// Service is the room's resident privileged channel, used by HTTP endpoints
// that act on the room without a websocket session.
func (r *Room) Service() *comm.Channel { return r.svc }

func (r *Room) Roster() *roster.Engine { return r.ros }

// OpenChannel creates the per-session synchronization channel for one
// connected client.
func (r *Room) OpenChannel(parent context.Context, role comm.Role) (*comm.Channel, error) {
	return comm.Open(parent, r.st, r.Code, r.StatePath(), r.PlayersPath(), role, r.rules, r.log)
}

func (r *Room) close() {
	r.svc.Close()
	r.cancel()
}
