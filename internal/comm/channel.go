// Package comm is the state synchronization channel: one Channel per
// connected session, subscribed to the shared state document and the roster
// subtree, reconciling both into a local game.State and, for privileged
// roles, pushing mutations back into the store.
package comm

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mjrt0817/quiz-bonenkai/internal/game"
	"github.com/mjrt0817/quiz-bonenkai/internal/roster"
	"github.com/mjrt0817/quiz-bonenkai/internal/store"
)

type Role string

const (
	RoleHost   Role = "HOST"
	RoleAdmin  Role = "ADMIN"
	RolePlayer Role = "PLAYER"
)

func (r Role) Privileged() bool { return r == RoleHost || r == RoleAdmin }

func ParseRole(s string) (Role, bool) {
	switch s {
	case "host":
		return RoleHost, true
	case "admin":
		return RoleAdmin, true
	case "player":
		return RolePlayer, true
	default:
		return "", false
	}
}

type Channel struct {
	role        Role
	st          *store.TreeStore
	statePath   string
	playersPath string
	roomCode    string
	rules       game.Rules
	log         *zap.Logger

	mu     sync.Mutex
	state  game.State
	closed bool

	out    chan game.State
	ctx    context.Context
	cancel context.CancelFunc
}

// Open subscribes the channel to both replicated paths and starts the
// reconciliation loop. The first snapshot arrives on Snapshots() almost
// immediately (the store delivers current values on subscribe).
func Open(parent context.Context, st *store.TreeStore, roomCode, statePath, playersPath string, role Role, rules game.Rules, log *zap.Logger) (*Channel, error) {
	ctx, cancel := context.WithCancel(parent)
	c := &Channel{
		role:        role,
		st:          st,
		statePath:   statePath,
		playersPath: playersPath,
		roomCode:    roomCode,
		rules:       rules,
		log:         log,
		state:       game.NewState(roomCode, rules),
		out:         make(chan game.State, 8),
		ctx:         ctx,
		cancel:      cancel,
	}

	stateSub, err := st.Subscribe(statePath)
	if err != nil {
		cancel()
		return nil, err
	}
	playersSub, err := st.Subscribe(playersPath)
	if err != nil {
		stateSub.Cancel()
		cancel()
		return nil, err
	}

	go c.loop(stateSub, playersSub)
	return c, nil
}

func (c *Channel) Role() Role { return c.role }

// Snapshots streams the reconciled state. The channel is closed on Close.
func (c *Channel) Snapshots() <-chan game.State { return c.out }

// State returns a copy of the current reconciled state.
func (c *Channel) State() game.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

func (c *Channel) Close() { c.cancel() }

func (c *Channel) loop(stateSub, playersSub *store.Subscription) {
	defer func() {
		c.mu.Lock()
		c.closed = true
		close(c.out)
		c.mu.Unlock()
	}()
	defer stateSub.Cancel()
	defer playersSub.Cancel()
	for {
		select {
		case <-c.ctx.Done():
			return
		case snap, ok := <-stateSub.C:
			if !ok {
				return
			}
			c.onStateSnapshot(snap.Value)
		case snap, ok := <-playersSub.C:
			if !ok {
				return
			}
			c.onRosterSnapshot(snap.Value)
		}
	}
}

// onStateSnapshot reconciles one whole-document snapshot. A nil value means
// the room has never been written; whichever privileged channel sees it
// first initializes the default document. Two privileged channels racing
// here both write the same default, which is harmless.
func (c *Channel) onStateSnapshot(doc any) {
	if doc == nil {
		if !c.role.Privileged() {
			return
		}
		// Re-read before writing: the nil snapshot may be stale by now and
		// the default must never clobber a newer document. Two privileged
		// channels racing past this check both write the same default.
		if current, err := c.st.Read(c.statePath); err != nil || current != nil {
			return
		}
		if err := c.st.WriteWhole(c.statePath, game.NewState(c.roomCode, c.rules)); err != nil {
			c.log.Warn("bootstrap write failed", zap.Error(err))
		}
		return
	}
	next := DecodeState(doc, game.NewState(c.roomCode, c.rules))
	c.mu.Lock()
	c.state = next
	emit := next.Clone()
	c.mu.Unlock()
	c.emit(emit)
}

// onRosterSnapshot replaces the local player list with the live roster and,
// on privileged channels, denormalizes it into the state document so
// state-only subscribers see the player list without a second subscription.
func (c *Channel) onRosterSnapshot(doc any) {
	players := roster.DecodePlayers(doc)
	if players == nil {
		players = []game.Player{}
	}
	c.mu.Lock()
	c.state.Players = players
	emit := c.state.Clone()
	c.mu.Unlock()
	c.emit(emit)

	if c.role.Privileged() {
		if err := c.st.WriteWhole(c.statePath+"/players", players); err != nil {
			c.log.Warn("roster denormalization failed", zap.Error(err))
		}
	}
}

// UpdateState applies the updater to the last known state, writes the result
// wholesale to the store and keeps the local copy optimistically. For player
// roles this is a silent no-op. Whole-document last-writer-wins: two
// privileged sessions mutating concurrently can lose one update. Accepted
// for this domain (one human operator at a time).
func (c *Channel) UpdateState(updater func(game.State) game.State) error {
	if !c.role.Privileged() {
		return nil
	}
	c.mu.Lock()
	next := updater(c.state.Clone())
	c.state = next
	emit := next.Clone()
	c.mu.Unlock()
	c.emit(emit)

	if err := c.st.WriteWhole(c.statePath, next); err != nil {
		// Keep the optimistic local copy; the next successful write heals
		// the divergence.
		c.log.Warn("state write failed", zap.Error(err))
		return err
	}
	return nil
}

// Do runs one game command through the state machine and persists the
// result. Illegal commands leave the state untouched and return the
// machine's sentinel error. Player roles: silent no-op.
func (c *Channel) Do(cmd game.Command) ([]game.Event, error) {
	if !c.role.Privileged() {
		return nil, nil
	}
	c.mu.Lock()
	next, events, err := game.Apply(c.state, cmd, c.rules)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.state = next
	emit := next.Clone()
	c.mu.Unlock()
	c.emit(emit)

	if werr := c.st.WriteWhole(c.statePath, next); werr != nil {
		c.log.Warn("state write failed", zap.String("cmd", string(cmd.Type)), zap.Error(werr))
	}
	return events, nil
}

// emit pushes a snapshot to the session, dropping the oldest pending one
// when the consumer lags; only the latest document matters.
func (c *Channel) emit(s game.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for {
		select {
		case c.out <- s:
			return
		default:
			select {
			case <-c.out:
			default:
			}
		}
	}
}
