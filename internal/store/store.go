// Package store is the shared replicated tree every client syncs through.
// It is a path-keyed document store run as a single actor goroutine: all
// mutations and subscriptions flow through one inbox channel, so writes to a
// path fan out to subscribers in apply order. There is no cross-path
// ordering guarantee beyond the atomicity of PatchMultiple.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("store closed")

// Snapshot is one whole-subtree value delivered to a subscriber. Value is
// nil until the first write under the subscribed path.
type Snapshot struct {
	Value any
}

type Subscription struct {
	C    <-chan Snapshot
	id   string
	path string
	st   *TreeStore
}

// Cancel detaches the subscription. The snapshot channel is closed by the
// store; pending snapshots may still be read.
func (s *Subscription) Cancel() {
	select {
	case s.st.inbox <- cancelMsg{path: s.path, id: s.id}:
	case <-s.st.ctx.Done():
	}
}

type storeMsg interface{ isStoreMsg() }

type subscribeMsg struct {
	path  string
	reply chan *Subscription
}

type cancelMsg struct {
	path, id string
}

type readMsg struct {
	path  string
	reply chan any
}

type writeMsg struct {
	path  string
	value any
	done  chan struct{}
}

type patchMsg struct {
	values map[string]any
	done   chan struct{}
}

type deleteMsg struct {
	path string
	done chan struct{}
}

func (subscribeMsg) isStoreMsg() {}
func (cancelMsg) isStoreMsg()    {}
func (readMsg) isStoreMsg()      {}
func (writeMsg) isStoreMsg()     {}
func (patchMsg) isStoreMsg()     {}
func (deleteMsg) isStoreMsg()    {}

type subscriber struct {
	id  string
	out chan Snapshot
}

type TreeStore struct {
	inbox   chan storeMsg
	root    map[string]any
	subs    map[string][]subscriber // subscribed path -> subscribers
	journal Journal
	seq     int64
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New starts the store actor. When a journal is supplied the latest
// replicated documents are restored before the first subscriber attaches.
func New(parent context.Context, log *zap.Logger, journal Journal) (*TreeStore, error) {
	ctx, cancel := context.WithCancel(parent)
	s := &TreeStore{
		inbox:   make(chan storeMsg, 64),
		root:    map[string]any{},
		subs:    map[string][]subscriber{},
		journal: journal,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	if journal != nil {
		entries, err := journal.Load(ctx)
		if err != nil {
			cancel()
			return nil, err
		}
		for _, e := range entries {
			s.applyWrite(e.Path, e.Value)
			if e.Seq > s.seq {
				s.seq = e.Seq
			}
		}
	}
	go s.loop()
	return s, nil
}

func (s *TreeStore) Close() { s.cancel() }

// Subscribe registers for whole-subtree snapshots at path. The current value
// (nil if absent) is delivered immediately.
func (s *TreeStore) Subscribe(path string) (*Subscription, error) {
	reply := make(chan *Subscription, 1)
	select {
	case s.inbox <- subscribeMsg{path: path, reply: reply}:
		return <-reply, nil
	case <-s.ctx.Done():
		return nil, ErrClosed
	}
}

// Read returns a point-in-time copy of the subtree at path, nil if absent.
func (s *TreeStore) Read(path string) (any, error) {
	reply := make(chan any, 1)
	select {
	case s.inbox <- readMsg{path: path, reply: reply}:
		return <-reply, nil
	case <-s.ctx.Done():
		return nil, ErrClosed
	}
}

// WriteWhole replaces the entire subtree at path.
func (s *TreeStore) WriteWhole(path string, value any) error {
	return s.send(writeMsg{path: path, value: value, done: make(chan struct{})})
}

// PatchMultiple applies every path=value pair as one atomic mutation; each
// affected subscription root fans out a single snapshot.
func (s *TreeStore) PatchMultiple(values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	return s.send(patchMsg{values: values, done: make(chan struct{})})
}

// DeleteSubtree removes the subtree at path; subscribers under it observe a
// nil snapshot.
func (s *TreeStore) DeleteSubtree(path string) error {
	return s.send(deleteMsg{path: path, done: make(chan struct{})})
}

func (s *TreeStore) send(m storeMsg) error {
	var done chan struct{}
	switch msg := m.(type) {
	case writeMsg:
		done = msg.done
	case patchMsg:
		done = msg.done
	case deleteMsg:
		done = msg.done
	}
	select {
	case s.inbox <- m:
	case <-s.ctx.Done():
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	}
}

func (s *TreeStore) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case subscribeMsg:
				sub := subscriber{id: uuid.NewString(), out: make(chan Snapshot, 8)}
				s.subs[msg.path] = append(s.subs[msg.path], sub)
				sub.out <- Snapshot{Value: s.valueAt(msg.path)}
				msg.reply <- &Subscription{C: sub.out, id: sub.id, path: msg.path, st: s}

			case cancelMsg:
				s.dropSubscriber(msg.path, msg.id)

			case readMsg:
				msg.reply <- s.valueAt(msg.path)

			case writeMsg:
				s.applyWrite(msg.path, msg.value)
				s.record(msg.path, msg.value)
				s.fanOut([]string{msg.path})
				close(msg.done)

			case patchMsg:
				paths := make([]string, 0, len(msg.values))
				for p, v := range msg.values {
					s.applyWrite(p, v)
					s.record(p, v)
					paths = append(paths, p)
				}
				s.fanOut(paths)
				close(msg.done)

			case deleteMsg:
				s.applyDelete(msg.path)
				if s.journal != nil {
					if err := s.journal.DeletePrefix(s.ctx, msg.path); err != nil {
						s.log.Warn("journal delete failed", zap.String("path", msg.path), zap.Error(err))
					}
				}
				s.fanOut([]string{msg.path})
				close(msg.done)
			}
		}
	}
}

func (s *TreeStore) shutdown() {
	for path, subs := range s.subs {
		for _, sub := range subs {
			close(sub.out)
		}
		delete(s.subs, path)
	}
}

func (s *TreeStore) record(path string, value any) {
	if s.journal == nil {
		return
	}
	s.seq++
	if err := s.journal.Record(s.ctx, path, value, s.seq); err != nil {
		// The in-memory tree stays authoritative; a journal gap only costs
		// durability across restarts.
		s.log.Warn("journal record failed", zap.String("path", path), zap.Error(err))
	}
}

// fanOut delivers snapshots to every subscription whose subtree overlaps one
// of the mutated paths. Slow subscribers are dropped, same policy as a slow
// websocket client.
func (s *TreeStore) fanOut(mutated []string) {
	for path, subs := range s.subs {
		if !anyOverlaps(mutated, path) {
			continue
		}
		snap := Snapshot{Value: s.valueAt(path)}
		kept := subs[:0]
		for _, sub := range subs {
			select {
			case sub.out <- snap:
				kept = append(kept, sub)
			default:
				close(sub.out)
			}
		}
		s.subs[path] = kept
	}
}

func (s *TreeStore) dropSubscriber(path, id string) {
	subs := s.subs[path]
	for i, sub := range subs {
		if sub.id == id {
			close(sub.out)
			s.subs[path] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// overlaps reports whether a mutation at p is visible to a subscription at
// sub: either inside its subtree or an ancestor rewrite above it.
func overlaps(p, sub string) bool {
	return p == sub || strings.HasPrefix(p, sub+"/") || strings.HasPrefix(sub, p+"/")
}

func anyOverlaps(paths []string, sub string) bool {
	for _, p := range paths {
		if overlaps(p, sub) {
			return true
		}
	}
	return false
}

func (s *TreeStore) applyWrite(path string, value any) {
	segs := split(path)
	node := s.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[seg] = child
		}
		node = child
	}
	node[segs[len(segs)-1]] = normalize(value)
}

func (s *TreeStore) applyDelete(path string) {
	segs := split(path)
	node := s.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			return
		}
		node = child
	}
	delete(node, segs[len(segs)-1])
}

func (s *TreeStore) valueAt(path string) any {
	var node any = s.root
	for _, seg := range split(path) {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return normalize(node)
}

func split(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// normalize round-trips a value through JSON so stored documents are plain
// maps, slices and scalars. This both deep-clones (snapshots never alias the
// tree) and strips anything that would not survive replication.
func normalize(value any) any {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
