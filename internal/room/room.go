// Package room implements the hub's per-script collaboration actor: one
// Room owns exactly one crdt.Document and one awareness.Set, serializing
// every join, leave, and incoming frame through a single goroutine so
// the CRDT and presence state never need their own external locking
// from the caller's perspective.
//
// The single-loop-plus-mailbox shape follows the teacher's
// SessionManager event loop (internal/services/collaboration), scoped
// down from one loop per server to one loop per room.
package room

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"collabhub/internal/auth"
	"collabhub/internal/awareness"
	"collabhub/internal/bus"
	"collabhub/internal/crdt"
	"collabhub/internal/logging"
	"collabhub/internal/protocol"
	"collabhub/internal/snapshot"

	"github.com/rs/zerolog"
)

// Session is the consumer-driven view a Room needs of a connected
// client, implemented by internal/session.ClientSession.
type Session interface {
	ID() string
	ClientID() uint32
	Role() auth.Role
	Send(payload []byte)
}

type cmdKind int

const (
	cmdJoin cmdKind = iota
	cmdLeave
	cmdFrame
	cmdReplaceAll
	cmdBusUpdate
	cmdBusAwareness
	cmdPersist
	cmdEvictCheck
	cmdSweepAwareness
	cmdStop
)

type replaceResult struct {
	changed bool
	version uint64
}

type command struct {
	kind    cmdKind
	session Session
	frame   *protocol.Frame
	payload []byte
	text    string
	result  chan replaceResult
	done    chan struct{}
}

// Config bundles the tunables a Room needs that come from process
// configuration rather than from the room's own state.
type Config struct {
	Debounce         time.Duration
	EvictTimeout     time.Duration
	AwarenessTimeout time.Duration
}

// Room is a single script's live collaboration session.
type Room struct {
	name   string
	doc    *crdt.Document
	aware  *awareness.Set
	store  snapshot.Store
	msgBus bus.Bus
	cfg    Config
	log    zerolog.Logger

	mailbox chan command

	sessions        map[Session]bool
	version         uint64 // mutated only by the loop goroutine
	versionSnapshot uint64 // atomic mirror, safe to read from any goroutine
	sessionCount    int32  // atomic mirror of len(sessions)
	persistTimer    *time.Timer
	evictTimer      *time.Timer
	unsubBus        func()

	onEvicted func(name string)

	stopOnce sync.Once
	stopped  chan struct{}
}

// New constructs a Room, loads its last snapshot (if any), and starts
// its event loop. onEvicted is called from within the loop exactly
// once, when the room decides to shut itself down after sitting idle.
func New(ctx context.Context, name string, store snapshot.Store, msgBus bus.Bus, cfg Config, onEvicted func(string)) *Room {
	r := &Room{
		name:      name,
		doc:       crdt.New(),
		aware:     awareness.New(),
		store:     store,
		msgBus:    msgBus,
		cfg:       cfg,
		log:       logging.Named("room").With().Str("room", name).Logger(),
		mailbox:   make(chan command, 64),
		sessions:  make(map[Session]bool),
		onEvicted: onEvicted,
		stopped:   make(chan struct{}),
	}

	if state, err := store.Load(ctx, name); err != nil {
		r.log.Warn().Err(err).Msg("snapshot load failed, starting empty")
	} else if state != nil {
		if err := r.doc.ApplyUpdate(state, "snapshot-load"); err != nil {
			r.log.Warn().Err(err).Msg("snapshot apply failed, starting empty")
		}
	}

	r.doc.OnUpdate(r.handleDocUpdate)

	if unsub, err := msgBus.SubscribeRoom(name, r.onBusUpdate, r.onBusAwareness); err != nil {
		r.log.Warn().Err(err).Msg("bus subscribe failed, running single-instance for this room")
	} else {
		r.unsubBus = unsub
	}

	r.scheduleEvict()
	go r.run()
	return r
}

func (r *Room) run() {
	for cmd := range r.mailbox {
		switch cmd.kind {
		case cmdJoin:
			r.handleJoin(cmd.session)
		case cmdLeave:
			r.handleLeave(cmd.session)
		case cmdFrame:
			r.handleFrame(cmd.session, cmd.frame)
		case cmdReplaceAll:
			r.handleReplaceAll(cmd.text, cmd.result)
		case cmdBusUpdate:
			r.handleBusUpdate(cmd.payload)
		case cmdBusAwareness:
			r.handleBusAwareness(cmd.payload)
		case cmdPersist:
			r.handlePersist()
		case cmdEvictCheck:
			if r.handleEvictCheck() {
				if cmd.done != nil {
					close(cmd.done)
				}
				return
			}
		case cmdSweepAwareness:
			r.handleSweepAwareness()
		case cmdStop:
			r.handlePersist()
			r.handleStop()
			if cmd.done != nil {
				close(cmd.done)
			}
			return
		}
		if cmd.done != nil {
			close(cmd.done)
		}
	}
}

// Join registers a session and sends it the server's current state
// vector (so the client can compute and send back what it's missing)
// plus the full current awareness snapshot.
func (r *Room) Join(s Session) {
	done := make(chan struct{})
	r.mailbox <- command{kind: cmdJoin, session: s, done: done}
	<-done
}

func (r *Room) handleJoin(s Session) {
	r.sessions[s] = true
	if r.evictTimer != nil {
		r.evictTimer.Stop()
		r.evictTimer = nil
	}

	s.Send(protocol.EncodeSyncStep1(r.doc.StateVector()))
	if !r.aware.Empty() {
		s.Send(protocol.EncodeAwareness(r.aware.EncodeAll()))
	}

	atomic.StoreInt32(&r.sessionCount, int32(len(r.sessions)))
	r.log.Info().Str("session", s.ID()).Int("sessions", len(r.sessions)).Msg("session joined")
}

// Leave deregisters a session and broadcasts its awareness removal.
func (r *Room) Leave(s Session) {
	done := make(chan struct{})
	r.mailbox <- command{kind: cmdLeave, session: s, done: done}
	<-done
}

func (r *Room) handleLeave(s Session) {
	if !r.sessions[s] {
		return
	}
	delete(r.sessions, s)

	if payload := r.aware.Remove([]uint32{s.ClientID()}); payload != nil {
		r.broadcastExcept(nil, protocol.EncodeAwareness(payload))
	}

	atomic.StoreInt32(&r.sessionCount, int32(len(r.sessions)))
	r.log.Info().Str("session", s.ID()).Int("sessions", len(r.sessions)).Msg("session left")

	if len(r.sessions) == 0 {
		r.scheduleEvict()
	}
}

// Dispatch hands an incoming decoded frame to the room's loop.
func (r *Room) Dispatch(s Session, frame *protocol.Frame) {
	r.mailbox <- command{kind: cmdFrame, session: s, frame: frame}
}

func (r *Room) handleFrame(s Session, frame *protocol.Frame) {
	switch frame.Type {
	case protocol.MessageSync:
		r.handleSyncFrame(s, frame)
	case protocol.MessageAwareness:
		r.handleAwarenessFrame(s, frame)
	}
}

func (r *Room) handleSyncFrame(s Session, frame *protocol.Frame) {
	switch frame.SyncSubType {
	case protocol.SyncStep1:
		update, err := r.doc.UpdateFromStateVector(frame.Payload)
		if err != nil {
			r.log.Warn().Err(err).Str("session", s.ID()).Msg("bad state vector, dropping")
			return
		}
		if update != nil {
			s.Send(protocol.EncodeSyncStep2(update))
		}

	case protocol.SyncStep2, protocol.SyncUpdate:
		if s.Role() == auth.RoleView {
			r.log.Debug().Str("session", s.ID()).Msg("dropping write from view-only session")
			return
		}
		if err := r.doc.ApplyUpdate(frame.Payload, "network"); err != nil {
			r.log.Warn().Err(err).Str("session", s.ID()).Msg("bad update, dropping")
			return
		}
		r.broadcastExcept(s, protocol.EncodeUpdate(frame.Payload))
	}
}

func (r *Room) handleAwarenessFrame(s Session, frame *protocol.Frame) {
	delta, err := r.aware.ApplyDelta(frame.AwarenessPayload)
	if err != nil {
		r.log.Warn().Err(err).Str("session", s.ID()).Msg("bad awareness delta, dropping")
		return
	}
	if len(delta.Added)+len(delta.Updated)+len(delta.Removed) == 0 {
		return
	}
	r.broadcastExcept(s, protocol.EncodeAwareness(frame.AwarenessPayload))
	if r.msgBus.Enabled() {
		if err := r.msgBus.PublishAwareness(r.name, frame.AwarenessPayload); err != nil {
			r.log.Warn().Err(err).Msg("bus publish awareness failed")
		}
	}
}

// ReplaceAll overwrites the room's script content in one transaction,
// used by the script sync HTTP endpoint.
// It reports whether the content actually differed from what the room
// already held.
func (r *Room) ReplaceAll(text string) (changed bool, version uint64) {
	result := make(chan replaceResult, 1)
	r.mailbox <- command{kind: cmdReplaceAll, text: text, result: result}
	res := <-result
	return res.changed, res.version
}

func (r *Room) handleReplaceAll(text string, result chan replaceResult) {
	changed := r.doc.Text() != text
	if changed {
		r.doc.ReplaceAll(text, "external-sync")
	}
	result <- replaceResult{changed: changed, version: r.version}
}

// Version returns the room's monotonic update counter. Safe to call
// from any goroutine: it only ever increases, so a stale read is at
// worst one update behind.
func (r *Room) Version() uint64 {
	return atomic.LoadUint64(&r.versionSnapshot)
}

// SessionCount returns the number of currently joined sessions. Safe to
// call from any goroutine; may lag a join/leave that's still in flight
// on the loop.
func (r *Room) SessionCount() int32 {
	return atomic.LoadInt32(&r.sessionCount)
}

// SweepAwareness is invoked by the janitor cron job. It drops awareness
// entries not refreshed within AwarenessTimeout and broadcasts their
// removal; the room runs no awareness timer of its own, so this sweep is
// the only place stale presence is reaped.
func (r *Room) SweepAwareness() {
	select {
	case r.mailbox <- command{kind: cmdSweepAwareness}:
	default:
	}
}

func (r *Room) handleSweepAwareness() {
	if payload := r.aware.Sweep(r.cfg.AwarenessTimeout); payload != nil {
		r.broadcastExcept(nil, protocol.EncodeAwareness(payload))
	}
}

func (r *Room) handleDocUpdate(update []byte, origin string) {
	r.version++
	atomic.StoreUint64(&r.versionSnapshot, r.version)

	switch origin {
	case "snapshot-load":
		return
	case "network":
		r.schedulePersist()
		if r.msgBus.Enabled() {
			if err := r.msgBus.PublishUpdate(r.name, update); err != nil {
				r.log.Warn().Err(err).Msg("bus publish update failed")
			}
		}
	case "external-sync":
		r.schedulePersist()
		r.broadcastExcept(nil, protocol.EncodeUpdate(update))
		if r.msgBus.Enabled() {
			if err := r.msgBus.PublishUpdate(r.name, update); err != nil {
				r.log.Warn().Err(err).Msg("bus publish update failed")
			}
		}
	case "bus":
		r.schedulePersist()
		r.broadcastExcept(nil, protocol.EncodeUpdate(update))
	}
}

// onBusUpdate/onBusAwareness are invoked by the bus's own goroutine;
// they only enqueue onto the room's mailbox to keep every mutation on
// the single loop goroutine.
func (r *Room) onBusUpdate(payload []byte) {
	select {
	case r.mailbox <- command{kind: cmdBusUpdate, payload: payload}:
	default:
	}
}

func (r *Room) onBusAwareness(payload []byte) {
	select {
	case r.mailbox <- command{kind: cmdBusAwareness, payload: payload}:
	default:
	}
}

func (r *Room) handleBusUpdate(payload []byte) {
	if err := r.doc.ApplyUpdate(payload, "bus"); err != nil {
		r.log.Warn().Err(err).Msg("bad update from bus, dropping")
	}
}

func (r *Room) handleBusAwareness(payload []byte) {
	delta, err := r.aware.ApplyDelta(payload)
	if err != nil {
		r.log.Warn().Err(err).Msg("bad awareness delta from bus, dropping")
		return
	}
	if len(delta.Added)+len(delta.Updated)+len(delta.Removed) == 0 {
		return
	}
	r.broadcastExcept(nil, protocol.EncodeAwareness(payload))
}

func (r *Room) handlePersist() {
	state := r.doc.EncodeStateAsUpdate()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.Save(ctx, r.name, state); err != nil {
		r.log.Warn().Err(err).Msg("snapshot save failed")
	}
}

func (r *Room) handleEvictCheck() bool {
	if len(r.sessions) > 0 {
		return false
	}
	r.log.Info().Msg("evicting idle room")
	r.handlePersist()
	if r.onEvicted != nil {
		r.onEvicted(r.name)
	}
	r.handleStop()
	return true
}

func (r *Room) handleStop() {
	if r.persistTimer != nil {
		r.persistTimer.Stop()
	}
	if r.evictTimer != nil {
		r.evictTimer.Stop()
	}
	if r.unsubBus != nil {
		r.unsubBus()
	}
	r.stopOnce.Do(func() { close(r.stopped) })
}

// Stop terminates the room's loop, flushing a final snapshot first.
// Safe to call even if the room already stopped itself via idle
// eviction.
func (r *Room) Stop() {
	done := make(chan struct{})
	select {
	case r.mailbox <- command{kind: cmdStop, done: done}:
	case <-r.stopped:
		return
	}
	select {
	case <-done:
	case <-r.stopped:
	}
}

func (r *Room) schedulePersist() {
	if r.persistTimer != nil {
		r.persistTimer.Stop()
	}
	r.persistTimer = time.AfterFunc(r.cfg.Debounce, func() {
		select {
		case r.mailbox <- command{kind: cmdPersist}:
		default:
		}
	})
}

func (r *Room) scheduleEvict() {
	if r.evictTimer != nil {
		r.evictTimer.Stop()
	}
	r.evictTimer = time.AfterFunc(r.cfg.EvictTimeout, func() {
		select {
		case r.mailbox <- command{kind: cmdEvictCheck}:
		default:
		}
	})
}

// broadcastExcept sends payload to every joined session other than
// except (nil means send to everyone).
func (r *Room) broadcastExcept(except Session, payload []byte) {
	for s := range r.sessions {
		if s == except {
			continue
		}
		s.Send(payload)
	}
}
