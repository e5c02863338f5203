package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mossy-p/consult-signaling/internal/metrics"
	"github.com/mossy-p/consult-signaling/internal/models"
	"github.com/mossy-p/consult-signaling/internal/registry"
)

// ErrRelayClosed is returned for events submitted after Run has stopped.
var ErrRelayClosed = errors.New("relay: closed")

// Session is the relay's view of one live signaling connection.
type Session interface {
	// ID is the participant identifier, stable for the connection's lifetime.
	ID() string
	// Send enqueues msg for delivery without blocking.
	Send(msg models.SignalMessage) error
	// Close stops outbound delivery. Called once, after all rooms are left.
	Close()
}

// Presence mirrors room membership outside the process.
type Presence interface {
	Add(ctx context.Context, room, participant string) error
	Remove(ctx context.Context, room, participant string) error
}

// Options configures a Relay. Zero values select defaults.
type Options struct {
	Presence Presence
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// ExclusiveRooms makes a join leave every other room first.
	ExclusiveRooms bool

	QueueSize       int
	PresenceTimeout time.Duration
}

type memberKey struct {
	room        string
	participant string
}

type eventKind int

const (
	eventConnect eventKind = iota
	eventDisconnect
	eventMessage
	eventQuery
)

type event struct {
	kind        eventKind
	session     Session
	participant string
	msg         models.SignalMessage
	query       func()
}

// Relay is the signaling state machine. All state is owned by the goroutine
// running Run; every other method only enqueues events, so the registry
// mutations and fan-outs of one event are atomic with respect to the rest.
type Relay struct {
	registry *registry.Registry
	sessions map[string]Session
	// phases holds ready/negotiating flags; joined members without an entry are PhaseJoined.
	phases   map[memberKey]models.Phase

	presence        Presence
	presenceTimeout time.Duration
	exclusive       bool
	metrics         *metrics.Metrics
	logger          *slog.Logger

	events chan event
	done   chan struct{}
}

// New returns a Relay with an empty registry; call Run to start it.
func New(opts Options) *Relay {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.PresenceTimeout <= 0 {
		opts.PresenceTimeout = 2 * time.Second
	}
	return &Relay{
		registry:        registry.New(),
		sessions:        make(map[string]Session),
		phases:          make(map[memberKey]models.Phase),
		presence:        opts.Presence,
		presenceTimeout: opts.PresenceTimeout,
		exclusive:       opts.ExclusiveRooms,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		events:          make(chan event, opts.QueueSize),
		done:            make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled, then closes every session.
func (r *Relay) Run(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			for id, s := range r.sessions {
				s.Close()
				delete(r.sessions, id)
			}
			r.logger.Info("relay stopped")
			return
		case ev := <-r.events:
			r.handle(ev)
		}
	}
}

// Connect registers a session. Its participant ID is announced to it with a
// connected message before anything else.
func (r *Relay) Connect(s Session) error {
	return r.enqueue(event{kind: eventConnect, session: s, participant: s.ID()})
}

// Disconnect removes the participant from every room it occupies and closes its session.
func (r *Relay) Disconnect(participant string) error {
	return r.enqueue(event{kind: eventDisconnect, participant: participant})
}

// Dispatch submits an inbound envelope received from participant.
func (r *Relay) Dispatch(participant string, msg models.SignalMessage) error {
	return r.enqueue(event{kind: eventMessage, participant: participant, msg: msg})
}

// Room returns the current roster of room. Since the query is queued behind
// every earlier event, it also reflects all of them.
func (r *Relay) Room(ctx context.Context, room string) (models.RoomInfo, error) {
	reply := make(chan models.RoomInfo, 1)
	err := r.enqueue(event{kind: eventQuery, query: func() {
		info := models.RoomInfo{ID: room, Participants: []models.ParticipantInfo{}}
		for _, id := range r.registry.Members(room) {
			info.Participants = append(info.Participants, models.ParticipantInfo{ID: id, Phase: r.phase(room, id)})
		}
		reply <- info
	}})
	if err != nil {
		return models.RoomInfo{}, err
	}

	select {
	case info := <-reply:
		return info, nil
	case <-ctx.Done():
		return models.RoomInfo{}, ctx.Err()
	case <-r.done:
		return models.RoomInfo{}, ErrRelayClosed
	}
}

func (r *Relay) enqueue(ev event) error {
	select {
	case <-r.done:
		return ErrRelayClosed
	default:
	}

	select {
	case r.events <- ev:
		return nil
	case <-r.done:
		return ErrRelayClosed
	}
}

func (r *Relay) handle(ev event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("relay event panicked", "participant", ev.participant, "type", ev.msg.Type, "panic", fmt.Sprint(rec))
		}
	}()

	switch ev.kind {
	case eventConnect:
		r.connect(ev.session)
	case eventDisconnect:
		r.disconnect(ev.participant)
	case eventMessage:
		r.route(ev.participant, ev.msg)
	case eventQuery:
		ev.query()
	}
}

func (r *Relay) connect(s Session) {
	id := s.ID()
	if old, exists := r.sessions[id]; exists {
		r.logger.Warn("participant id reused, closing previous session", "participant", id)
		old.Close()
	}
	r.sessions[id] = s
	r.metrics.Inc(metrics.SessionsOpened)
	r.logger.Debug("session connected", "participant", id)

	r.send(id, models.SignalMessage{Type: models.SignalTypeConnected, ParticipantID: id})
}

func (r *Relay) disconnect(participant string) {
	rooms := r.registry.RoomsContaining(participant)
	for _, room := range rooms {
		r.leave(room, participant)
	}
	if len(rooms) > 0 {
		r.metrics.Inc(metrics.DisconnectCleanups)
	}

	if s, ok := r.sessions[participant]; ok {
		delete(r.sessions, participant)
		s.Close()
		r.metrics.Inc(metrics.SessionsClosed)
	}
	r.logger.Info("participant disconnected", "participant", participant, "rooms", len(rooms))
}

func (r *Relay) route(participant string, msg models.SignalMessage) {
	if _, ok := r.sessions[participant]; !ok {
		r.metrics.Inc(metrics.StaleReferences)
		r.logger.Debug("dropping envelope from unknown session", "participant", participant, "type", msg.Type)
		return
	}

	// Sender identity always comes from the connection.
	msg.From = participant

	switch msg.Type {
	case models.SignalTypeJoinRoom:
		if !r.requireRoom(participant, msg) {
			return
		}
		r.join(msg.RoomID, participant)

	case models.SignalTypeReadyToConnect:
		if !r.requireRoom(participant, msg) {
			return
		}
		r.ready(msg.RoomID, participant)

	case models.SignalTypeSignal:
		if msg.To == "" {
			r.malformed(participant, msg, "missing target participant")
			return
		}
		r.signal(participant, msg)

	case models.SignalTypeLeaveRoom:
		if !r.requireRoom(participant, msg) {
			return
		}
		r.leave(msg.RoomID, participant)

	case models.SignalTypeChatMessage:
		if !r.requireRoom(participant, msg) {
			return
		}
		r.chat(participant, msg)

	default:
		r.malformed(participant, msg, "unknown message type")
	}
}

func (r *Relay) requireRoom(participant string, msg models.SignalMessage) bool {
	if msg.RoomID == "" {
		r.malformed(participant, msg, "missing roomId")
		return false
	}
	return true
}

func (r *Relay) malformed(participant string, msg models.SignalMessage, reason string) {
	r.metrics.Inc(metrics.MalformedEnvelopes)
	r.logger.Warn("dropping malformed envelope", "participant", participant, "type", msg.Type, "reason", reason)
}

func (r *Relay) join(room, participant string) {
	if r.registry.Contains(room, participant) {
		r.metrics.Inc(metrics.DuplicateJoins)
		r.logger.Debug("participant already in room", "participant", participant, "room", room)
		return
	}

	if r.exclusive {
		for _, previous := range r.registry.RoomsContaining(participant) {
			r.logger.Info("leaving previous room on join", "participant", participant, "room", previous, "next", room)
			r.leave(previous, participant)
		}
	}

	// The roster is taken before the add so the joiner never sees itself.
	existing := r.registry.MembersExcluding(room, participant)
	r.registry.Add(room, participant)
	r.mirror(room, participant, true)
	r.metrics.Inc(metrics.Joins)

	r.logger.Info("participant joined room", "participant", participant, "room", room, "members", len(existing)+1)

	r.send(participant, models.SignalMessage{
		Type:         models.SignalTypeExistingUsers,
		RoomID:       room,
		Participants: existing,
	})
	r.broadcast(existing, models.SignalMessage{
		Type:          models.SignalTypeParticipantJoined,
		RoomID:        room,
		ParticipantID: participant,
	})
}

func (r *Relay) ready(room, participant string) {
	if !r.registry.Contains(room, participant) {
		r.metrics.Inc(metrics.StaleReferences)
		r.logger.Debug("ready from non-member", "participant", participant, "room", room)
		return
	}

	key := memberKey{room: room, participant: participant}
	if r.phases[key] != models.PhaseNegotiating {
		r.phases[key] = models.PhaseReady
	}
	r.metrics.Inc(metrics.ReadyBroadcasts)
	r.logger.Debug("participant ready", "participant", participant, "room", room)

	r.broadcast(r.registry.MembersExcluding(room, participant), models.SignalMessage{
		Type:          models.SignalTypePeerReady,
		RoomID:        room,
		ParticipantID: participant,
	})
}

func (r *Relay) signal(from string, msg models.SignalMessage) {
	if _, ok := r.sessions[msg.To]; !ok {
		r.metrics.Inc(metrics.SignalsDropped)
		r.logger.Debug("dropping signal for unknown participant", "from", from, "to", msg.To)
		return
	}

	for _, room := range r.registry.RoomsContaining(from) {
		if r.registry.Contains(room, msg.To) {
			r.phases[memberKey{room: room, participant: from}] = models.PhaseNegotiating
			r.phases[memberKey{room: room, participant: msg.To}] = models.PhaseNegotiating
		}
	}

	r.metrics.Inc(metrics.SignalsForwarded)
	r.send(msg.To, models.SignalMessage{
		Type:    models.SignalTypeSignal,
		RoomID:  msg.RoomID,
		From:    from,
		Payload: msg.Payload,
	})
}

func (r *Relay) leave(room, participant string) {
	if !r.registry.Remove(room, participant) {
		r.metrics.Inc(metrics.StaleReferences)
		r.logger.Debug("leave from non-member", "participant", participant, "room", room)
		return
	}
	delete(r.phases, memberKey{room: room, participant: participant})
	r.mirror(room, participant, false)
	r.metrics.Inc(metrics.Leaves)

	remaining := r.registry.Members(room)
	r.logger.Info("participant left room", "participant", participant, "room", room, "members", len(remaining))

	r.broadcast(remaining, models.SignalMessage{
		Type:          models.SignalTypeParticipantDisconnected,
		RoomID:        room,
		ParticipantID: participant,
	})
}

func (r *Relay) chat(from string, msg models.SignalMessage) {
	if !r.registry.Contains(msg.RoomID, from) {
		r.metrics.Inc(metrics.StaleReferences)
		r.logger.Debug("chat from non-member", "participant", from, "room", msg.RoomID)
		return
	}
	r.metrics.Inc(metrics.ChatMessages)
	r.broadcast(r.registry.MembersExcluding(msg.RoomID, from), models.SignalMessage{
		Type:    models.SignalTypeChatMessage,
		RoomID:  msg.RoomID,
		From:    from,
		Payload: msg.Payload,
	})
}

func (r *Relay) phase(room, participant string) models.Phase {
	if !r.registry.Contains(room, participant) {
		return models.PhaseUnjoined
	}
	if p, ok := r.phases[memberKey{room: room, participant: participant}]; ok {
		return p
	}
	return models.PhaseJoined
}

func (r *Relay) broadcast(recipients []string, msg models.SignalMessage) {
	for _, id := range recipients {
		r.send(id, msg)
	}
}

// send never fails the caller: a dead or slow recipient is logged and skipped.
func (r *Relay) send(participant string, msg models.SignalMessage) {
	s, ok := r.sessions[participant]
	if !ok {
		r.logger.Debug("no session for recipient", "participant", participant, "type", msg.Type)
		return
	}
	if err := s.Send(msg); err != nil {
		r.metrics.Inc(metrics.SendFailures)
		r.logger.Warn("failed to deliver message", "participant", participant, "type", msg.Type, "error", err)
	}
}

func (r *Relay) mirror(room, participant string, present bool) {
	if r.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.presenceTimeout)
	defer cancel()

	var err error
	if present {
		err = r.presence.Add(ctx, room, participant)
	} else {
		err = r.presence.Remove(ctx, room, participant)
	}
	if err != nil {
		r.metrics.Inc(metrics.PresenceErrors)
		r.logger.Warn("presence mirror failed", "room", room, "participant", participant, "error", err)
	}
}
