// sim/eventstream.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/standoff-sim/standoff/log"
	"github.com/standoff-sim/standoff/math"
)

// EventStream provides a basic pub/sub event interface that allows any
// part of the system to post an event to the stream and other parts to
// subscribe and receive messages from the stream. It carries all of the
// in-game events a session generates; the per-player delta builders and
// the server each hold their own subscription.
type EventStream struct {
	mu            sync.Mutex
	events        []Event
	subscriptions map[*EventsSubscription]interface{}
	lastPost      time.Time
	warnedLong    bool
	done          chan struct{}
	lg            *log.Logger
}

type EventsSubscription struct {
	stream *EventStream
	// offset is offset in the EventStream stream array up to which the
	// subscriber has consumed events so far.
	offset      int
	source      string
	lastGet     time.Time
	warnedNoGet bool
}

func (e *EventsSubscription) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("offset", e.offset),
		slog.String("source", e.source),
		slog.Time("last_get", e.lastGet))
}

func (e *EventsSubscription) PostEvent(event Event) {
	e.stream.Post(event)
}

func NewEventStream(lg *log.Logger) *EventStream {
	es := &EventStream{
		subscriptions: make(map[*EventsSubscription]interface{}),
		lastPost:      time.Now(),
		done:          make(chan struct{}),
		lg:            lg,
	}
	go es.monitor()
	return es
}

// Subscribe registers a new subscriber to the stream and returns an
// EventsSubscription that can then be used to consume posted events.
func (e *EventStream) Subscribe() *EventsSubscription {
	// Record the subscriber's callsite, so that we can more easily debug
	// subscribers that aren't consuming events.
	_, fn, line, _ := runtime.Caller(1)
	source := fmt.Sprintf("%s:%d", fn, line)

	sub := &EventsSubscription{
		stream:  e,
		offset:  len(e.events),
		source:  source,
		lastGet: time.Now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.subscriptions[sub] = nil
	return sub
}

func (e *EventStream) monitor() {
	tick := time.Tick(5 * time.Second)

	for {
		<-tick

		select {
		case <-e.done:
			return
		default:
		}

		e.mu.Lock()

		e.compact()

		if len(e.events) > 1000 && !e.warnedLong {
			// It's likely that one of the subscribers is out to lunch if
			// the stream has grown this long.
			e.lg.Warn("Long EventStream", slog.Int("length", len(e.events)),
				slog.Int("subscriptions", len(e.subscriptions)))
			e.warnedLong = true
		}

		// Check if any of the subscribers haven't been consuming events,
		// though only if events are being posted to the stream so we don't
		// complain when the game is over, etc.
		if time.Since(e.lastPost) < 5*time.Second {
			for sub := range e.subscriptions {
				if d := time.Since(sub.lastGet); d > 10*time.Second && !sub.warnedNoGet {
					e.lg.Warn("Subscriber has not called Get() recently",
						slog.Duration("duration", d), slog.Any("subscriber", sub))
					sub.warnedNoGet = true
				}
			}
		}

		e.mu.Unlock()
	}
}

// Unsubscribe removes a subscriber from the subscriber list
func (e *EventsSubscription) Unsubscribe() {
	e.stream.mu.Lock()
	defer e.stream.mu.Unlock()

	if _, ok := e.stream.subscriptions[e]; !ok {
		e.stream.lg.Errorf("Attempted to unsubscribe invalid subscription: %+v", e)
	}
	delete(e.stream.subscriptions, e)
	e.stream = nil
}

// Post adds an event to the event stream. Events are delivered to
// subscribers in posting order.
func (e *EventStream) Post(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lg.Debug("posted event", slog.Any("event", event))

	// Ignore the event if no one's paying attention.
	if len(e.subscriptions) > 0 {
		e.lastPost = time.Now()
		e.events = append(e.events, event)
	}
}

// Get returns all of the events from the stream since the last time Get
// was called for the subscription. Note that events posted before a
// subscription was created are never reported for it.
func (e *EventsSubscription) Get() []Event {
	e.stream.mu.Lock()
	defer e.stream.mu.Unlock()

	if _, ok := e.stream.subscriptions[e]; !ok {
		e.stream.lg.Errorf("Attempted to get with unregistered subscription: %+v", e)
		return nil
	}

	events := slices.Clone(e.stream.events[e.offset:])
	e.offset = len(e.stream.events)
	e.lastGet = time.Now()
	e.warnedNoGet = false

	return events
}

func (e *EventStream) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case e.done <- struct{}{}:
	default:
	}

	close(e.done)
	clear(e.subscriptions)
}

// compact reclaims storage for events that all subscribers have seen; it
// is called periodically so that EventStream memory usage doesn't grow
// without bound.
func (e *EventStream) compact() {
	minOffset := len(e.events)
	for sub := range e.subscriptions {
		if sub.offset < minOffset {
			minOffset = sub.offset
		}
	}

	if minOffset > cap(e.events)/2 {
		n := len(e.events) - minOffset

		copy(e.events, e.events[minOffset:])
		e.events = e.events[:n]

		for sub := range e.subscriptions {
			sub.offset -= minOffset
		}

		e.warnedLong = false // reset this after a successful compact.
	}
}

// implements slog.LogValuer
func (e *EventStream) LogValue() slog.Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	items := []slog.Attr{slog.Int("len", len(e.events)), slog.Int("cap", cap(e.events))}
	if len(e.events) > 0 {
		items = append(items, slog.Any("last_element", e.events[len(e.events)-1]))
	}
	items = append(items, slog.Int("subscriptions", len(e.subscriptions)))
	return slog.GroupValue(items...)
}

///////////////////////////////////////////////////////////////////////////

type EventType int

const (
	DefconChangeEvent EventType = iota
	MissileLaunchEvent
	CityHitEvent
	BuildingDestroyedEvent
	InterceptionEvent
	SatelliteLaunchEvent
	SatelliteDestroyedEvent
	LaunchDetectedEvent
	GameEndEvent
	HackProgressEvent
	HackCompleteEvent
	HackTracedEvent
	HackDisconnectedEvent
	SystemCompromisedEvent
	IntrusionAlertEvent
	CommandRejectedEvent
	NumEventTypes
)

var eventTypeNames = [NumEventTypes]string{
	DefconChangeEvent:       "defcon_change",
	MissileLaunchEvent:      "missile_launch",
	CityHitEvent:            "city_hit",
	BuildingDestroyedEvent:  "building_destroyed",
	InterceptionEvent:       "interception",
	SatelliteLaunchEvent:    "satellite_launch",
	SatelliteDestroyedEvent: "satellite_destroyed",
	LaunchDetectedEvent:     "launch_detected",
	GameEndEvent:            "game_end",
	HackProgressEvent:       "hack_progress",
	HackCompleteEvent:       "hack_complete",
	HackTracedEvent:         "hack_traced",
	HackDisconnectedEvent:   "hack_disconnected",
	SystemCompromisedEvent:  "system_compromised",
	IntrusionAlertEvent:     "intrusion_alert",
	CommandRejectedEvent:    "command_rejected",
}

func (t EventType) String() string {
	if t < 0 || t >= NumEventTypes {
		return fmt.Sprintf("EventType(%d)", int(t))
	}
	return eventTypeNames[t]
}

func (t EventType) MarshalJSON() ([]byte, error) {
	if t < 0 || t >= NumEventTypes {
		return nil, fmt.Errorf("invalid event type %d", int(t))
	}
	return []byte(`"` + eventTypeNames[t] + `"`), nil
}

func (t *EventType) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("%s: malformed event type", s)
	}
	idx := slices.Index(eventTypeNames[:], s[1:len(s)-1])
	if idx == -1 {
		return fmt.Errorf("%s: unknown event type", s)
	}
	*t = EventType(idx)
	return nil
}

// Event is a single in-game occurrence. The fields used depend on the
// event type; unused fields are zero and elided from the wire encoding.
// ToPlayer, when set, restricts delivery to a single recipient.
type Event struct {
	Type     EventType `json:"type"`
	Tick     int64     `json:"tick"`
	Player   PlayerId  `json:"playerId,omitempty"`
	ToPlayer PlayerId  `json:"-"`

	EntityId string        `json:"entityId,omitempty"`
	TargetId string        `json:"targetId,omitempty"`
	Position math.Point2LL `json:"position,omitempty"`

	NewLevel int    `json:"newLevel,omitempty"` // defcon_change
	Amount   int    `json:"amount,omitempty"`   // city_hit casualties
	HackType string `json:"hackType,omitempty"`
	Progress float64 `json:"progress,omitempty"`

	Winner *PlayerId        `json:"winner,omitempty"` // game_end; nil for a draw
	Scores map[PlayerId]int `json:"scores,omitempty"`

	Code    string `json:"code,omitempty"` // command_rejected
	Message string `json:"message,omitempty"`
}

func (e *Event) String() string {
	switch e.Type {
	case DefconChangeEvent:
		return fmt.Sprintf("%s: level %d", e.Type, e.NewLevel)
	case CityHitEvent:
		return fmt.Sprintf("%s: city %q casualties %d by %q", e.Type, e.TargetId, e.Amount, e.Player)
	default:
		return fmt.Sprintf("%s: player %q entity %q target %q", e.Type, e.Player, e.EntityId, e.TargetId)
	}
}

func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("type", e.Type.String()), slog.Int64("tick", e.Tick)}
	if e.Player != "" {
		attrs = append(attrs, slog.String("player", string(e.Player)))
	}
	if e.EntityId != "" {
		attrs = append(attrs, slog.String("entity", e.EntityId))
	}
	if e.TargetId != "" {
		attrs = append(attrs, slog.String("target", e.TargetId))
	}
	return slog.GroupValue(attrs...)
}
