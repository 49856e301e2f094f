// Package eventbus implements the per-instance pub/sub rooms described in
// §4.12: every lifecycle transition, log line, stats sample, and command
// result is published here, and the httpapi package's websocket bridge
// (grounded on gorilla/websocket, the transport nickheyer-discopanel
// uses for the same class of per-server room) subscribes on behalf of
// each connected client.
package eventbus

import (
	"log/slog"
	"sync"
)

// subscriberBufferSize bounds each subscriber's channel. a slow consumer
// (eg a laggy websocket client) must never block a publisher: once full,
// the newest message wins and the oldest queued one is dropped.
const subscriberBufferSize = 64

// EventType names the four message shapes §4.12 defines.
type EventType string

const (
	EventStatus        EventType = "server-status"
	EventLog           EventType = "server-log"
	EventStats         EventType = "server-stats"
	EventCommandOutput EventType = "command-output"
)

// Event is one message delivered to every subscriber of an instance's
// room. Payload's shape depends on Type; httpapi's websocket bridge
// serializes it directly to JSON for the client.
type Event struct {
	Type     EventType `json:"type"`
	Instance string    `json:"instanceId"`
	Payload  any       `json:"payload"`
}

type StatusPayload struct {
	State string `json:"state"`
}

type LogPayload struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

type NetworkStats struct {
	RX uint64 `json:"rx"`
	TX uint64 `json:"tx"`
}

type MemoryStats struct {
	Used    uint64  `json:"used"`
	Total   uint64  `json:"total"`
	Percent float64 `json:"percent"`
}

type StatsPayload struct {
	CPU     float64      `json:"cpu"`
	Memory  MemoryStats  `json:"memory"`
	Network NetworkStats `json:"network"`
}

type CommandOutputPayload struct {
	Command string `json:"command"`
	Output  string `json:"output"`
	Success bool   `json:"success"`
}

type subscriber struct {
	ch chan Event
}

// room holds every active subscriber for one instance.
type room struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
}

// Bus is the process-wide collection of per-instance rooms.
type Bus struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*room
}

func New(logger *slog.Logger) *Bus {
	return &Bus{logger: logger, rooms: make(map[string]*room)}
}

// Subscribe joins the room for instanceID and returns a channel of
// events plus an unsubscribe function the caller must defer.
func (b *Bus) Subscribe(instanceID string) (<-chan Event, func()) {
	r := b.roomFor(instanceID)
	sub := &subscriber{ch: make(chan Event, subscriberBufferSize)}

	r.mu.Lock()
	r.subscribers[sub] = struct{}{}
	r.mu.Unlock()

	unsubscribe := func() {
		r.mu.Lock()
		delete(r.subscribers, sub)
		r.mu.Unlock()
		close(sub.ch)
	}
	return sub.ch, unsubscribe
}

func (b *Bus) roomFor(instanceID string) *room {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rooms[instanceID]
	if !ok {
		r = &room{subscribers: make(map[*subscriber]struct{})}
		b.rooms[instanceID] = r
	}
	return r
}

// publish fans out evt to every current subscriber of instanceID.
// a full subscriber channel means the consumer is falling behind; the
// oldest queued event for that subscriber is dropped to make room for
// the new one, so a stalled websocket write never backs up a publisher
// or affects other subscribers.
func (b *Bus) publish(instanceID string, evt Event) {
	b.mu.RLock()
	r, ok := b.rooms[instanceID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for sub := range r.subscribers {
		select {
		case sub.ch <- evt:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

func (b *Bus) PublishStatus(instanceID, state string) {
	b.publish(instanceID, Event{Type: EventStatus, Instance: instanceID, Payload: StatusPayload{State: state}})
}

func (b *Bus) PublishLog(instanceID string, payload LogPayload) {
	b.publish(instanceID, Event{Type: EventLog, Instance: instanceID, Payload: payload})
}

func (b *Bus) PublishStats(instanceID string, payload StatsPayload) {
	b.publish(instanceID, Event{Type: EventStats, Instance: instanceID, Payload: payload})
}

func (b *Bus) PublishCommandOutput(instanceID string, payload CommandOutputPayload) {
	b.publish(instanceID, Event{Type: EventCommandOutput, Instance: instanceID, Payload: payload})
}
