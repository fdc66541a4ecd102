// Package channel is the publish/subscribe channel between the run and its
// observers: a registry of connections, ordered broadcast of run events, and
// relay of opaque messages between observers.
package channel

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lanebot/internal/event"
	"lanebot/internal/metrics"
	"lanebot/internal/ratelimit"
)

// ErrHubClosed is returned by Connect after Close.
var ErrHubClosed = errors.New("hub closed")

// Conn is a duplex text message stream to one observer. Close must be safe to
// call more than once and concurrently with ReadMessage and WriteMessage.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Observer is one connected endpoint. It holds no history: only a bounded
// queue of messages not yet written.
type Observer struct {
	id    uuid.UUID
	conn  Conn
	send  chan []byte
	relay *ratelimit.Limiter

	mu     sync.Mutex
	closed bool
}

func (o *Observer) ID() uuid.UUID { return o.id }

// enqueue reports false only when the queue is full.
func (o *Observer) enqueue(msg []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return true
	}
	select {
	case o.send <- msg:
		return true
	default:
		return false
	}
}

// closeQueue lets the writer drain what is queued and exit.
func (o *Observer) closeQueue() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.closed = true
	close(o.send)
	return true
}

type HubConfig struct {
	// SendBuffer is the outbound queue length per observer.
	SendBuffer int
	// RelayRate caps relay messages per second per observer (0 = unlimited).
	RelayRate int
	Log       *zap.Logger
	Metrics   *metrics.Recorder
}

// Hub is the observer registry. Broadcasts are serialized and delivered
// from a snapshot of the registry, so observers joining or leaving during a
// broadcast are neither skipped nor served twice.
type Hub struct {
	cfg HubConfig
	log *zap.Logger

	mu        sync.RWMutex
	observers map[*Observer]struct{}
	closed    bool

	deliverMu sync.Mutex
	writers   sync.WaitGroup
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 1
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Hub{
		cfg:       cfg,
		log:       cfg.Log,
		observers: make(map[*Observer]struct{}),
	}
}

// Connect registers conn and starts its writer.
func (h *Hub) Connect(conn Conn) (*Observer, error) {
	o := &Observer{
		id:    uuid.New(),
		conn:  conn,
		send:  make(chan []byte, h.cfg.SendBuffer),
		relay: ratelimit.New(h.cfg.RelayRate),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.observers[o] = struct{}{}
	h.writers.Add(1)
	count := len(h.observers)
	h.mu.Unlock()

	go h.writeLoop(o)

	h.cfg.Metrics.ObserverConnected()
	h.log.Info("observer connected", zap.Stringer("observer", o.id), zap.Int("observers", count))
	return o, nil
}

// Disconnect removes o and closes its connection. Messages still queued for
// o are discarded. Calling it more than once is harmless.
func (h *Hub) Disconnect(o *Observer) {
	if !h.remove(o) {
		return
	}
	o.closeQueue()
	o.conn.Close()
}

// drop removes o after a delivery failure. The connection is closed in the
// background: closing may wait on a writer that is stuck on the same peer.
func (h *Hub) drop(o *Observer, reason string) {
	if !h.remove(o) {
		return
	}
	h.cfg.Metrics.ObserverDropped(reason)
	o.closeQueue()
	go o.conn.Close()
}

func (h *Hub) remove(o *Observer) bool {
	h.mu.Lock()
	_, ok := h.observers[o]
	delete(h.observers, o)
	count := len(h.observers)
	h.mu.Unlock()
	if !ok {
		return false
	}
	h.cfg.Metrics.ObserverDisconnected()
	h.log.Info("observer disconnected", zap.Stringer("observer", o.id), zap.Int("observers", count))
	return true
}

func (h *Hub) writeLoop(o *Observer) {
	defer h.writers.Done()
	defer o.conn.Close()

	failed := false
	for msg := range o.send {
		if failed {
			continue
		}
		if err := o.conn.WriteMessage(msg); err != nil {
			failed = true
			h.log.Debug("observer write failed", zap.Stringer("observer", o.id), zap.Error(err))
			h.drop(o, "write_error")
		}
	}
}

func (h *Hub) snapshot() []*Observer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Observer, 0, len(h.observers))
	for o := range h.observers {
		out = append(out, o)
	}
	return out
}

// deliver queues msg for every observer in the snapshot except skip. An
// observer whose queue is full is dropped; the others are unaffected.
func (h *Hub) deliver(msg []byte, skip *Observer) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	for _, o := range h.snapshot() {
		if o == skip {
			continue
		}
		if !o.enqueue(msg) {
			h.log.Warn("observer too slow, dropping", zap.Stringer("observer", o.id))
			h.drop(o, "slow")
		}
	}
}

// Publish broadcasts e to every connected observer. It never blocks on an
// observer's connection.
func (h *Hub) Publish(e event.Event) {
	data, err := e.Encode()
	if err != nil {
		h.log.Error("dropping unencodable event", zap.Error(err))
		return
	}
	h.cfg.Metrics.EventPublished(string(e.Type))
	h.deliver(data, nil)
}

// Relay forwards msg verbatim to every observer except from.
func (h *Hub) Relay(from *Observer, msg []byte) {
	if from != nil && !from.relay.Allow() {
		h.cfg.Metrics.RelayDropped()
		h.log.Debug("relay rate exceeded", zap.Stringer("observer", from.id))
		return
	}
	h.cfg.Metrics.RelayDelivered()
	h.deliver(msg, from)
}

// Serve registers conn and relays everything it sends until it fails or
// closes. It blocks for the lifetime of the connection. A peer hanging up is
// not an error; a peer sending a frame the channel cannot relay is.
func (h *Hub) Serve(conn Conn) error {
	o, err := h.Connect(conn)
	if err != nil {
		conn.Close()
		return err
	}
	defer h.Disconnect(o)

	for {
		msg, err := conn.ReadMessage()
		if errors.Is(err, ErrUnsupportedFrame) {
			h.log.Warn("observer sent an unsupported frame", zap.Stringer("observer", o.id))
			return err
		}
		if err != nil {
			return nil
		}
		h.Relay(o, msg)
	}
}

// Len returns the number of connected observers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Close stops accepting observers, flushes what is queued for each of them,
// then closes their connections and waits for the writers to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	observers := h.observers
	h.observers = make(map[*Observer]struct{})
	h.mu.Unlock()

	for o := range observers {
		if o.closeQueue() {
			h.cfg.Metrics.ObserverDisconnected()
		}
	}
	h.writers.Wait()
}
