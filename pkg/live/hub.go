// Package live pushes notifications to hospital sessions over long-lived connections.
// The registry is process-local; a client that reconnects must fetch history separately.
package live

import (
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/bloodbridge/platform/pkg/common/logger"
	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/bloodbridge/platform/pkg/observability/metrics"
)

var (
	ErrHubClosed    = errors.New("live hub closed")
	ErrConnClosed   = errors.New("live connection closed")
	ErrSlowConsumer = errors.New("live connection buffer full")
)

// Conn is one open outbound channel. Send must not block; Done closes when the
// underlying transport goes away. A Conn that also implements io.Closer is closed
// when the hub shuts down.
type Conn interface {
	Send(payload []byte) error
	Done() <-chan struct{}
}

type subscription struct {
	hospitalID string
	conn       Conn
	stop       chan struct{}
	once       sync.Once
}

func (s *subscription) release() {
	s.once.Do(func() { close(s.stop) })
}

// Hub maps hospital identity to its open connections. All mutation and every
// broadcast snapshot happen under mu; publishMu keeps per-connection FIFO order.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]map[Conn]*subscription
	total     int
	closed    bool
	publishMu sync.Mutex
	wg        sync.WaitGroup
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[Conn]*subscription)}
}

// Subscribe registers conn under hospitalID and removes it again once conn reports Done.
// The returned cancel func is idempotent and equivalent to Unsubscribe.
func (h *Hub) Subscribe(hospitalID string, conn Conn) (func(), error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}

	set, ok := h.subs[hospitalID]
	if !ok {
		set = make(map[Conn]*subscription)
		h.subs[hospitalID] = set
	}
	if _, exists := set[conn]; !exists {
		sub := &subscription{hospitalID: hospitalID, conn: conn, stop: make(chan struct{})}
		set[conn] = sub
		h.total++
		h.wg.Add(1)
		go h.watch(sub)
	}
	total := h.total
	h.mu.Unlock()

	metrics.ObserveLiveSubscribers(total)
	logger.Log.WithFields(map[string]interface{}{
		"hospital_id": hospitalID,
		"subscribers": total,
	}).Debug("live subscriber registered")

	return func() { h.Unsubscribe(hospitalID, conn) }, nil
}

// Unsubscribe removes conn. Unknown connections are ignored.
func (h *Hub) Unsubscribe(hospitalID string, conn Conn) {
	h.mu.RLock()
	sub := h.subs[hospitalID][conn]
	h.mu.RUnlock()
	if sub == nil {
		return
	}
	h.remove(sub)
	sub.release()
}

func (h *Hub) watch(sub *subscription) {
	defer h.wg.Done()
	select {
	case <-sub.conn.Done():
		h.remove(sub)
	case <-sub.stop:
	}
}

func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	set := h.subs[sub.hospitalID]
	if current, ok := set[sub.conn]; ok && current == sub {
		delete(set, sub.conn)
		h.total--
		if len(set) == 0 {
			delete(h.subs, sub.hospitalID)
		}
	}
	total := h.total
	h.mu.Unlock()

	metrics.ObserveLiveSubscribers(total)
}

// Publish writes n to every connection of n.HospitalID, or to every connection when
// n has no hospital scope. A failing connection never stops delivery to the others.
// It returns the number of connections that accepted the event.
func (h *Hub) Publish(n models.Notification) int {
	payload, err := encodeLine(models.LiveEvent{Type: models.LiveEventNotification, Notification: &n})
	if err != nil {
		logger.Log.WithError(err).Error("failed to encode live notification")
		return 0
	}

	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	delivered := 0
	for _, conn := range h.targets(n.HospitalID) {
		if err := conn.Send(payload); err != nil {
			logger.Log.WithError(err).WithField("hospital_id", n.HospitalID).Debug("live delivery skipped")
			continue
		}
		delivered++
	}
	metrics.ObserveLiveDelivered(delivered)
	return delivered
}

func (h *Hub) targets(hospitalID string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if hospitalID != "" {
		set := h.subs[hospitalID]
		out := make([]Conn, 0, len(set))
		for conn := range set {
			out = append(out, conn)
		}
		return out
	}

	out := make([]Conn, 0, h.total)
	for _, set := range h.subs {
		for conn := range set {
			out = append(out, conn)
		}
	}
	return out
}

// Subscribers counts open connections for hospitalID, or all when hospitalID is empty.
func (h *Hub) Subscribers(hospitalID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if hospitalID == "" {
		return h.total
	}
	return len(h.subs[hospitalID])
}

// Hospitals counts hospitals with at least one open connection.
func (h *Hub) Hospitals() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close drops every subscription, closes closable connections and waits for watchers to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var subs []*subscription
	for _, set := range h.subs {
		for _, sub := range set {
			subs = append(subs, sub)
		}
	}
	h.subs = make(map[string]map[Conn]*subscription)
	h.total = 0
	h.mu.Unlock()

	for _, sub := range subs {
		sub.release()
		if closer, ok := sub.conn.(io.Closer); ok {
			closer.Close()
		}
	}
	h.wg.Wait()
	metrics.ObserveLiveSubscribers(0)
}

func encodeLine(event models.LiveEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return append(payload, '\n'), nil
}
