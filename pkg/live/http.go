package live

import (
	"net/http"
	"sync"
	"time"

	"github.com/bloodbridge/platform/pkg/common/logger"
	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/bloodbridge/platform/pkg/gateway/middleware"
	"github.com/gorilla/mux"
)

// streamConn buffers events between Hub.Publish and the goroutine serving the HTTP response.
type streamConn struct {
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newStreamConn(buffer int) *streamConn {
	if buffer <= 0 {
		buffer = 64
	}
	return &streamConn{out: make(chan []byte, buffer), done: make(chan struct{})}
}

func (c *streamConn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.out <- payload:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (c *streamConn) Done() <-chan struct{} {
	return c.done
}

func (c *streamConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type HTTPHandler struct {
	hub       *Hub
	heartbeat time.Duration
	buffer    int
}

func NewHTTPHandler(hub *Hub, heartbeat time.Duration, buffer int) *HTTPHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &HTTPHandler{hub: hub, heartbeat: heartbeat, buffer: buffer}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/live", h.handleStream).Methods(http.MethodGet)
}

// handleStream serves newline-delimited JSON events until the client goes away.
func (h *HTTPHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	rc := http.NewResponseController(w)
	// the server-wide write timeout would cut the stream
	_ = rc.SetWriteDeadline(time.Time{})

	conn := newStreamConn(h.buffer)
	cancel, err := h.hub.Subscribe(claims.HospitalID, conn)
	if err != nil {
		http.Error(w, "live updates unavailable", http.StatusServiceUnavailable)
		return
	}
	defer cancel()
	defer conn.Close()

	log := logger.Log.WithField("hospital_id", claims.HospitalID)
	log.Info("live channel opened")
	defer log.Info("live channel closed")

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.WithError(err).Warn("live channel cannot flush")
		return
	}

	ping, _ := encodeLine(models.LiveEvent{Type: models.LiveEventPing})
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-conn.Done():
			return
		case payload := <-conn.out:
			if !write(w, rc, payload) {
				return
			}
		case <-ticker.C:
			if !write(w, rc, ping) {
				return
			}
		}
	}
}

func write(w http.ResponseWriter, rc *http.ResponseController, payload []byte) bool {
	if _, err := w.Write(payload); err != nil {
		return false
	}
	return rc.Flush() == nil
}
