package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xhad/newsagent/internal/logger"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusError      = "error"
)

// Status is the progress of the job processing one PDF.
type Status struct {
	Filename string `json:"filename"`
	Progress int    `json:"progress"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

func (s Status) finished() bool {
	return s.Status == StatusDone || s.Status == StatusError
}

// tracker keeps the last status of every job and fans updates out to
// websocket subscribers.
type tracker struct {
	mu   sync.Mutex
	jobs map[string]Status
	subs map[string]map[chan Status]struct{}
}

func newTracker() *tracker {
	return &tracker{
		jobs: make(map[string]Status),
		subs: make(map[string]map[chan Status]struct{}),
	}
}

func (t *tracker) set(name string, progress int, status, errMsg string) {
	s := Status{Filename: name, Progress: progress, Status: status, Error: errMsg}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[name] = s
	for ch := range t.subs[name] {
		select {
		case ch <- s:
		default:
			logger.Warn("status subscriber for %s is not keeping up", name)
		}
	}
}

func (t *tracker) get(name string) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.jobs[name]
	return s, ok
}

// subscribe returns the current status and a channel of later updates.
func (t *tracker) subscribe(name string) (Status, <-chan Status, func()) {
	ch := make(chan Status, 16)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs[name] == nil {
		t.subs[name] = make(map[chan Status]struct{})
	}
	t.subs[name][ch] = struct{}{}

	current, ok := t.jobs[name]
	if !ok {
		current = Status{Filename: name, Status: StatusPending}
	}

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs[name], ch)
		if len(t.subs[name]) == 0 {
			delete(t.subs, name)
		}
	}
	return current, ch, cancel
}

// streamStatus writes the status of name to conn until the job finishes,
// the client goes away or timeout passes.
func (s *Server) streamStatus(conn *websocket.Conn, name string) {
	current, updates, cancel := s.tracker.subscribe(name)
	defer cancel()

	if err := conn.WriteJSON(current); err != nil {
		return
	}
	if current.finished() {
		closeNormal(conn)
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	timer := time.NewTimer(s.config.StatusTimeout)
	defer timer.Stop()

	for {
		select {
		case st := <-updates:
			if err := conn.WriteJSON(st); err != nil {
				logger.Debug("status websocket for %s closed: %v", name, err)
				return
			}
			if st.finished() {
				closeNormal(conn)
				return
			}
		case <-closed:
			return
		case <-timer.C:
			closeNormal(conn)
			return
		}
	}
}

func closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
