package processor

import (
	"sync"

	"github.com/freundallein/packer/chassis/uidriver"
)

// sessionHolder owns the UI session of one attempt. The supervisor may
// terminate it from another goroutine before the workflow has opened it.
type sessionHolder struct {
	mu         sync.Mutex
	sess       uidriver.Session
	terminated bool
	once       sync.Once
}

// attach hands the opened session to the holder; false means the attempt
// was already terminated and the session has been torn down.
func (h *sessionHolder) attach(sess uidriver.Session) bool {
	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		sess.TerminateSession()
		return false
	}
	h.sess = sess
	h.mu.Unlock()
	return true
}

// TerminateSession tears the session down exactly once.
func (h *sessionHolder) TerminateSession() {
	h.once.Do(func() {
		h.mu.Lock()
		h.terminated = true
		sess := h.sess
		h.mu.Unlock()
		if sess != nil {
			sess.TerminateSession()
		}
	})
}

// bound routes terminations through the holder.
type bound struct {
	uidriver.Session
	holder *sessionHolder
}

func (b bound) TerminateSession() { b.holder.TerminateSession() }
