package capture

import (
	"context"
	"sync"

	"github.com/use-agent/pagecapture/engine"
	"github.com/use-agent/pagecapture/models"
)

// Recorder appends every response-received event of one navigation to an
// ordered log. It does no filtering; the correlator decides what matters.
//
// The driver callback is the only writer and Records is the only reader,
// called after Detach. The mutex keeps that hand-off well defined under the
// Go memory model even when a driver delivers a last event while detaching.
type Recorder struct {
	mu          sync.Mutex
	records     []models.ResponseRecord
	unsubscribe func()
	detached    bool
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Attach subscribes to b's response events. It must be called before
// navigation starts; events fired earlier are lost. A failure is fatal for
// the run.
func (r *Recorder) Attach(ctx context.Context, b engine.Browser) error {
	r.mu.Lock()
	attached := r.unsubscribe != nil
	r.mu.Unlock()
	if attached {
		return models.NewCaptureError(models.ErrCodeAttachFailed, "recorder already attached", nil)
	}

	unsubscribe, err := b.SubscribeResponses(ctx, r.append)
	if err != nil {
		return models.NewCaptureError(
			models.ErrCodeAttachFailed,
			"failed to subscribe to network events",
			err,
		)
	}

	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()
	return nil
}

func (r *Recorder) append(rec models.ResponseRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return
	}
	r.records = append(r.records, rec)
}

// Detach stops recording. Safe to call more than once.
func (r *Recorder) Detach() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	// Unsubscribe outside the lock: drivers may wait for an in-flight
	// callback, which itself takes the lock.
	if unsubscribe != nil {
		unsubscribe()
	}

	r.mu.Lock()
	r.detached = true
	r.mu.Unlock()
}

// Records returns a copy of the log in arrival order.
func (r *Recorder) Records() []models.ResponseRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ResponseRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of recorded responses.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
