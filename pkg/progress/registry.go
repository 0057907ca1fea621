package progress

import (
	"sync"
	"time"

	"github.com/depotrun/artifactcore/pkg/logging"
)

// Handle is the explicit, caller-held reference to an open progress
// record, replacing the teacher's ambient closure-captured "current
// operation" pattern (spec.md §9) with an object threaded through call
// sites.
type Handle struct {
	operationID string
	registry    *Registry
}

// OperationID returns the operation id this handle refers to.
func (h Handle) OperationID() string { return h.operationID }

// HandleFor reconstructs a Handle for an operation id already known to
// exist in some registry, for callers (such as the Transfer Service) that
// store only the id on their own session/operation state rather than the
// Handle value itself.
func HandleFor(operationID string) Handle {
	return Handle{operationID: operationID}
}

type record struct {
	mu          sync.Mutex
	snapshot    Snapshot
	subscribers map[int]*Subscriber
	nextSubID   int
	lastPublish time.Time
	pending     bool
	timer       *time.Timer
}

// Registry is the process-wide concurrent mapping of operation id to
// progress record, with fine-grained per-record locking so distinct
// operations never contend with one another.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*record

	coalesceInterval   time.Duration
	retentionAfterTerm time.Duration
	subscriberCapacity int

	log *logging.Logger
}

// NewRegistry constructs a Registry. coalesceInterval bounds how often
// non-terminal advances are published per operation; retentionAfterTerm is
// the grace window a terminal record remains queryable;
// subscriberCapacity is the per-subscriber buffer size.
func NewRegistry(coalesceInterval, retentionAfterTerm time.Duration, subscriberCapacity int) *Registry {
	return &Registry{
		records:            make(map[string]*record),
		coalesceInterval:   coalesceInterval,
		retentionAfterTerm: retentionAfterTerm,
		subscriberCapacity: subscriberCapacity,
		log:                logging.GetGlobalLogger().WithComponent("progress_registry"),
	}
}

// Open creates a progress record for operationID in InProgress and
// publishes the initial snapshot immediately (never coalesced).
func (r *Registry) Open(operationID string, bytesTotal int64) Handle {
	now := time.Now()
	rec := &record{
		subscribers: make(map[int]*Subscriber),
		lastPublish: now,
		snapshot: Snapshot{
			OperationID: operationID,
			Status:      InProgress,
			BytesTotal:  bytesTotal,
			StartedAt:   now,
			UpdatedAt:   now,
		},
	}

	r.mu.Lock()
	r.records[operationID] = rec
	r.mu.Unlock()

	r.log.WithOperation(operationID).Debug("progress record opened")
	return Handle{operationID: operationID, registry: r}
}

func (r *Registry) lookup(operationID string) (*record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[operationID]
	return rec, ok
}

// Advance atomically increases bytes_processed and publishes, subject to
// the coalescing cadence: if less than coalesceInterval has elapsed since
// the last publish for this operation, the publish is deferred to fire at
// the interval boundary rather than being dropped, so the last
// pre-terminal snapshot is never silently lost.
func (r *Registry) Advance(h Handle, bytesProcessedDelta int64, label string) {
	rec, ok := r.lookup(h.operationID)
	if !ok {
		return
	}

	rec.mu.Lock()
	rec.snapshot.BytesProcessed += bytesProcessedDelta
	rec.snapshot.UpdatedAt = time.Now()
	if label != "" {
		rec.snapshot.Message = label
	}
	r.publishLocked(rec, false)
	rec.mu.Unlock()
}

// publishLocked must be called with rec.mu held. terminal forces an
// immediate publish bypassing coalescing.
func (r *Registry) publishLocked(rec *record, terminal bool) {
	if terminal {
		if rec.timer != nil {
			rec.timer.Stop()
			rec.timer = nil
		}
		rec.pending = false
		rec.lastPublish = time.Now()
		r.broadcastLocked(rec)
		return
	}

	now := time.Now()
	if now.Sub(rec.lastPublish) >= r.coalesceInterval {
		rec.lastPublish = now
		r.broadcastLocked(rec)
		return
	}

	if rec.pending {
		return
	}
	rec.pending = true
	delay := r.coalesceInterval - now.Sub(rec.lastPublish)
	rec.timer = time.AfterFunc(delay, func() {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		if !rec.pending {
			return
		}
		rec.pending = false
		rec.lastPublish = time.Now()
		r.broadcastLocked(rec)
	})
}

// broadcastLocked must be called with rec.mu held; it publishes the
// current snapshot to every subscriber without blocking on any one of
// them.
func (r *Registry) broadcastLocked(rec *record) {
	snap := rec.snapshot
	terminal := snap.Terminal()
	for _, sub := range rec.subscribers {
		sub.publish(snap)
		if terminal {
			sub.closeStream()
		}
	}
}

// Complete marks the operation terminal with status Completed, publishes
// the final snapshot to every subscriber, and schedules the record's
// deletion after the retention window.
func (r *Registry) Complete(h Handle, label string) {
	r.finish(h, Completed, label, "")
}

// Fail marks the operation terminal with status Failed.
func (r *Registry) Fail(h Handle, errLabel string) {
	r.finish(h, Failed, "", errLabel)
}

func (r *Registry) finish(h Handle, status Status, label, errLabel string) {
	rec, ok := r.lookup(h.operationID)
	if !ok {
		return
	}

	rec.mu.Lock()
	now := time.Now()
	rec.snapshot.Status = status
	rec.snapshot.UpdatedAt = now
	rec.snapshot.FinishedAt = now
	if label != "" {
		rec.snapshot.Message = label
	}
	if errLabel != "" {
		rec.snapshot.Error = errLabel
	}
	r.publishLocked(rec, true)
	rec.mu.Unlock()

	r.log.WithOperation(h.operationID).Infof("progress record terminal: status=%s", status)

	time.AfterFunc(r.retentionAfterTerm, func() {
		r.mu.Lock()
		delete(r.records, h.operationID)
		r.mu.Unlock()
	})
}

// Subscribe attaches to operationID's progress stream. It immediately
// delivers the current snapshot (or a synthetic not_found terminator if
// the operation id was never opened or has already been evicted) and
// thereafter every subsequent publish up to and including the terminal
// snapshot, after which the stream closes cleanly.
func (r *Registry) Subscribe(operationID string) *Subscriber {
	sub := NewSubscriber(r.subscriberCapacity)

	rec, ok := r.lookup(operationID)
	if !ok {
		sub.publish(notFoundSnapshot(operationID))
		sub.closeStream()
		return sub
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	id := rec.nextSubID
	rec.nextSubID++
	sub.id = id
	rec.subscribers[id] = sub

	snap := rec.snapshot
	sub.publish(snap)
	if snap.Terminal() {
		delete(rec.subscribers, id)
		sub.closeStream()
	}

	return sub
}

// Unsubscribe detaches sub from operationID's progress record without
// affecting the underlying operation — per spec.md §5, a subscription
// cancel only detaches the subscriber.
func (r *Registry) Unsubscribe(operationID string, sub *Subscriber) {
	rec, ok := r.lookup(operationID)
	if !ok {
		return
	}
	rec.mu.Lock()
	delete(rec.subscribers, sub.id)
	rec.mu.Unlock()
	sub.closeStream()
}

// Snapshot returns the current snapshot for operationID without
// subscribing, for synchronous callers.
func (r *Registry) Snapshot(operationID string) (Snapshot, bool) {
	rec, ok := r.lookup(operationID)
	if !ok {
		return Snapshot{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshot, true
}
