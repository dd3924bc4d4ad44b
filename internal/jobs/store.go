package jobs

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/logging"
	"github.com/jo-hoe/recipeimport/internal/recipes"
)

// DefaultRetention is how long a finished job stays queryable in memory.
const DefaultRetention = 10 * time.Minute

type job struct {
	Job
	cleanup *time.Timer
}

type listenerEntry struct {
	seq uint64
	fn  Listener
}

// Store is the in-memory registry of extraction jobs and their listeners.
// A single mutex guards both maps, so progress appends and notifications are
// observed in the same order by every listener.
type Store struct {
	mu        sync.Mutex
	jobs      map[string]*job
	listeners map[string][]listenerEntry
	nextSeq   uint64
	retention time.Duration
	log       *slog.Logger
	closed    bool
}

// NewStore creates a Store whose finished jobs are dropped after retention.
func NewStore(retention time.Duration, log *slog.Logger) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		jobs:      make(map[string]*job),
		listeners: make(map[string][]listenerEntry),
		retention: retention,
		log:       logging.OrDiscard(log).With("component", "jobs"),
	}
}

// Create registers a new importing job, replacing any job with the same id.
// Listeners already attached to the id are kept.
func (s *Store) Create(id, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.jobs[id]; ok {
		s.log.Warn("job overwritten", "job_id", id, "previous_status", old.Status)
		if old.cleanup != nil {
			old.cleanup.Stop()
		}
	}
	s.jobs[id] = &job{Job: Job{
		ID:        id,
		OwnerID:   ownerID,
		Status:    recipes.StatusImporting,
		Progress:  []ProgressEvent{},
		CreatedAt: time.Now().UTC(),
	}}
}

// Get returns a snapshot of the job.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return j.snapshot(), true
}

// EmitProgress appends to the job's log and notifies listeners. Unknown or
// finished jobs are ignored.
func (s *Store) EmitProgress(id, stage, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		s.log.Debug("progress for unknown job", "job_id", id, "stage", stage)
		return
	}
	if j.Terminal() {
		s.log.Debug("progress for finished job", "job_id", id, "stage", stage)
		return
	}
	ev := ProgressEvent{Stage: stage, Message: message}
	j.Progress = append(j.Progress, ev)
	s.notifyLocked(id, common.EventProgress, ev)
}

// Complete moves the job to pending_review with result.
func (s *Store) Complete(id string, result recipes.ExtractionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.finishableLocked(id, "complete")
	if !ok {
		return
	}
	res := result.Normalized()
	j.Status = recipes.StatusPendingReview
	j.Result = &res
	j.FinishedAt = time.Now().UTC()
	s.notifyLocked(id, common.EventComplete, res)
	s.scheduleCleanupLocked(j)
}

// Fail moves the job to failed with reason.
func (s *Store) Fail(id, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.finishableLocked(id, "fail")
	if !ok {
		return
	}
	j.Status = recipes.StatusFailed
	j.ErrorReason = reason
	j.FinishedAt = time.Now().UTC()
	s.notifyLocked(id, common.EventError, ErrorEvent{Reason: reason})
	s.scheduleCleanupLocked(j)
}

// Subscribe attaches l to the job id. The id need not exist yet.
func (s *Store) Subscribe(id string, l Listener) Subscription {
	sub, _ := s.SubscribeSnapshot(id, l)
	return sub
}

// SubscribeSnapshot attaches l and returns the job state at the moment of
// attachment. Every event after the snapshot reaches l; none before it does.
func (s *Store) SubscribeSnapshot(id string, l Listener) (Subscription, *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	sub := Subscription{jobID: id, seq: s.nextSeq}
	s.listeners[id] = append(s.listeners[id], listenerEntry{seq: sub.seq, fn: l})
	var snap *Job
	if j, ok := s.jobs[id]; ok {
		snap = j.snapshot()
	}
	return sub, snap
}

// Unsubscribe detaches a listener. Calling it more than once is harmless.
func (s *Store) Unsubscribe(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.listeners[sub.jobID]
	for i, e := range entries {
		if e.seq == sub.seq {
			entries = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(s.listeners, sub.jobID)
		return
	}
	s.listeners[sub.jobID] = entries
}

// ListenerCount returns the number of listeners attached to id.
func (s *Store) ListenerCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners[id])
}

// Len returns the number of jobs held in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Close stops pending cleanup timers.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, j := range s.jobs {
		if j.cleanup != nil {
			j.cleanup.Stop()
		}
	}
}

func (s *Store) finishableLocked(id, op string) (*job, bool) {
	j, ok := s.jobs[id]
	if !ok {
		s.log.Debug(op+" for unknown job", "job_id", id)
		return nil, false
	}
	if j.Terminal() {
		s.log.Debug(op+" for finished job", "job_id", id, "status", j.Status)
		return nil, false
	}
	return j, true
}

func (s *Store) scheduleCleanupLocked(j *job) {
	if s.closed {
		return
	}
	id := j.ID
	j.cleanup = time.AfterFunc(s.retention, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// A re-created job under the same id has its own timer.
		if cur, ok := s.jobs[id]; ok && cur == j {
			delete(s.jobs, id)
			delete(s.listeners, id)
			s.log.Debug("job expired", "job_id", id)
		}
	})
}

func (s *Store) notifyLocked(id, event string, data any) {
	for _, e := range s.listeners[id] {
		s.dispatch(id, e, event, data)
	}
}

func (s *Store) dispatch(id string, e listenerEntry, event string, data any) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("listener panicked", "job_id", id, "event", event, "err", fmt.Sprint(rec))
		}
	}()
	e.fn(event, data)
}

func (j *job) snapshot() *Job {
	c := j.Job
	c.Progress = append([]ProgressEvent(nil), j.Progress...)
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return &c
}
