package jobs

import (
	"time"

	"github.com/jo-hoe/recipeimport/internal/recipes"
)

// ProgressEvent is one entry of a job's progress log.
type ProgressEvent struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// ErrorEvent is the payload of a failed job's terminal event.
type ErrorEvent struct {
	Reason string `json:"reason"`
}

// Listener receives (event name, payload) notifications. Listeners run with
// the store lock held: they must return quickly and must not call back into
// the Store.
type Listener func(event string, data any)

// Subscription identifies a registered listener.
type Subscription struct {
	jobID string
	seq   uint64
}

// JobID returns the id of the job the subscription is attached to.
func (s Subscription) JobID() string { return s.jobID }

// Job is a point-in-time copy of an in-memory extraction job.
type Job struct {
	ID          string
	OwnerID     string
	Status      recipes.Status // importing, pending_review or failed
	Progress    []ProgressEvent
	Result      *recipes.ExtractionResult // set only when Status is pending_review
	ErrorReason string                    // set only when Status is failed
	CreatedAt   time.Time
	FinishedAt  time.Time
}

// Terminal reports whether the job has left the importing state.
func (j *Job) Terminal() bool {
	return j.Status == recipes.StatusPendingReview || j.Status == recipes.StatusFailed
}
