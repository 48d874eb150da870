package entities

import "time"

// JobState is the enhancement state machine. ERRORED is terminal and
// reachable from every non-DONE state.
type JobState string

const (
	JobStateCreated     JobState = "CREATED"
	JobStateValidating  JobState = "VALIDATING"
	JobStateChunking    JobState = "CHUNKING"
	JobStateCalling     JobState = "CALLING"
	JobStateAggregating JobState = "AGGREGATING"
	JobStateBilling     JobState = "BILLING"
	JobStateDone        JobState = "DONE"
	JobStateErrored     JobState = "ERRORED"
)

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobStateDone || s == JobStateErrored
}

// EnhancementJob is one unit of background work: an immutable request plus
// the state machine wrapped around it.
type EnhancementJob struct {
	ID        string             `json:"id"`
	Request   EnhancementRequest `json:"request"`
	State     JobState           `json:"state"`
	Result    *EnhancementResult `json:"result,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// JobEvent is published on the event bus at every job state transition so the
// UI can follow progress without polling.
type JobEvent struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	UserID     string    `json:"user_id"`
	State      JobState  `json:"state"`
	ErrorCode  ErrorCode `json:"error_code,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
