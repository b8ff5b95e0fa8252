package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDaySummarize rebuilds the day summary snapshot of a date.
	TaskDaySummarize = "day:summarize"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// DateYesterday asks the day summary job for the previous station day.
const DateYesterday = "yesterday"

// DaySummarizePayload names the date to rebuild, as YYYY-MM-DD or "yesterday".
type DaySummarizePayload struct {
	Date string `json:"date"`
}

// NewDaySummarizeTask constructs the rebuild task of a date.
func NewDaySummarizeTask(date string) (*asynq.Task, error) {
	if date == "" {
		date = DateYesterday
	}
	data, err := json.Marshal(DaySummarizePayload{Date: date})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDaySummarize, data, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload sets how long keys are retained.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}
