package models

import (
	"time"

	"gorm.io/datatypes"
)

type QueueJobStatus string

const (
	QueueJobPending    QueueJobStatus = "PENDING"
	QueueJobProcessing QueueJobStatus = "PROCESSING"
	QueueJobCompleted  QueueJobStatus = "COMPLETED"
	QueueJobFailed     QueueJobStatus = "FAILED"
)

// PublishQueueJob is a deferred multi-platform publish. Only the queue
// processor moves it out of PENDING; COMPLETED and FAILED are terminal.
type PublishQueueJob struct {
	ID          uint                                `json:"id" gorm:"primarykey"`
	ArticleID   uint                                `json:"article_id" gorm:"not null;index"`
	UserID      uint                                `json:"user_id" gorm:"not null;index"`
	Platforms   datatypes.JSONSlice[Platform]       `json:"platforms"`
	Draft       bool                                `json:"draft"`
	ScheduleAt  time.Time                           `json:"schedule_at" gorm:"not null;index:idx_queue_due,priority:2"`
	Status      QueueJobStatus                      `json:"status" gorm:"type:varchar(16);not null;default:'PENDING';index:idx_queue_due,priority:1"`
	Outcomes    datatypes.JSONSlice[PublishOutcome] `json:"outcomes,omitempty"`
	LastError   string                              `json:"last_error,omitempty" gorm:"type:text"`
	ProcessedAt *time.Time                          `json:"processed_at"`
	CreatedAt   time.Time                           `json:"created_at"`
	UpdatedAt   time.Time                           `json:"updated_at"`
}

func (j *PublishQueueJob) IsTerminal() bool {
	return j.Status == QueueJobCompleted || j.Status == QueueJobFailed
}
