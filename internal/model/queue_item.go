package model

import (
	"time"
)

type QueueState string

const (
	QueuePending    QueueState = "pending"
	QueueLeased     QueueState = "leased"
	QueueGraded     QueueState = "graded"
	QueueDeadLetter QueueState = "dead_letter"
)

// QueueItem 阅卷队列条目，一条对应一份答卷。
// 状态流转：pending -> leased -> graded；重试超限进入 dead_letter。
// 租约到期未确认的条目由 reaper 重新置为 pending。
type QueueItem struct {
	BaseModel
	SubmissionID string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"submissionId"`
	ExamID       string     `gorm:"type:varchar(36);index" json:"examId"`
	StudentID    uint       `gorm:"index" json:"studentId"`
	State        QueueState `gorm:"size:20;index;default:'pending'" json:"state"`
	AttemptCount int        `gorm:"default:0" json:"attemptCount"`
	LeasedBy     string     `gorm:"size:64" json:"leasedBy"`
	LeaseExpiry  *time.Time `gorm:"index" json:"leaseExpiry"`
	LastError    string     `gorm:"size:500" json:"lastError"`
}

func (QueueItem) TableName() string {
	return "grading_queue_items"
}
