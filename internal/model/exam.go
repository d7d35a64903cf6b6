package model

import (
	"time"
)

type ExamStatus string

const (
	ExamDraft     ExamStatus = "draft"
	ExamPublished ExamStatus = "published"
	ExamActive    ExamStatus = "active"
	ExamCompleted ExamStatus = "completed"
	ExamCancelled ExamStatus = "cancelled"
)

// Exam 考试实例，引用题库中的一份试卷
type Exam struct {
	UUIDBase
	PaperID     uint       `gorm:"index;not null" json:"paperId"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Duration    int        `gorm:"not null" json:"duration"` // 考试时长（分钟）
	TotalScore  float64    `gorm:"not null" json:"totalScore"`
	StartTime   time.Time  `gorm:"not null" json:"startTime"`
	EndTime     time.Time  `gorm:"not null" json:"endTime"`
	Status      ExamStatus `gorm:"size:20;index;default:'draft'" json:"status"`

	// bool开关不带列默认值：带default标签的false会被gorm当零值
	// 跳过写入，落库变成默认值。默认值由CreateExam统一补齐。
	AllowReview        bool `json:"allowReview"`
	ShowScore          bool `json:"showScore"`
	RandomizeQuestions bool `json:"randomizeQuestions"`
	MaxAttempts        int  `gorm:"default:1" json:"maxAttempts"`

	CreatedBy uint `gorm:"index" json:"createdBy"`
}

func (Exam) TableName() string {
	return "exams"
}

// CanTransitionTo 状态机校验：只允许向前推进，draft/published 可取消
func (e *Exam) CanTransitionTo(next ExamStatus) bool {
	switch next {
	case ExamPublished:
		return e.Status == ExamDraft
	case ExamActive:
		return e.Status == ExamPublished
	case ExamCompleted:
		return e.Status == ExamActive || e.Status == ExamPublished
	case ExamCancelled:
		return e.Status == ExamDraft || e.Status == ExamPublished
	default:
		return false
	}
}

// WindowContains 判断提交时间是否落在考试窗口内
func (e *Exam) WindowContains(t time.Time) bool {
	return !t.Before(e.StartTime) && !t.After(e.EndTime)
}
