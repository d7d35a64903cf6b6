package model

import (
	"encoding/json"
	"time"
)

// ScoreRecord 发布到成绩统计的最终成绩，(exam_id, student_id) 唯一。
// 由 GradedResult 与等级阈值纯函数推导，重复发布必须幂等。
type ScoreRecord struct {
	BaseModel
	ExamID        string          `gorm:"type:varchar(36);uniqueIndex:idx_score_exam_student;not null" json:"examId"`
	StudentID     uint            `gorm:"uniqueIndex:idx_score_exam_student;not null" json:"studentId"`
	SubmissionID  string          `gorm:"type:varchar(36);index" json:"submissionId"`
	ObtainedScore float64         `json:"obtainedScore"`
	TotalScore    float64         `json:"totalScore"`
	Percentage    float64         `json:"percentage"`
	Grade         string          `gorm:"size:20" json:"grade"`
	NeedsReview   bool            `gorm:"default:false" json:"needsReview"`
	ExamTime      time.Time       `json:"examTime"`
	GradingTime   time.Time       `json:"gradingTime"`
	Details       json.RawMessage `gorm:"type:json" json:"details"`
}

func (ScoreRecord) TableName() string {
	return "score_records"
}
