package model

import (
	"encoding/json"
	"time"
)

// QuestionScore 单题评分明细，student/correct answer 成对保留供复核
type QuestionScore struct {
	QuestionID    string  `json:"questionId"`
	QuestionType  string  `json:"questionType"`
	StudentAnswer string  `json:"studentAnswer"`
	CorrectAnswer string  `json:"correctAnswer"`
	Score         float64 `json:"score"`
	MaxScore      float64 `json:"maxScore"`
	NeedsReview   bool    `json:"needsReview"`
}

// GradedResult 自动阅卷结果，submission_id 唯一；重复投递时整体覆盖而不是累加
type GradedResult struct {
	UUIDBase
	SubmissionID  string          `gorm:"type:varchar(36);uniqueIndex;not null" json:"submissionId"`
	ExamID        string          `gorm:"type:varchar(36);index:idx_result_exam_student" json:"examId"`
	StudentID     uint            `gorm:"index:idx_result_exam_student" json:"studentId"`
	TotalScore    float64         `json:"totalScore"`
	ObtainedScore float64         `json:"obtainedScore"`
	AutoGraded    bool            `json:"autoGraded"`
	NeedsReview   bool            `json:"needsReview"`
	SubmitTime    time.Time       `json:"submitTime"`
	GradingTime   time.Time       `json:"gradingTime"`
	Details       json.RawMessage `gorm:"type:json" json:"details"`
	Synced        bool            `gorm:"index;default:false" json:"synced"`
}

func (GradedResult) TableName() string {
	return "graded_results"
}

// DecodeDetails 解析单题明细
func (g *GradedResult) DecodeDetails() ([]QuestionScore, error) {
	var details []QuestionScore
	if len(g.Details) == 0 {
		return details, nil
	}
	if err := json.Unmarshal(g.Details, &details); err != nil {
		return nil, err
	}
	return details, nil
}
