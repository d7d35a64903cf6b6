package model

import (
	"encoding/json"
	"time"
)

// Submission 学生提交的答卷，answers 为 question_id -> 答案值 的映射
type Submission struct {
	UUIDBase
	ExamID     string          `gorm:"type:varchar(36);index:idx_sub_exam_student;not null" json:"examId"`
	StudentID  uint            `gorm:"index:idx_sub_exam_student;not null" json:"studentId"`
	Answers    json.RawMessage `gorm:"type:json" json:"answers"`
	Duration   int             `json:"duration"` // 实际作答时长（秒）
	SubmitTime time.Time       `gorm:"not null" json:"submitTime"`
}

func (Submission) TableName() string {
	return "submissions"
}

// DecodeAnswers 解析答卷映射；答案值可能是字符串或选项数组，保留原始JSON由评分器归一化
func (s *Submission) DecodeAnswers() (map[string]json.RawMessage, error) {
	answers := make(map[string]json.RawMessage)
	if len(s.Answers) == 0 {
		return answers, nil
	}
	if err := json.Unmarshal(s.Answers, &answers); err != nil {
		return nil, err
	}
	return answers, nil
}
