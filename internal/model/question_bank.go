package model

// 题库是外部协作方，本服务只读其表解析答案键，不迁移、不写入。

type Paper struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	Name       string  `gorm:"size:255" json:"name"`
	TotalScore float64 `json:"totalScore"`
	Duration   int     `json:"duration"`
}

func (Paper) TableName() string {
	return "papers"
}

type Question struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	Content       string  `gorm:"type:text" json:"content"`
	QuestionType  string  `gorm:"size:30" json:"questionType"`
	CorrectAnswer string  `gorm:"type:text" json:"correctAnswer"`
	Score         float64 `json:"score"`
}

func (Question) TableName() string {
	return "questions"
}

type PaperQuestion struct {
	PaperID       uint `gorm:"primaryKey" json:"paperId"`
	QuestionID    uint `gorm:"primaryKey" json:"questionId"`
	QuestionOrder int  `json:"questionOrder"`
}

func (PaperQuestion) TableName() string {
	return "paper_questions"
}

// AnswerKey 由 exam -> paper -> questions 解析出的评分依据
type AnswerKey struct {
	PaperID    uint
	PaperTitle string
	TotalScore float64
	Questions  map[string]AnswerKeyQuestion // question_id -> 键
}

type AnswerKeyQuestion struct {
	CorrectAnswer string
	QuestionType  string
	MaxScore      float64
}
