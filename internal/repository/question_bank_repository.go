package repository

import (
	"errors"
	"strconv"

	"exam_center_backend/internal/model"

	"gorm.io/gorm"
)

// ErrAnswerKeyNotFound 表示答案键永久不可解析（试卷或题目已删除），
// 与数据库瞬时故障区分：前者阅卷时直接转 needs_review，后者重试。
var ErrAnswerKeyNotFound = errors.New("answer key not found")

// QuestionBankRepository 只读访问外部题库，解析试卷的答案键
type QuestionBankRepository struct {
	DB *gorm.DB
}

func NewQuestionBankRepository(db *gorm.DB) *QuestionBankRepository {
	return &QuestionBankRepository{DB: db}
}

// ResolveAnswerKey 按 paper -> questions 解析答案键。
// 试卷不存在或没有题目返回 ErrAnswerKeyNotFound。
func (r *QuestionBankRepository) ResolveAnswerKey(paperID uint) (*model.AnswerKey, error) {
	var paper model.Paper
	err := r.DB.Where("id = ?", paperID).First(&paper).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAnswerKeyNotFound
	}
	if err != nil {
		return nil, err
	}

	type questionRow struct {
		ID            uint
		CorrectAnswer string
		QuestionType  string
		Score         float64
	}
	var rows []questionRow
	err = r.DB.Model(&model.Question{}).
		Select("questions.id, questions.correct_answer, questions.question_type, questions.score").
		Joins("JOIN paper_questions pq ON pq.question_id = questions.id").
		Where("pq.paper_id = ?", paperID).
		Order("pq.question_order").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrAnswerKeyNotFound
	}

	key := &model.AnswerKey{
		PaperID:    paper.ID,
		PaperTitle: paper.Name,
		TotalScore: paper.TotalScore,
		Questions:  make(map[string]model.AnswerKeyQuestion, len(rows)),
	}
	for _, q := range rows {
		key.Questions[strconv.FormatUint(uint64(q.ID), 10)] = model.AnswerKeyQuestion{
			CorrectAnswer: q.CorrectAnswer,
			QuestionType:  q.QuestionType,
			MaxScore:      q.Score,
		}
	}
	return key, nil
}
