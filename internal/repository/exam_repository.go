package repository

import (
	"exam_center_backend/internal/model"

	"gorm.io/gorm"
)

// ExamRepository 处理考试记录的数据库操作
type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) Create(exam *model.Exam) error {
	return r.DB.Create(exam).Error
}

func (r *ExamRepository) FindByID(examID string) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.Where("id = ?", examID).First(&exam).Error
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *ExamRepository) List(page, limit int, status model.ExamStatus) ([]model.Exam, int64, error) {
	var exams []model.Exam
	var total int64

	query := r.DB.Model(&model.Exam{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&exams).Error
	return exams, total, err
}

// TransitionStatus 条件更新状态，保证状态机只向前推进。
// 返回 false 表示当前状态不是 from，状态未改变。
func (r *ExamRepository) TransitionStatus(examID string, from, to model.ExamStatus) (bool, error) {
	result := r.DB.Model(&model.Exam{}).
		Where("id = ? AND status = ?", examID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
