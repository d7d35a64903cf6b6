package repository

import (
	"exam_center_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnrollmentRepository 处理考试分配记录的数据库操作
type EnrollmentRepository struct {
	DB *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

// Assign 幂等分配：已存在的 (exam_id, student_id) 保持原样，不报错
func (r *EnrollmentRepository) Assign(examID string, studentID uint, maxAttempts int) error {
	enrollment := model.Enrollment{
		ExamID:      examID,
		StudentID:   studentID,
		Status:      model.EnrollmentAssigned,
		MaxAttempts: maxAttempts,
	}
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "exam_id"}, {Name: "student_id"}},
		DoNothing: true,
	}).Create(&enrollment).Error
}

func (r *EnrollmentRepository) FindByExamAndStudent(examID string, studentID uint) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	err := r.DB.Where("exam_id = ? AND student_id = ?", examID, studentID).First(&enrollment).Error
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (r *EnrollmentRepository) ListByExam(examID string) ([]model.Enrollment, error) {
	var enrollments []model.Enrollment
	err := r.DB.Where("exam_id = ?", examID).Order("student_id").Find(&enrollments).Error
	return enrollments, err
}

// ConsumeAttempt 条件自增答题次数，attempts >= max_attempts 时不生效。
// 单条 UPDATE 自带行级互斥，不需要全局锁。
func (r *EnrollmentRepository) ConsumeAttempt(tx *gorm.DB, examID string, studentID uint) (bool, error) {
	result := tx.Model(&model.Enrollment{}).
		Where("exam_id = ? AND student_id = ? AND attempts < max_attempts", examID, studentID).
		Updates(map[string]interface{}{
			"attempts": gorm.Expr("attempts + 1"),
			"status":   model.EnrollmentStarted,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkCompletedIfExhausted 次数用尽后标记完成
func (r *EnrollmentRepository) MarkCompletedIfExhausted(tx *gorm.DB, examID string, studentID uint) error {
	return tx.Model(&model.Enrollment{}).
		Where("exam_id = ? AND student_id = ? AND attempts >= max_attempts", examID, studentID).
		Update("status", model.EnrollmentCompleted).Error
}

// CountActive 统计未用尽次数的分配数，用于考试完成判定
func (r *EnrollmentRepository) CountActive(examID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Enrollment{}).
		Where("exam_id = ? AND attempts < max_attempts AND status NOT IN ?", examID,
			[]model.EnrollmentStatus{model.EnrollmentCancelled, model.EnrollmentCompleted}).
		Count(&count).Error
	return count, err
}
