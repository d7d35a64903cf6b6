package repository

import (
	"time"

	"exam_center_backend/internal/model"

	"gorm.io/gorm"
)

// SubmissionRepository 处理答卷记录的数据库操作
type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

func (r *SubmissionRepository) Create(tx *gorm.DB, submission *model.Submission) error {
	return tx.Create(submission).Error
}

func (r *SubmissionRepository) FindByID(submissionID string) (*model.Submission, error) {
	var submission model.Submission
	err := r.DB.Where("id = ?", submissionID).First(&submission).Error
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *SubmissionRepository) HasSubmission(examID string, studentID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.Submission{}).
		Where("exam_id = ? AND student_id = ?", examID, studentID).
		Count(&count).Error
	return count > 0, err
}

func (r *SubmissionRepository) CountByExam(examID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Submission{}).Where("exam_id = ?", examID).Count(&count).Error
	return count, err
}

// FindOrphans 找出已持久化但既没有队列条目也没有阅卷结果的答卷。
// olderThan 留出正常入队的时间窗，避免扫到正在提交中的记录。
func (r *SubmissionRepository) FindOrphans(olderThan time.Time, limit int) ([]model.Submission, error) {
	var orphans []model.Submission
	err := r.DB.
		Joins("LEFT JOIN grading_queue_items qi ON qi.submission_id = submissions.id AND qi.deleted_at IS NULL").
		Joins("LEFT JOIN graded_results gr ON gr.submission_id = submissions.id AND gr.deleted_at IS NULL").
		Where("qi.id IS NULL AND gr.id IS NULL AND submissions.created_at < ?", olderThan).
		Limit(limit).
		Find(&orphans).Error
	return orphans, err
}
