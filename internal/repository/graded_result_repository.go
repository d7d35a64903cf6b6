package repository

import (
	"exam_center_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GradedResultRepository 处理阅卷结果的数据库操作
type GradedResultRepository struct {
	DB *gorm.DB
}

func NewGradedResultRepository(db *gorm.DB) *GradedResultRepository {
	return &GradedResultRepository{DB: db}
}

// Upsert 按 submission_id 覆盖写入。队列重复投递时结果被确定性覆盖，
// 不会产生第二条记录，也不会累加分数。
func (r *GradedResultRepository) Upsert(result *model.GradedResult) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "submission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"exam_id", "student_id", "total_score", "obtained_score",
			"auto_graded", "needs_review", "submit_time", "grading_time", "details", "synced",
		}),
	}).Create(result).Error
}

func (r *GradedResultRepository) FindBySubmissionID(submissionID string) (*model.GradedResult, error) {
	var result model.GradedResult
	err := r.DB.Where("submission_id = ?", submissionID).First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// FindLatestByExamAndStudent 同一学生多次作答时取最近一次阅卷结果
func (r *GradedResultRepository) FindLatestByExamAndStudent(examID string, studentID uint) (*model.GradedResult, error) {
	var result model.GradedResult
	err := r.DB.Where("exam_id = ? AND student_id = ?", examID, studentID).
		Order("grading_time DESC").
		First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListUnsynced 尚未发布到成绩统计的结果
func (r *GradedResultRepository) ListUnsynced(limit int) ([]model.GradedResult, error) {
	var results []model.GradedResult
	err := r.DB.Where("synced = ?", false).
		Order("grading_time").
		Limit(limit).
		Find(&results).Error
	return results, err
}

func (r *GradedResultRepository) MarkSynced(id string) error {
	return r.DB.Model(&model.GradedResult{}).
		Where("id = ?", id).
		Update("synced", true).Error
}

func (r *GradedResultRepository) ListByExam(examID string) ([]model.GradedResult, error) {
	var results []model.GradedResult
	err := r.DB.Where("exam_id = ?", examID).Order("student_id").Find(&results).Error
	return results, err
}
