package repository

import (
	"exam_center_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScoreRecordRepository 处理成绩统计记录的数据库操作
type ScoreRecordRepository struct {
	DB *gorm.DB
}

func NewScoreRecordRepository(db *gorm.DB) *ScoreRecordRepository {
	return &ScoreRecordRepository{DB: db}
}

// Upsert 按 (exam_id, student_id) 覆盖写入，重复发布同一结果内容不变
func (r *ScoreRecordRepository) Upsert(record *model.ScoreRecord) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "exam_id"}, {Name: "student_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"submission_id", "obtained_score", "total_score", "percentage",
			"grade", "needs_review", "exam_time", "grading_time", "details",
		}),
	}).Create(record).Error
}

func (r *ScoreRecordRepository) FindByExamAndStudent(examID string, studentID uint) (*model.ScoreRecord, error) {
	var record model.ScoreRecord
	err := r.DB.Where("exam_id = ? AND student_id = ?", examID, studentID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *ScoreRecordRepository) ListByExam(examID string) ([]model.ScoreRecord, error) {
	var records []model.ScoreRecord
	err := r.DB.Where("exam_id = ?", examID).Order("obtained_score DESC").Find(&records).Error
	return records, err
}
