package repository

import (
	"testing"

	"exam_center_backend/internal/model"
	"exam_center_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

// newTestDB 每个测试独立的内存库。限制单连接，避免 sqlite 内存库按连接隔离。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&model.Exam{},
		&model.Enrollment{},
		&model.Submission{},
		&model.QueueItem{},
		&model.GradedResult{},
		&model.ScoreRecord{},
		&model.Paper{},
		&model.Question{},
		&model.PaperQuestion{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
