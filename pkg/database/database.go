package database

import (
	"fmt"
	"log"

	"exam_center_backend/internal/config"
	"exam_center_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("Database migration completed")
	return db, nil
}

// Migrate 只迁移本服务拥有的表。题库表（papers/questions/paper_questions）
// 归外部题库系统所有，这里只读不迁移。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Exam{},
		&model.Enrollment{},
		&model.Submission{},
		&model.QueueItem{},
		&model.GradedResult{},
		&model.ScoreRecord{},
	)
}
