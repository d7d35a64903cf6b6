package service

import (
	"testing"
	"time"

	"exam_center_backend/internal/model"
	"exam_center_backend/internal/repository"
	"exam_center_backend/internal/util"
	"exam_center_backend/pkg/logger"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

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

// testPipeline 一套完整的管线依赖，redis 缺省为 nil（事件发布静默跳过）
type testPipeline struct {
	db          *gorm.DB
	exams       *repository.ExamRepository
	enrollments *repository.EnrollmentRepository
	submissions *repository.SubmissionRepository
	queue       *repository.QueueRepository
	results     *repository.GradedResultRepository
	scores      *repository.ScoreRecordRepository
	bank        *repository.QuestionBankRepository

	examService *ExamService
	intake      *IntakeService
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	db := newTestDB(t)

	p := &testPipeline{
		db:          db,
		exams:       repository.NewExamRepository(db),
		enrollments: repository.NewEnrollmentRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		queue:       repository.NewQueueRepository(db),
		results:     repository.NewGradedResultRepository(db),
		scores:      repository.NewScoreRecordRepository(db),
		bank:        repository.NewQuestionBankRepository(db),
	}
	p.examService = NewExamService(p.exams, p.enrollments, p.submissions, nil)
	p.intake = NewIntakeService(db, p.examService, p.enrollments, p.submissions, p.queue)
	return p
}

// seedOpenExam 一场正在进行中的考试，窗口前后各一小时
func (p *testPipeline) seedOpenExam(t *testing.T, maxAttempts int) *model.Exam {
	t.Helper()
	exam := &model.Exam{
		PaperID:     1,
		Title:       "期末考",
		Duration:    90,
		TotalScore:  100,
		StartTime:   time.Now().Add(-time.Hour),
		EndTime:     time.Now().Add(time.Hour),
		Status:      model.ExamPublished,
		MaxAttempts: maxAttempts,
	}
	require.NoError(t, p.exams.Create(exam))
	return exam
}

func (p *testPipeline) seedPaper(t *testing.T) {
	t.Helper()
	require.NoError(t, p.db.Create(&model.Paper{ID: 1, Name: "期末卷", TotalScore: 100, Duration: 90}).Error)
	require.NoError(t, p.db.Create(&[]model.Question{
		{ID: 10, QuestionType: util.QuestionSingleChoice, CorrectAnswer: "A", Score: 30},
		{ID: 11, QuestionType: util.QuestionTrueFalse, CorrectAnswer: "对", Score: 30},
		{ID: 12, QuestionType: util.QuestionEssay, CorrectAnswer: "", Score: 40},
	}).Error)
	require.NoError(t, p.db.Create(&[]model.PaperQuestion{
		{PaperID: 1, QuestionID: 10, QuestionOrder: 1},
		{PaperID: 1, QuestionID: 11, QuestionOrder: 2},
		{PaperID: 1, QuestionID: 12, QuestionOrder: 3},
	}).Error)
}
