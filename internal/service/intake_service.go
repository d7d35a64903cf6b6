package service

import (
	"encoding/json"
	"errors"
	"time"

	"exam_center_backend/internal/model"
	"exam_center_backend/internal/repository"
	"exam_center_backend/internal/util"
	"exam_center_backend/pkg/logger"
	"exam_center_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IntakeService 答卷入口：校验、持久化、入队。从不评分，从不等待阅卷。
type IntakeService struct {
	DB          *gorm.DB
	Exams       *ExamService
	Enrollments *repository.EnrollmentRepository
	Submissions *repository.SubmissionRepository
	Queue       *repository.QueueRepository
}

func NewIntakeService(db *gorm.DB, exams *ExamService, enrollments *repository.EnrollmentRepository,
	submissions *repository.SubmissionRepository, queue *repository.QueueRepository) *IntakeService {
	return &IntakeService{
		DB:          db,
		Exams:       exams,
		Enrollments: enrollments,
		Submissions: submissions,
		Queue:       queue,
	}
}

type SubmitRequest struct {
	Answers    map[string]json.RawMessage `json:"answers" binding:"required"`
	Duration   int                        `json:"durationSeconds"`
	SubmitTime time.Time                  `json:"submitTime"`
}

type SubmitResult struct {
	Accepted     bool   `json:"accepted"`
	SubmissionID string `json:"submissionId,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Submit 前置校验按顺序执行，第一个失败即拒绝（同步报告，不重试）：
// 考试存在且开放 -> 已分配 -> 在答题窗口内 -> 次数未用尽。
// 通过后在一个事务里持久化答卷、消耗答题次数并入队。
func (s *IntakeService) Submit(examID string, studentID uint, req SubmitRequest) (*SubmitResult, error) {
	now := req.SubmitTime
	if now.IsZero() {
		now = time.Now()
	}

	exam, err := s.Exams.GetExam(examID)
	if err != nil {
		if errors.Is(err, util.ErrExamNotFound) {
			return reject(util.ErrExamNotFound), nil
		}
		return nil, err
	}

	// 这里检查的是落库状态：published考试过了窗口由下面的
	// 窗口比较给出window_closed，而不是按视图状态算作未开放
	if exam.Status != model.ExamPublished && exam.Status != model.ExamActive {
		return reject(util.ErrExamNotOpen), nil
	}

	enrollment, err := s.Enrollments.FindByExamAndStudent(examID, studentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reject(util.ErrNotEnrolled), nil
	}
	if err != nil {
		return nil, err
	}
	if enrollment.Status == model.EnrollmentCancelled {
		return reject(util.ErrNotEnrolled), nil
	}

	// 迟交在入口拒绝并给出明确原因，绝不进入阅卷管线按零分处理
	if now.Before(exam.StartTime) {
		return reject(util.ErrWindowNotOpen), nil
	}
	if now.After(exam.EndTime) {
		return reject(util.ErrWindowClosed), nil
	}

	answersJSON, err := json.Marshal(req.Answers)
	if err != nil {
		return nil, err
	}

	submission := &model.Submission{
		ExamID:     examID,
		StudentID:  studentID,
		Answers:    answersJSON,
		Duration:   req.Duration,
		SubmitTime: now,
	}

	rejected := false
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// 条件自增实现 attempts < max_attempts 检查，行级互斥，无全局锁
		ok, err := s.Enrollments.ConsumeAttempt(tx, examID, studentID)
		if err != nil {
			return err
		}
		if !ok {
			rejected = true
			return nil
		}

		if err := s.Submissions.Create(tx, submission); err != nil {
			return err
		}

		item := &model.QueueItem{
			SubmissionID: submission.ID,
			ExamID:       examID,
			StudentID:    studentID,
			State:        model.QueuePending,
		}
		if err := s.Queue.Enqueue(tx, item); err != nil {
			return err
		}

		return s.Enrollments.MarkCompletedIfExhausted(tx, examID, studentID)
	})
	if err != nil {
		return nil, err
	}
	if rejected {
		return reject(util.ErrAttemptsExhausted), nil
	}

	monitoring.SubmissionsAccepted.Inc()
	logger.Log.Info("submission accepted",
		zap.String("examId", examID),
		zap.Uint("studentId", studentID),
		zap.String("submissionId", submission.ID))

	return &SubmitResult{Accepted: true, SubmissionID: submission.ID}, nil
}

// SweepOrphans 恢复扫描：找出已持久化但没有队列条目也没有阅卷结果的答卷，
// 重新入队。这是提交契约的一部分：任何被接受的答卷最终都会有结果或死信。
func (s *IntakeService) SweepOrphans(grace time.Duration, limit int) (int, error) {
	orphans, err := s.Submissions.FindOrphans(time.Now().Add(-grace), limit)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, sub := range orphans {
		item := &model.QueueItem{
			SubmissionID: sub.ID,
			ExamID:       sub.ExamID,
			StudentID:    sub.StudentID,
			State:        model.QueuePending,
		}
		if err := s.Queue.Enqueue(s.DB, item); err != nil {
			logger.Log.Error("failed to requeue orphan submission",
				zap.String("submissionId", sub.ID), zap.Error(err))
			continue
		}
		requeued++
	}

	if requeued > 0 {
		logger.Log.Warn("requeued orphan submissions", zap.Int("count", requeued))
	}
	return requeued, nil
}

func reject(reason error) *SubmitResult {
	monitoring.SubmissionsRejected.WithLabelValues(reason.Error()).Inc()
	return &SubmitResult{Accepted: false, Reason: reason.Error()}
}
