package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"exam_center_backend/internal/model"
	"exam_center_backend/internal/repository"
	"exam_center_backend/internal/util"
	"exam_center_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExamEventChannel 考试注册表事件的 redis 频道，客户端可见性同步方订阅
const ExamEventChannel = "exam_center:exam_events"

type ExamService struct {
	Repo       *repository.ExamRepository
	Enrollment *repository.EnrollmentRepository
	Submission *repository.SubmissionRepository
	Redis      *redis.Client
}

func NewExamService(repo *repository.ExamRepository, enrollment *repository.EnrollmentRepository,
	submission *repository.SubmissionRepository, rdb *redis.Client) *ExamService {
	return &ExamService{Repo: repo, Enrollment: enrollment, Submission: submission, Redis: rdb}
}

type CreateExamRequest struct {
	PaperID     uint      `json:"paperId" binding:"required"`
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	Duration    int       `json:"duration" binding:"required"`
	TotalScore  float64   `json:"totalScore" binding:"required"`
	StartTime   time.Time `json:"startTime" binding:"required"`
	EndTime     time.Time `json:"endTime" binding:"required"`

	AllowReview        *bool `json:"allowReview"`
	ShowScore          *bool `json:"showScore"`
	RandomizeQuestions *bool `json:"randomizeQuestions"`
	MaxAttempts        int   `json:"maxAttempts"`
}

func (s *ExamService) CreateExam(creatorID uint, req CreateExamRequest) (*model.Exam, error) {
	if req.Duration <= 0 || req.TotalScore <= 0 || !req.StartTime.Before(req.EndTime) {
		return nil, util.ErrInvalidExam
	}

	exam := &model.Exam{
		PaperID:     req.PaperID,
		Title:       req.Title,
		Description: req.Description,
		Duration:    req.Duration,
		TotalScore:  req.TotalScore,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Status:      model.ExamDraft,
		AllowReview: true,
		ShowScore:   true,
		MaxAttempts: 1,
		CreatedBy:   creatorID,
	}
	if req.AllowReview != nil {
		exam.AllowReview = *req.AllowReview
	}
	if req.ShowScore != nil {
		exam.ShowScore = *req.ShowScore
	}
	if req.RandomizeQuestions != nil {
		exam.RandomizeQuestions = *req.RandomizeQuestions
	}
	if req.MaxAttempts > 0 {
		exam.MaxAttempts = req.MaxAttempts
	}

	if err := s.Repo.Create(exam); err != nil {
		return nil, err
	}
	return exam, nil
}

func (s *ExamService) GetExam(examID string) (*model.Exam, error) {
	exam, err := s.Repo.FindByID(examID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrExamNotFound
	}
	return exam, err
}

func (s *ExamService) ListExams(page, limit int, status model.ExamStatus) ([]model.Exam, int64, error) {
	return s.Repo.List(page, limit, status)
}

// PublishExam draft -> published，并广播注册表事件
func (s *ExamService) PublishExam(examID string) error {
	ok, err := s.Repo.TransitionStatus(examID, model.ExamDraft, model.ExamPublished)
	if err != nil {
		return err
	}
	if !ok {
		return util.ErrInvalidTransition
	}

	s.publishEvent("exam_published", examID)
	return nil
}

// CancelExam 仅允许从 draft/published 取消。已入队的阅卷任务不受影响：
// 取消前按旧规则接受的答卷仍然要被批改。
func (s *ExamService) CancelExam(examID string) error {
	exam, err := s.GetExam(examID)
	if err != nil {
		return err
	}
	if !exam.CanTransitionTo(model.ExamCancelled) {
		return util.ErrInvalidTransition
	}

	ok, err := s.Repo.TransitionStatus(examID, exam.Status, model.ExamCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return util.ErrInvalidTransition
	}

	s.publishEvent("exam_cancelled", examID)
	return nil
}

// ActivateExam 运维显式激活；隐式激活在 EffectiveStatus 里按时间窗推算
func (s *ExamService) ActivateExam(examID string) error {
	ok, err := s.Repo.TransitionStatus(examID, model.ExamPublished, model.ExamActive)
	if err != nil {
		return err
	}
	if !ok {
		return util.ErrInvalidTransition
	}

	s.publishEvent("exam_activated", examID)
	return nil
}

// CompleteExam 结束考试。published 状态要求提交窗口已开启过，
// 不允许跳过整个答题窗直接完结。
func (s *ExamService) CompleteExam(examID string) error {
	exam, err := s.GetExam(examID)
	if err != nil {
		return err
	}
	if !exam.CanTransitionTo(model.ExamCompleted) {
		return util.ErrInvalidTransition
	}
	if exam.Status == model.ExamPublished && time.Now().Before(exam.StartTime) {
		return util.ErrWindowNeverOpened
	}

	ok, err := s.Repo.TransitionStatus(examID, exam.Status, model.ExamCompleted)
	if err != nil {
		return err
	}
	if !ok {
		return util.ErrInvalidTransition
	}

	s.publishEvent("exam_completed", examID)
	return nil
}

// AssignStudents 发布考试时挂接学生名册；重复分配同一学生是幂等空操作
func (s *ExamService) AssignStudents(examID string, studentIDs []uint) error {
	exam, err := s.GetExam(examID)
	if err != nil {
		return err
	}

	for _, studentID := range studentIDs {
		if err := s.Enrollment.Assign(exam.ID, studentID, exam.MaxAttempts); err != nil {
			return err
		}
	}
	return nil
}

func (s *ExamService) ListEnrollments(examID string) ([]model.Enrollment, error) {
	if _, err := s.GetExam(examID); err != nil {
		return nil, err
	}
	return s.Enrollment.ListByExam(examID)
}

// EffectiveStatus 推算考试的实际阶段：
// published + 窗口已开 + 已有答卷 => active；时间窗已过 => completed。
// 只作读取视图，持久状态仍由显式转换推进。
func (s *ExamService) EffectiveStatus(exam *model.Exam, now time.Time) model.ExamStatus {
	switch exam.Status {
	case model.ExamPublished:
		if now.After(exam.EndTime) {
			return model.ExamCompleted
		}
		if !now.Before(exam.StartTime) {
			if count, err := s.Submission.CountByExam(exam.ID); err == nil && count > 0 {
				return model.ExamActive
			}
		}
	case model.ExamActive:
		if now.After(exam.EndTime) {
			return model.ExamCompleted
		}
	}
	return exam.Status
}

func (s *ExamService) publishEvent(event, examID string) {
	if s.Redis == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"event": event, "examId": examID})
	if err := s.Redis.Publish(context.Background(), ExamEventChannel, payload).Err(); err != nil {
		logger.Log.Warn("failed to publish exam event",
			zap.String("event", event), zap.String("examId", examID), zap.Error(err))
	}
}
