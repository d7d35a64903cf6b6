package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"exam_center_backend/internal/model"
	"exam_center_backend/internal/repository"
	"exam_center_backend/pkg/logger"
	"exam_center_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// GradingEventChannel 阅卷完成事件的 redis 频道，成绩发布方和监控端订阅
const GradingEventChannel = "exam_center:grading_completed"

// GradingEvent 发到 redis 的阅卷完成通知
type GradingEvent struct {
	SubmissionID  string    `json:"submissionId"`
	ExamID        string    `json:"examId"`
	StudentID     uint      `json:"studentId"`
	ObtainedScore float64   `json:"obtainedScore"`
	TotalScore    float64   `json:"totalScore"`
	NeedsReview   bool      `json:"needsReview"`
	GradingTime   time.Time `json:"gradingTime"`
}

// GraderService 固定大小的 worker 池，从队列抢占条目并自动阅卷。
// 每个 worker 串行处理手里的条目，池内并行。
type GraderService struct {
	Queue        *repository.QueueRepository
	Submissions  *repository.SubmissionRepository
	Exams        *repository.ExamRepository
	QuestionBank *repository.QuestionBankRepository
	Results      *repository.GradedResultRepository
	Redis        *redis.Client

	Workers      int
	Lease        time.Duration
	RetryBudget  int
	PollInterval time.Duration

	wg sync.WaitGroup
}

func NewGraderService(queue *repository.QueueRepository, submissions *repository.SubmissionRepository,
	exams *repository.ExamRepository, bank *repository.QuestionBankRepository,
	results *repository.GradedResultRepository, rdb *redis.Client,
	workers int, lease time.Duration, retryBudget int, pollInterval time.Duration) *GraderService {
	return &GraderService{
		Queue:        queue,
		Submissions:  submissions,
		Exams:        exams,
		QuestionBank: bank,
		Results:      results,
		Redis:        rdb,
		Workers:      workers,
		Lease:        lease,
		RetryBudget:  retryBudget,
		PollInterval: pollInterval,
	}
}

// Start 启动 worker 池，ctx 取消后停止抢占新条目
func (s *GraderService) Start(ctx context.Context) {
	for i := 0; i < s.Workers; i++ {
		workerID := fmt.Sprintf("grader-%d", i)
		s.wg.Add(1)
		go s.runWorker(ctx, workerID)
	}
	logger.Log.Info("grading worker pool started", zap.Int("workers", s.Workers))
}

// Wait 等待所有 worker 退出
func (s *GraderService) Wait() {
	s.wg.Wait()
}

func (s *GraderService) runWorker(ctx context.Context, workerID string) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := s.Queue.Claim(workerID, s.Lease, s.RetryBudget)
		if err != nil {
			logger.Log.Error("queue claim failed", zap.String("worker", workerID), zap.Error(err))
			s.sleep(ctx)
			continue
		}
		if item == nil {
			s.sleep(ctx)
			continue
		}

		s.process(workerID, item)
	}
}

func (s *GraderService) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(s.PollInterval):
	}
}

// process 处理一个已租用条目。错误分类决定出路：
// 瞬时错误 nack 等待重试，答案键永久缺失照样出结果（needs_review）并确认，
// 永远不会为一个不可能恢复的条件重试。
func (s *GraderService) process(workerID string, item *model.QueueItem) {
	start := time.Now()

	submission, err := s.Submissions.FindByID(item.SubmissionID)
	if err != nil {
		s.nack(workerID, item, fmt.Sprintf("load submission: %v", err))
		return
	}

	exam, err := s.Exams.FindByID(submission.ExamID)
	if err != nil {
		s.nack(workerID, item, fmt.Sprintf("load exam: %v", err))
		return
	}

	var result *model.GradedResult
	key, err := s.QuestionBank.ResolveAnswerKey(exam.PaperID)
	switch {
	case errors.Is(err, repository.ErrAnswerKeyNotFound):
		// 永久性缺失：显式标记复核，每题自动得分为零，而不是编造分数
		result = buildUngradedResult(submission, exam)
	case err != nil:
		s.nack(workerID, item, fmt.Sprintf("resolve answer key: %v", err))
		return
	default:
		result, err = gradeSubmission(submission, exam, key)
		if err != nil {
			s.nack(workerID, item, fmt.Sprintf("grade submission: %v", err))
			return
		}
	}

	// 按 submission_id 覆盖写入：重复投递被确定性覆盖，不会累加
	if err := s.Results.Upsert(result); err != nil {
		s.nack(workerID, item, fmt.Sprintf("persist result: %v", err))
		return
	}

	if err := s.Queue.Ack(item.ID, workerID); err != nil {
		// 结果已落库且幂等，租约过期重投只会覆盖同样内容
		logger.Log.Warn("ack failed after result persisted",
			zap.Uint("itemId", item.ID), zap.Error(err))
	}

	s.publishEvent(result)

	outcome := "graded"
	if result.NeedsReview {
		outcome = "needs_review"
	}
	monitoring.GradingJobsProcessed.WithLabelValues(outcome).Inc()
	monitoring.GradingDuration.Observe(time.Since(start).Seconds())

	logger.Log.Info("submission graded",
		zap.String("worker", workerID),
		zap.String("submissionId", result.SubmissionID),
		zap.Float64("obtained", result.ObtainedScore),
		zap.Float64("total", result.TotalScore),
		zap.Bool("needsReview", result.NeedsReview))
}

func (s *GraderService) nack(workerID string, item *model.QueueItem, reason string) {
	monitoring.GradingJobsProcessed.WithLabelValues("retried").Inc()
	logger.Log.Warn("grading attempt failed",
		zap.String("worker", workerID),
		zap.String("submissionId", item.SubmissionID),
		zap.Int("attempt", item.AttemptCount),
		zap.String("reason", reason))
	if err := s.Queue.Nack(item.ID, workerID, reason, s.RetryBudget); err != nil {
		logger.Log.Error("nack failed", zap.Uint("itemId", item.ID), zap.Error(err))
	}
}

func (s *GraderService) publishEvent(result *model.GradedResult) {
	if s.Redis == nil {
		return
	}
	event := GradingEvent{
		SubmissionID:  result.SubmissionID,
		ExamID:        result.ExamID,
		StudentID:     result.StudentID,
		ObtainedScore: result.ObtainedScore,
		TotalScore:    result.TotalScore,
		NeedsReview:   result.NeedsReview,
		GradingTime:   result.GradingTime,
	}
	payload, _ := json.Marshal(event)
	if err := s.Redis.Publish(context.Background(), GradingEventChannel, payload).Err(); err != nil {
		logger.Log.Warn("failed to publish grading event",
			zap.String("submissionId", result.SubmissionID), zap.Error(err))
	}
}

// gradeSubmission 逐题评分并汇总。题目顺序固定（按 question_id 排序），
// 保证相同输入产出字节一致的明细。
func gradeSubmission(submission *model.Submission, exam *model.Exam, key *model.AnswerKey) (*model.GradedResult, error) {
	answers, err := submission.DecodeAnswers()
	if err != nil {
		return nil, err
	}

	questionIDs := make([]string, 0, len(key.Questions))
	for id := range key.Questions {
		questionIDs = append(questionIDs, id)
	}
	sort.Strings(questionIDs)

	var obtained float64
	needsReview := false
	details := make([]model.QuestionScore, 0, len(questionIDs))

	for _, qid := range questionIDs {
		kq := key.Questions[qid]
		raw := answers[qid]
		verdict := ScoreQuestion(kq.QuestionType, raw, kq)

		if verdict.NeedsReview {
			needsReview = true
		}
		obtained += verdict.Score

		details = append(details, model.QuestionScore{
			QuestionID:    qid,
			QuestionType:  kq.QuestionType,
			StudentAnswer: decodeAnswerText(raw),
			CorrectAnswer: kq.CorrectAnswer,
			Score:         verdict.Score,
			MaxScore:      kq.MaxScore,
			NeedsReview:   verdict.NeedsReview,
		})
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}

	totalScore := exam.TotalScore
	if totalScore <= 0 {
		totalScore = key.TotalScore
	}

	return &model.GradedResult{
		SubmissionID:  submission.ID,
		ExamID:        submission.ExamID,
		StudentID:     submission.StudentID,
		TotalScore:    totalScore,
		ObtainedScore: obtained,
		AutoGraded:    true,
		NeedsReview:   needsReview,
		SubmitTime:    submission.SubmitTime,
		GradingTime:   time.Now(),
		Details:       detailsJSON,
	}, nil
}

// buildUngradedResult 答案键永久不可解析时的结果：每题零分、整卷 needs_review
func buildUngradedResult(submission *model.Submission, exam *model.Exam) *model.GradedResult {
	answers, _ := submission.DecodeAnswers()

	questionIDs := make([]string, 0, len(answers))
	for id := range answers {
		questionIDs = append(questionIDs, id)
	}
	sort.Strings(questionIDs)

	details := make([]model.QuestionScore, 0, len(questionIDs))
	for _, qid := range questionIDs {
		details = append(details, model.QuestionScore{
			QuestionID:    qid,
			StudentAnswer: decodeAnswerText(answers[qid]),
			NeedsReview:   true,
		})
	}
	detailsJSON, _ := json.Marshal(details)

	return &model.GradedResult{
		SubmissionID:  submission.ID,
		ExamID:        submission.ExamID,
		StudentID:     submission.StudentID,
		TotalScore:    exam.TotalScore,
		ObtainedScore: 0,
		AutoGraded:    false,
		NeedsReview:   true,
		SubmitTime:    submission.SubmitTime,
		GradingTime:   time.Now(),
		Details:       detailsJSON,
	}
}
