package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"exam_center_backend/internal/config"
	"exam_center_backend/internal/model"
	"exam_center_backend/internal/repository"
	"exam_center_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SyncService 成绩发布：把阅卷结果合并为按 (exam_id, student_id) 的成绩记录。
// redis 订阅驱动即时发布，ticker 兜底补扫，两条路径都落在同一个幂等 upsert 上，
// 并发重叠运行是安全的。
type SyncService struct {
	Results *repository.GradedResultRepository
	Scores  *repository.ScoreRecordRepository
	Redis   *redis.Client

	Interval  time.Duration
	BatchSize int

	// 配置热更新会从watcher的goroutine写入，读写都要过锁
	mu         sync.RWMutex
	thresholds config.GradeThresholds
}

func NewSyncService(results *repository.GradedResultRepository, scores *repository.ScoreRecordRepository,
	rdb *redis.Client, cfg config.SyncConfig) *SyncService {
	return &SyncService{
		Results:    results,
		Scores:     scores,
		Redis:      rdb,
		Interval:   cfg.Interval,
		BatchSize:  cfg.BatchSize,
		thresholds: cfg.Thresholds,
	}
}

// UpdateThresholds 配置热更新入口（configwatcher 回调）
func (s *SyncService) UpdateThresholds(t config.GradeThresholds) {
	s.mu.Lock()
	s.thresholds = t
	s.mu.Unlock()
	logger.Log.Info("grade thresholds updated",
		zap.Float64("excellent", t.Excellent), zap.Float64("pass", t.Pass))
}

// Thresholds 当前生效的等级阈值快照
func (s *SyncService) Thresholds() config.GradeThresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// Run 事件订阅 + 定时兜底。ctx 取消后退出。
func (s *SyncService) Run(ctx context.Context) {
	events := make(chan struct{}, 1)
	if s.Redis != nil {
		go s.subscribe(ctx, events)
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
		case <-ticker.C:
		}

		if _, err := s.PublishPending(); err != nil {
			logger.Log.Error("score sync failed", zap.Error(err))
		}
	}
}

func (s *SyncService) subscribe(ctx context.Context, events chan<- struct{}) {
	pubsub := s.Redis.Subscribe(ctx, GradingEventChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			// 合并突发事件，一次扫描就能带走整批
			select {
			case events <- struct{}{}:
			default:
			}
		}
	}
}

// PublishPending 把未发布的阅卷结果逐条转成成绩记录。
// 同一结果重复发布会写出完全相同的记录，不产生重复行也不累加。
func (s *SyncService) PublishPending() (int, error) {
	results, err := s.Results.ListUnsynced(s.BatchSize)
	if err != nil {
		return 0, err
	}

	thresholds := s.Thresholds()
	published := 0
	for i := range results {
		record := BuildScoreRecord(&results[i], thresholds)
		if err := s.Scores.Upsert(record); err != nil {
			logger.Log.Error("score upsert failed",
				zap.String("submissionId", results[i].SubmissionID), zap.Error(err))
			continue
		}
		if err := s.Results.MarkSynced(results[i].ID); err != nil {
			logger.Log.Error("mark synced failed",
				zap.String("resultId", results[i].ID), zap.Error(err))
			continue
		}
		published++
	}
	return published, nil
}

type ScoreStatus string

const (
	ScoreNotFound       ScoreStatus = "not_found"
	ScorePendingGrading ScoreStatus = "pending_grading"
	ScoreGraded         ScoreStatus = "graded"
)

type ScoreView struct {
	Status        ScoreStatus `json:"status"`
	ObtainedScore *float64    `json:"obtainedScore,omitempty"`
	TotalScore    *float64    `json:"totalScore,omitempty"`
	Percentage    *float64    `json:"percentage,omitempty"`
	Grade         *string     `json:"grade,omitempty"`
	NeedsReview   bool        `json:"needsReview,omitempty"`
}

// GetScore 学生视角的成绩查询。阅卷异步失败不会出现在这里：
// 成绩记录存在之前学生只看到 pending_grading。
func (s *SyncService) GetScore(examID string, studentID uint, hasSubmission bool) (*ScoreView, error) {
	record, err := s.Scores.FindByExamAndStudent(examID, studentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if hasSubmission {
			return &ScoreView{Status: ScorePendingGrading}, nil
		}
		return &ScoreView{Status: ScoreNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	return &ScoreView{
		Status:        ScoreGraded,
		ObtainedScore: &record.ObtainedScore,
		TotalScore:    &record.TotalScore,
		Percentage:    &record.Percentage,
		Grade:         &record.Grade,
		NeedsReview:   record.NeedsReview,
	}, nil
}

// ExamStatistics 教师视角的按考试成绩汇总
type ExamStatistics struct {
	ExamID       string  `json:"examId"`
	Participants int     `json:"participants"`
	Average      float64 `json:"average"`
	Highest      float64 `json:"highest"`
	Lowest       float64 `json:"lowest"`
	PassRate     float64 `json:"passRate"`

	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Fair      int `json:"fair"`
	Pass      int `json:"pass"`
	Fail      int `json:"fail"`
}

func (s *SyncService) Statistics(examID string) (*ExamStatistics, error) {
	records, err := s.Scores.ListByExam(examID)
	if err != nil {
		return nil, err
	}

	stats := &ExamStatistics{ExamID: examID, Participants: len(records)}
	if len(records) == 0 {
		return stats, nil
	}

	thresholds := s.Thresholds()
	var sum float64
	stats.Lowest = math.MaxFloat64
	passed := 0
	for _, r := range records {
		sum += r.ObtainedScore
		if r.ObtainedScore > stats.Highest {
			stats.Highest = r.ObtainedScore
		}
		if r.ObtainedScore < stats.Lowest {
			stats.Lowest = r.ObtainedScore
		}
		if r.Percentage >= thresholds.Pass {
			passed++
		}
		switch {
		case r.Percentage >= thresholds.Excellent:
			stats.Excellent++
		case r.Percentage >= thresholds.Good:
			stats.Good++
		case r.Percentage >= thresholds.Fair:
			stats.Fair++
		case r.Percentage >= thresholds.Pass:
			stats.Pass++
		default:
			stats.Fail++
		}
	}
	stats.Average = round2(sum / float64(len(records)))
	stats.PassRate = round2(float64(passed) / float64(len(records)) * 100)
	return stats, nil
}

// BuildScoreRecord 是 GradedResult 与阈值的纯函数：相同输入产出字节一致的记录
func BuildScoreRecord(result *model.GradedResult, t config.GradeThresholds) *model.ScoreRecord {
	percentage := 0.0
	if result.TotalScore > 0 {
		percentage = round2(result.ObtainedScore / result.TotalScore * 100)
	}

	return &model.ScoreRecord{
		ExamID:        result.ExamID,
		StudentID:     result.StudentID,
		SubmissionID:  result.SubmissionID,
		ObtainedScore: result.ObtainedScore,
		TotalScore:    result.TotalScore,
		Percentage:    percentage,
		Grade:         GradeBucket(percentage, t),
		NeedsReview:   result.NeedsReview,
		ExamTime:      result.SubmitTime,
		GradingTime:   result.GradingTime,
		Details:       result.Details,
	}
}

// GradeBucket 按阈值映射等级
func GradeBucket(percentage float64, t config.GradeThresholds) string {
	switch {
	case percentage >= t.Excellent:
		return "excellent"
	case percentage >= t.Good:
		return "good"
	case percentage >= t.Fair:
		return "fair"
	case percentage >= t.Pass:
		return "pass"
	default:
		return "fail"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
