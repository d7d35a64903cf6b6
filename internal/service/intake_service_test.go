package service

import (
	"encoding/json"
	"testing"
	"time"

	"exam_center_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitReq() SubmitRequest {
	return SubmitRequest{
		Answers: map[string]json.RawMessage{
			"10": json.RawMessage(`"A"`),
		},
		Duration: 1800,
	}
}

func TestSubmitAccepted(t *testing.T) {
	p := newTestPipeline(t)
	exam := p.seedOpenExam(t, 1)
	require.NoError(t, p.enrollments.Assign(exam.ID, 42, exam.MaxAttempts))

	result, err := p.intake.Submit(exam.ID, 42, submitReq())
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.NotEmpty(t, result.SubmissionID)

	// 答卷与队列条目在同一事务落库
	submission, err := p.submissions.FindByID(result.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, exam.ID, submission.ExamID)

	item, err := p.queue.FindBySubmissionID(result.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, model.QueuePending, item.State)
	assert.Equal(t, 0, item.AttemptCount)

	enrollment, err := p.enrollments.FindByExamAndStudent(exam.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, enrollment.Attempts)
	assert.Equal(t, model.EnrollmentCompleted, enrollment.Status)
}

func TestSubmitRejectionReasons(t *testing.T) {
	p := newTestPipeline(t)
	exam := p.seedOpenExam(t, 1)
	require.NoError(t, p.enrollments.Assign(exam.ID, 42, exam.MaxAttempts))

	draft := &model.Exam{
		PaperID: 1, Title: "草稿考试", Duration: 60, TotalScore: 100,
		StartTime: time.Now().Add(-time.Hour), EndTime: time.Now().Add(time.Hour),
		Status: model.ExamDraft, MaxAttempts: 1,
	}
	require.NoError(t, p.exams.Create(draft))

	tests := []struct {
		name      string
		examID    string
		studentID uint
		at        time.Time
		reason    string
	}{
		{"考试不存在", "no-such-exam", 42, time.Time{}, "exam_not_found"},
		{"考试未开放", draft.ID, 42, time.Time{}, "exam_not_open"},
		{"未分配", exam.ID, 99, time.Time{}, "not_enrolled"},
		{"窗口未开", exam.ID, 42, exam.StartTime.Add(-time.Minute), "window_not_open"},
		{"窗口已关", exam.ID, 42, exam.EndTime.Add(time.Minute), "window_closed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := submitReq()
			req.SubmitTime = tt.at
			result, err := p.intake.Submit(tt.examID, tt.studentID, req)
			require.NoError(t, err)
			assert.False(t, result.Accepted)
			assert.Equal(t, tt.reason, result.Reason)
		})
	}

	// 被拒绝的提交不产生任何队列条目
	var count int64
	require.NoError(t, p.db.Model(&model.QueueItem{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestSubmitWindowNotOpenBeatsAttemptCheck(t *testing.T) {
	p := newTestPipeline(t)
	exam := p.seedOpenExam(t, 1)
	require.NoError(t, p.enrollments.Assign(exam.ID, 42, exam.MaxAttempts))

	// 次数已用尽，但窗口未开的拒因优先（按校验顺序）
	_, err := p.enrollments.ConsumeAttempt(p.db, exam.ID, 42)
	require.NoError(t, err)

	req := submitReq()
	req.SubmitTime = exam.StartTime.Add(-time.Minute)
	result, err := p.intake.Submit(exam.ID, 42, req)
	require.NoError(t, err)
	assert.Equal(t, "window_not_open", result.Reason)
}

func TestSubmitAttemptsExhausted(t *testing.T) {
	p := newTestPipeline(t)
	exam := p.seedOpenExam(t, 1)
	require.NoError(t, p.enrollments.Assign(exam.ID, 42, exam.MaxAttempts))

	first, err := p.intake.Submit(exam.ID, 42, submitReq())
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := p.intake.Submit(exam.ID, 42, submitReq())
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.Equal(t, "attempts_exhausted", second.Reason)

	// 被拒绝的第二次提交没有留下答卷
	count, err := p.submissions.CountByExam(exam.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSubmitMultipleAttempts(t *testing.T) {
	p := newTestPipeline(t)
	exam := p.seedOpenExam(t, 3)
	require.NoError(t, p.enrollments.Assign(exam.ID, 42, exam.MaxAttempts))

	for i := 0; i < 3; i++ {
		result, err := p.intake.Submit(exam.ID, 42, submitReq())
		require.NoError(t, err)
		require.True(t, result.Accepted)
	}

	count, err := p.submissions.CountByExam(exam.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestSubmitCancelledEnrollmentRejected(t *testing.T) {
	p := newTestPipeline(t)
	exam := p.seedOpenExam(t, 1)
	require.NoError(t, p.enrollments.Assign(exam.ID, 42, exam.MaxAttempts))
	require.NoError(t, p.db.Model(&model.Enrollment{}).
		Where("exam_id = ? AND student_id = ?", exam.ID, 42).
		Update("status", model.EnrollmentCancelled).Error)

	result, err := p.intake.Submit(exam.ID, 42, submitReq())
	require.NoError(t, err)
	assert.Equal(t, "not_enrolled", result.Reason)
}

func TestSweepOrphans(t *testing.T) {
	p := newTestPipeline(t)
	exam := p.seedOpenExam(t, 1)

	// 模拟只写了答卷、队列条目丢失的半截事务残留
	orphan := &model.Submission{
		ExamID: exam.ID, StudentID: 42, SubmitTime: time.Now(),
	}
	require.NoError(t, p.db.Create(orphan).Error)
	require.NoError(t, p.db.Model(orphan).
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	requeued, err := p.intake.SweepOrphans(30*time.Second, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)

	item, err := p.queue.FindBySubmissionID(orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueuePending, item.State)

	// 再扫一遍不会重复入队
	requeued, err = p.intake.SweepOrphans(30*time.Second, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, requeued)
}

func TestSweepOrphansRespectsGracePeriod(t *testing.T) {
	p := newTestPipeline(t)
	exam := p.seedOpenExam(t, 1)

	fresh := &model.Submission{
		ExamID: exam.ID, StudentID: 42, SubmitTime: time.Now(),
	}
	require.NoError(t, p.db.Create(fresh).Error)

	// 刚落库的答卷在宽限期内，不算孤儿
	requeued, err := p.intake.SweepOrphans(30*time.Second, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, requeued)
}
