package service

import (
	"encoding/json"
	"testing"
	"time"

	"exam_center_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGrader(p *testPipeline) *GraderService {
	return NewGraderService(p.queue, p.submissions, p.exams, p.bank, p.results,
		nil, 1, time.Minute, 3, time.Millisecond)
}

// submitAndClaim 走完整入口后抢占队列条目，返回 (submissionID, item)
func submitAndClaim(t *testing.T, p *testPipeline, exam *model.Exam, studentID uint,
	answers map[string]json.RawMessage) (string, *model.QueueItem) {
	t.Helper()
	require.NoError(t, p.enrollments.Assign(exam.ID, studentID, exam.MaxAttempts))

	result, err := p.intake.Submit(exam.ID, studentID, SubmitRequest{Answers: answers})
	require.NoError(t, err)
	require.True(t, result.Accepted)

	item, err := p.queue.Claim("grader-test", time.Minute, 3)
	require.NoError(t, err)
	require.NotNil(t, item)
	require.Equal(t, result.SubmissionID, item.SubmissionID)
	return result.SubmissionID, item
}

func TestProcessGradesSubmission(t *testing.T) {
	p := newTestPipeline(t)
	p.seedPaper(t)
	exam := p.seedOpenExam(t, 1)
	grader := newTestGrader(p)

	// 第10题答对得30分，第11题答错，第12题主观题待复核
	subID, item := submitAndClaim(t, p, exam, 42, map[string]json.RawMessage{
		"10": json.RawMessage(`"A"`),
		"11": json.RawMessage(`"错"`),
		"12": json.RawMessage(`"论述题作答"`),
	})

	grader.process("grader-test", item)

	result, err := p.results.FindBySubmissionID(subID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, result.ObtainedScore)
	assert.Equal(t, 100.0, result.TotalScore)
	assert.True(t, result.AutoGraded)
	assert.True(t, result.NeedsReview)
	assert.False(t, result.Synced)

	details, err := result.DecodeDetails()
	require.NoError(t, err)
	require.Len(t, details, 3)
	// 明细按题号排序，逐题保留学生答案与标准答案
	assert.Equal(t, "10", details[0].QuestionID)
	assert.Equal(t, 30.0, details[0].Score)
	assert.Equal(t, "11", details[1].QuestionID)
	assert.Equal(t, 0.0, details[1].Score)
	assert.Equal(t, "12", details[2].QuestionID)
	assert.True(t, details[2].NeedsReview)

	// 条目确认完成
	reloaded, err := p.queue.FindBySubmissionID(subID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueGraded, reloaded.State)
}

func TestProcessGradesObjectiveOnlyCleanly(t *testing.T) {
	p := newTestPipeline(t)
	require.NoError(t, p.db.Create(&model.Paper{ID: 1, Name: "选择卷", TotalScore: 60}).Error)
	require.NoError(t, p.db.Create(&[]model.Question{
		{ID: 10, QuestionType: "single_choice", CorrectAnswer: "A", Score: 30},
		{ID: 11, QuestionType: "true_false", CorrectAnswer: "true", Score: 30},
	}).Error)
	require.NoError(t, p.db.Create(&[]model.PaperQuestion{
		{PaperID: 1, QuestionID: 10}, {PaperID: 1, QuestionID: 11},
	}).Error)
	exam := p.seedOpenExam(t, 1)
	grader := newTestGrader(p)

	subID, item := submitAndClaim(t, p, exam, 42, map[string]json.RawMessage{
		"10": json.RawMessage(`"a"`),
		"11": json.RawMessage(`"是"`),
	})

	grader.process("grader-test", item)

	result, err := p.results.FindBySubmissionID(subID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, result.ObtainedScore)
	assert.False(t, result.NeedsReview)
}

func TestProcessMissingAnswerKey(t *testing.T) {
	p := newTestPipeline(t)
	// 不建试卷：答案键永久缺失
	exam := p.seedOpenExam(t, 1)
	grader := newTestGrader(p)

	subID, item := submitAndClaim(t, p, exam, 42, map[string]json.RawMessage{
		"10": json.RawMessage(`"A"`),
	})

	grader.process("grader-test", item)

	// 永久性缺失不重试：照样出结果，显式标记复核而不是编造分数
	result, err := p.results.FindBySubmissionID(subID)
	require.NoError(t, err)
	assert.True(t, result.NeedsReview)
	assert.False(t, result.AutoGraded)
	assert.Equal(t, 0.0, result.ObtainedScore)

	reloaded, err := p.queue.FindBySubmissionID(subID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueGraded, reloaded.State)
	assert.Equal(t, 1, reloaded.AttemptCount)
}

func TestProcessRedeliveryOverwrites(t *testing.T) {
	p := newTestPipeline(t)
	p.seedPaper(t)
	exam := p.seedOpenExam(t, 1)
	grader := newTestGrader(p)

	subID, item := submitAndClaim(t, p, exam, 42, map[string]json.RawMessage{
		"10": json.RawMessage(`"A"`),
	})
	grader.process("grader-test", item)

	// 模拟租约过期后重投：同一条目再次被处理
	require.NoError(t, p.db.Model(&model.QueueItem{}).Where("id = ?", item.ID).
		Updates(map[string]interface{}{"state": model.QueuePending, "leased_by": ""}).Error)
	item2, err := p.queue.Claim("grader-other", time.Minute, 3)
	require.NoError(t, err)
	require.NotNil(t, item2)
	grader.process("grader-other", item2)

	var count int64
	require.NoError(t, p.db.Model(&model.GradedResult{}).
		Where("submission_id = ?", subID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	result, err := p.results.FindBySubmissionID(subID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, result.ObtainedScore)
}

func TestProcessTransientFailureNacks(t *testing.T) {
	p := newTestPipeline(t)
	grader := newTestGrader(p)

	// 队列条目指向不存在的答卷（加载失败按瞬时错误处理）
	item := &model.QueueItem{
		SubmissionID: "missing-sub", ExamID: "exam-1", StudentID: 1,
		State: model.QueuePending,
	}
	require.NoError(t, p.queue.Enqueue(p.db, item))

	claimed, err := p.queue.Claim("grader-test", time.Minute, 3)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	grader.process("grader-test", claimed)

	reloaded, err := p.queue.FindBySubmissionID("missing-sub")
	require.NoError(t, err)
	assert.Equal(t, model.QueuePending, reloaded.State)
	assert.Contains(t, reloaded.LastError, "load submission")
}
