package repository

import (
	"testing"

	"exam_center_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignIsIdempotent(t *testing.T) {
	repo := NewEnrollmentRepository(newTestDB(t))

	require.NoError(t, repo.Assign("exam-1", 42, 3))

	// 消耗一次后重复分配，不应重置次数
	ok, err := repo.ConsumeAttempt(repo.DB, "exam-1", 42)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.Assign("exam-1", 42, 3))

	enrollment, err := repo.FindByExamAndStudent("exam-1", 42)
	require.NoError(t, err)
	assert.Equal(t, 1, enrollment.Attempts)
	assert.Equal(t, model.EnrollmentStarted, enrollment.Status)
}

func TestConsumeAttemptStopsAtBudget(t *testing.T) {
	repo := NewEnrollmentRepository(newTestDB(t))
	require.NoError(t, repo.Assign("exam-1", 42, 2))

	for i := 0; i < 2; i++ {
		ok, err := repo.ConsumeAttempt(repo.DB, "exam-1", 42)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := repo.ConsumeAttempt(repo.DB, "exam-1", 42)
	require.NoError(t, err)
	assert.False(t, ok)

	enrollment, err := repo.FindByExamAndStudent("exam-1", 42)
	require.NoError(t, err)
	assert.Equal(t, 2, enrollment.Attempts)
}

func TestMarkCompletedIfExhausted(t *testing.T) {
	repo := NewEnrollmentRepository(newTestDB(t))
	require.NoError(t, repo.Assign("exam-1", 42, 1))

	// 次数未用尽时不改状态
	require.NoError(t, repo.MarkCompletedIfExhausted(repo.DB, "exam-1", 42))
	enrollment, err := repo.FindByExamAndStudent("exam-1", 42)
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentAssigned, enrollment.Status)

	_, err = repo.ConsumeAttempt(repo.DB, "exam-1", 42)
	require.NoError(t, err)
	require.NoError(t, repo.MarkCompletedIfExhausted(repo.DB, "exam-1", 42))

	enrollment, err = repo.FindByExamAndStudent("exam-1", 42)
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentCompleted, enrollment.Status)
}

func TestCountActiveExcludesExhausted(t *testing.T) {
	repo := NewEnrollmentRepository(newTestDB(t))
	require.NoError(t, repo.Assign("exam-1", 1, 1))
	require.NoError(t, repo.Assign("exam-1", 2, 1))

	_, err := repo.ConsumeAttempt(repo.DB, "exam-1", 1)
	require.NoError(t, err)

	count, err := repo.CountActive("exam-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
