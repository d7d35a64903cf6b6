package repository

import (
	"testing"
	"time"

	"exam_center_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func enqueueItem(t *testing.T, repo *QueueRepository, submissionID string) *model.QueueItem {
	t.Helper()
	item := &model.QueueItem{
		SubmissionID: submissionID,
		ExamID:       "exam-1",
		StudentID:    1,
		State:        model.QueuePending,
	}
	require.NoError(t, repo.Enqueue(repo.DB, item))
	return item
}

func TestClaimLeasesPendingItem(t *testing.T) {
	repo := NewQueueRepository(newTestDB(t))
	enqueueItem(t, repo, "sub-1")

	item, err := repo.Claim("worker-a", time.Minute, 5)
	require.NoError(t, err)
	require.NotNil(t, item)

	assert.Equal(t, model.QueueLeased, item.State)
	assert.Equal(t, "worker-a", item.LeasedBy)
	assert.Equal(t, 1, item.AttemptCount)
	require.NotNil(t, item.LeaseExpiry)
	assert.True(t, item.LeaseExpiry.After(time.Now()))
}

func TestClaimEmptyQueue(t *testing.T) {
	repo := NewQueueRepository(newTestDB(t))

	item, err := repo.Claim("worker-a", time.Minute, 5)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestClaimSkipsActiveLease(t *testing.T) {
	repo := NewQueueRepository(newTestDB(t))
	enqueueItem(t, repo, "sub-1")

	first, err := repo.Claim("worker-a", time.Minute, 5)
	require.NoError(t, err)
	require.NotNil(t, first)

	// 租约未过期，第二个 worker 抢不到
	second, err := repo.Claim("worker-b", time.Minute, 5)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestClaimReclaimsExpiredLease(t *testing.T) {
	repo := NewQueueRepository(newTestDB(t))
	item := enqueueItem(t, repo, "sub-1")

	expired := time.Now().Add(-time.Minute)
	require.NoError(t, repo.DB.Model(item).Updates(map[string]interface{}{
		"state":         model.QueueLeased,
		"leased_by":     "worker-crashed",
		"lease_expiry":  expired,
		"attempt_count": 1,
	}).Error)

	claimed, err := repo.Claim("worker-b", time.Minute, 5)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	assert.Equal(t, "worker-b", claimed.LeasedBy)
	assert.Equal(t, 2, claimed.AttemptCount)
}

func TestClaimDeadLettersOverBudget(t *testing.T) {
	repo := NewQueueRepository(newTestDB(t))
	item := enqueueItem(t, repo, "sub-1")

	require.NoError(t, repo.DB.Model(item).Updates(map[string]interface{}{
		"attempt_count": 3,
		"last_error":    "boom",
	}).Error)

	claimed, err := repo.Claim("worker-a", time.Minute, 3)
	require.NoError(t, err)
	assert.Nil(t, claimed)

	var reloaded model.QueueItem
	require.NoError(t, repo.DB.First(&reloaded, item.ID).Error)
	assert.Equal(t, model.QueueDeadLetter, reloaded.State)
	assert.Equal(t, "boom", reloaded.LastError)
}

func TestAckRequiresLeaseOwnership(t *testing.T) {
	repo := NewQueueRepository(newTestDB(t))
	enqueueItem(t, repo, "sub-1")

	item, err := repo.Claim("worker-a", time.Minute, 5)
	require.NoError(t, err)
	require.NotNil(t, item)

	err = repo.Ack(item.ID, "worker-b")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, repo.Ack(item.ID, "worker-a"))

	var reloaded model.QueueItem
	require.NoError(t, repo.DB.First(&reloaded, item.ID).Error)
	assert.Equal(t, model.QueueGraded, reloaded.State)
}

func TestNackReturnsItemToPending(t *testing.T) {
	repo := NewQueueRepository(newTestDB(t))
	enqueueItem(t, repo, "sub-1")

	item, err := repo.Claim("worker-a", time.Minute, 5)
	require.NoError(t, err)

	require.NoError(t, repo.Nack(item.ID, "worker-a", "transient db error", 5))

	var reloaded model.QueueItem
	require.NoError(t, repo.DB.First(&reloaded, item.ID).Error)
	assert.Equal(t, model.QueuePending, reloaded.State)
	assert.Equal(t, "transient db error", reloaded.LastError)
	// 重试计数保留，留给下次 Claim 累加
	assert.Equal(t, 1, reloaded.AttemptCount)
}

func TestNackDeadLettersWhenBudgetExhausted(t *testing.T) {
	repo := NewQueueRepository(newTestDB(t))
	enqueueItem(t, repo, "sub-1")

	item, err := repo.Claim("worker-a", time.Minute, 1)
	require.NoError(t, err)

	require.NoError(t, repo.Nack(item.ID, "worker-a", "still failing", 1))

	var reloaded model.QueueItem
	require.NoError(t, repo.DB.First(&reloaded, item.ID).Error)
	assert.Equal(t, model.QueueDeadLetter, reloaded.State)
}

func TestReapExpiredRequeuesLeases(t *testing.T) {
	repo := NewQueueRepository(newTestDB(t))
	item := enqueueItem(t, repo, "sub-1")
	fresh := enqueueItem(t, repo, "sub-2")

	expired := time.Now().Add(-time.Minute)
	require.NoError(t, repo.DB.Model(item).Updates(map[string]interface{}{
		"state":         model.QueueLeased,
		"leased_by":     "worker-crashed",
		"lease_expiry":  expired,
		"attempt_count": 1,
	}).Error)

	count, err := repo.ReapExpired(5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var reloaded model.QueueItem
	require.NoError(t, repo.DB.First(&reloaded, item.ID).Error)
	assert.Equal(t, model.QueuePending, reloaded.State)
	assert.Empty(t, reloaded.LeasedBy)

	// 未租用的条目不受影响。目标结构体必须是新的：
	// 复用reloaded会把上一条的主键带进WHERE条件
	var untouched model.QueueItem
	require.NoError(t, repo.DB.First(&untouched, fresh.ID).Error)
	assert.Equal(t, model.QueuePending, untouched.State)
}

func TestReapExpiredDeadLettersOverBudget(t *testing.T) {
	repo := NewQueueRepository(newTestDB(t))
	item := enqueueItem(t, repo, "sub-1")

	expired := time.Now().Add(-time.Minute)
	require.NoError(t, repo.DB.Model(item).Updates(map[string]interface{}{
		"state":         model.QueueLeased,
		"leased_by":     "worker-crashed",
		"lease_expiry":  expired,
		"attempt_count": 5,
	}).Error)

	_, err := repo.ReapExpired(5)
	require.NoError(t, err)

	var reloaded model.QueueItem
	require.NoError(t, repo.DB.First(&reloaded, item.ID).Error)
	assert.Equal(t, model.QueueDeadLetter, reloaded.State)
}

func TestRequeueDeadLetterResetsAttempts(t *testing.T) {
	repo := NewQueueRepository(newTestDB(t))
	item := enqueueItem(t, repo, "sub-1")

	require.NoError(t, repo.DB.Model(item).Updates(map[string]interface{}{
		"state":         model.QueueDeadLetter,
		"attempt_count": 5,
		"last_error":    "answer key missing",
	}).Error)

	ok, err := repo.RequeueDeadLetter(item.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	var reloaded model.QueueItem
	require.NoError(t, repo.DB.First(&reloaded, item.ID).Error)
	assert.Equal(t, model.QueuePending, reloaded.State)
	assert.Equal(t, 0, reloaded.AttemptCount)
	assert.Empty(t, reloaded.LastError)
}

func TestRequeueDeadLetterRejectsLiveItems(t *testing.T) {
	repo := NewQueueRepository(newTestDB(t))
	item := enqueueItem(t, repo, "sub-1")

	ok, err := repo.RequeueDeadLetter(item.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatsCountsByState(t *testing.T) {
	repo := NewQueueRepository(newTestDB(t))
	enqueueItem(t, repo, "sub-1")
	enqueueItem(t, repo, "sub-2")
	item := enqueueItem(t, repo, "sub-3")
	require.NoError(t, repo.DB.Model(item).Update("state", model.QueueDeadLetter).Error)

	stats, err := repo.Stats()
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats[model.QueuePending])
	assert.Equal(t, int64(1), stats[model.QueueDeadLetter])
	assert.Equal(t, int64(0), stats[model.QueueLeased])
	assert.Equal(t, int64(0), stats[model.QueueGraded])
}
