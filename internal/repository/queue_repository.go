package repository

import (
	"time"

	"exam_center_backend/internal/model"

	"gorm.io/gorm"
)

// QueueRepository 持久化阅卷队列。
// 所有权争用只发生在 Claim：用带状态守卫的单条 UPDATE 实现原子抢占，
// RowsAffected==1 的 worker 才算抢到，同一条目不可能同时被两个 worker 租用。
type QueueRepository struct {
	DB *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{DB: db}
}

func (r *QueueRepository) Enqueue(tx *gorm.DB, item *model.QueueItem) error {
	return tx.Create(item).Error
}

func (r *QueueRepository) FindBySubmissionID(submissionID string) (*model.QueueItem, error) {
	var item model.QueueItem
	err := r.DB.Where("submission_id = ?", submissionID).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Claim 抢占一个可处理的条目：pending，或租约已过期的 leased。
// 每次成功抢占 attempt_count 加一；已达重试预算的条目改判 dead_letter，
// 绝不静默丢弃。没有可处理条目时返回 (nil, nil)。
func (r *QueueRepository) Claim(workerID string, leaseDuration time.Duration, retryBudget int) (*model.QueueItem, error) {
	now := time.Now()

	// 候选集很小（单页），逐条尝试守卫更新，失败说明被别的 worker 抢走，换下一条
	var candidates []model.QueueItem
	err := r.DB.
		Where("state = ? OR (state = ? AND lease_expiry < ?)",
			model.QueuePending, model.QueueLeased, now).
		Order("created_at").
		Limit(10).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		if c.AttemptCount >= retryBudget {
			// 超限：改判 dead_letter 而不是再次租用
			r.DB.Model(&model.QueueItem{}).
				Where("id = ? AND state = ? AND attempt_count = ?", c.ID, c.State, c.AttemptCount).
				Updates(map[string]interface{}{
					"state":      model.QueueDeadLetter,
					"leased_by":  "",
					"last_error": c.LastError,
				})
			continue
		}

		expiry := now.Add(leaseDuration)
		result := r.DB.Model(&model.QueueItem{}).
			Where("id = ? AND state = ? AND attempt_count = ?", c.ID, c.State, c.AttemptCount).
			Updates(map[string]interface{}{
				"state":         model.QueueLeased,
				"leased_by":     workerID,
				"lease_expiry":  expiry,
				"attempt_count": c.AttemptCount + 1,
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 1 {
			c.State = model.QueueLeased
			c.LeasedBy = workerID
			c.LeaseExpiry = &expiry
			c.AttemptCount++
			return &c, nil
		}
	}

	return nil, nil
}

// Ack 确认处理完成，条目离开活动队列
func (r *QueueRepository) Ack(itemID uint, workerID string) error {
	result := r.DB.Model(&model.QueueItem{}).
		Where("id = ? AND state = ? AND leased_by = ?", itemID, model.QueueLeased, workerID).
		Updates(map[string]interface{}{
			"state":        model.QueueGraded,
			"lease_expiry": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Nack 立即退回队列；重试预算耗尽则进 dead_letter
func (r *QueueRepository) Nack(itemID uint, workerID string, reason string, retryBudget int) error {
	var item model.QueueItem
	if err := r.DB.First(&item, itemID).Error; err != nil {
		return err
	}

	next := model.QueuePending
	if item.AttemptCount >= retryBudget {
		next = model.QueueDeadLetter
	}

	return r.DB.Model(&model.QueueItem{}).
		Where("id = ? AND state = ? AND leased_by = ?", itemID, model.QueueLeased, workerID).
		Updates(map[string]interface{}{
			"state":        next,
			"leased_by":    "",
			"lease_expiry": nil,
			"last_error":   reason,
		}).Error
}

// ReapExpired 把租约过期未确认的条目退回 pending（worker 崩溃恢复路径）。
// 超过重试预算的直接进 dead_letter。返回退回的条目数。
func (r *QueueRepository) ReapExpired(retryBudget int) (int64, error) {
	now := time.Now()

	dead := r.DB.Model(&model.QueueItem{}).
		Where("state = ? AND lease_expiry < ? AND attempt_count >= ?",
			model.QueueLeased, now, retryBudget).
		Updates(map[string]interface{}{
			"state":      model.QueueDeadLetter,
			"leased_by":  "",
			"last_error": "lease expired after retry budget exhausted",
		})
	if dead.Error != nil {
		return 0, dead.Error
	}

	requeued := r.DB.Model(&model.QueueItem{}).
		Where("state = ? AND lease_expiry < ?", model.QueueLeased, now).
		Updates(map[string]interface{}{
			"state":        model.QueuePending,
			"leased_by":    "",
			"lease_expiry": nil,
		})
	return requeued.RowsAffected, requeued.Error
}

// ListDeadLetters 运维视角的死信列表
func (r *QueueRepository) ListDeadLetters(page, limit int) ([]model.QueueItem, int64, error) {
	var items []model.QueueItem
	var total int64

	query := r.DB.Model(&model.QueueItem{}).Where("state = ?", model.QueueDeadLetter)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("updated_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&items).Error
	return items, total, err
}

// RequeueDeadLetter 死信重新入队，重置重试计数。这是死信的唯一出路。
func (r *QueueRepository) RequeueDeadLetter(itemID uint) (bool, error) {
	result := r.DB.Model(&model.QueueItem{}).
		Where("id = ? AND state = ?", itemID, model.QueueDeadLetter).
		Updates(map[string]interface{}{
			"state":         model.QueuePending,
			"attempt_count": 0,
			"leased_by":     "",
			"lease_expiry":  nil,
			"last_error":    "",
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Stats 各状态条目数
func (r *QueueRepository) Stats() (map[model.QueueState]int64, error) {
	type row struct {
		State model.QueueState
		Count int64
	}
	var rows []row
	err := r.DB.Model(&model.QueueItem{}).
		Select("state, COUNT(*) AS count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := map[model.QueueState]int64{
		model.QueuePending:    0,
		model.QueueLeased:     0,
		model.QueueGraded:     0,
		model.QueueDeadLetter: 0,
	}
	for _, r := range rows {
		stats[r.State] = r.Count
	}
	return stats, nil
}
