package controller

import (
	"strconv"

	"exam_center_backend/internal/repository"
	"exam_center_backend/internal/service"
	"exam_center_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// GradingController 暴露阅卷管线的运维端点：队列状态、死信处理、成绩汇总与归档
type GradingController struct {
	Queue          *repository.QueueRepository
	SyncService    *service.SyncService
	ArchiveService *service.ArchiveService
}

func NewGradingController(queue *repository.QueueRepository, sync *service.SyncService,
	archive *service.ArchiveService) *GradingController {
	return &GradingController{Queue: queue, SyncService: sync, ArchiveService: archive}
}

// QueueStats godoc
// @Summary 阅卷队列各状态计数
// @Tags 阅卷运维
// @Produce  json
// @Success 200 {object} util.Response{data=object}
// @Router /api/grading/queue/stats [get]
func (c *GradingController) QueueStats(ctx *gin.Context) {
	stats, err := c.Queue.Stats()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, stats)
}

// ListDeadLetters godoc
// @Summary 分页查询死信条目
// @Description 重试次数耗尽的阅卷任务，带最后一次失败原因
// @Tags 阅卷运维
// @Produce  json
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/grading/dead-letters [get]
func (c *GradingController) ListDeadLetters(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	items, total, err := c.Queue.ListDeadLetters(page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  items,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// RequeueDeadLetter godoc
// @Summary 重新入队死信条目
// @Description 重置重试计数后回到 pending，供修复答案键等场景后人工触发
// @Tags 阅卷运维
// @Produce  json
// @Param   id path int true "队列条目ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response "死信条目不存在"
// @Router /api/grading/dead-letters/{id}/requeue [post]
func (c *GradingController) RequeueDeadLetter(ctx *gin.Context) {
	itemID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "invalid queue item id")
		return
	}

	ok, err := c.Queue.RequeueDeadLetter(uint(itemID))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if !ok {
		util.NotFound(ctx)
		return
	}

	util.Success(ctx, nil)
}

// ExamStatistics godoc
// @Summary 考试成绩统计
// @Description 均分、最高最低分、及格率与各档位人数
// @Tags 阅卷运维
// @Produce  json
// @Param   id path string true "考试ID"
// @Success 200 {object} util.Response{data=service.ExamStatistics}
// @Router /api/exams/{id}/statistics [get]
func (c *GradingController) ExamStatistics(ctx *gin.Context) {
	stats, err := c.SyncService.Statistics(ctx.Param("id"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, stats)
}

// ExportResults godoc
// @Summary 归档导出考试阅卷结果
// @Description 生成 JSON 归档上传到对象存储，返回下载地址
// @Tags 阅卷运维
// @Produce  json
// @Param   id path string true "考试ID"
// @Success 200 {object} util.Response{data=object}
// @Router /api/exams/{id}/export [post]
func (c *GradingController) ExportResults(ctx *gin.Context) {
	url, err := c.ArchiveService.ExportExamResults(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"url": url})
}
