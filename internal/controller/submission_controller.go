package controller

import (
	"errors"

	"exam_center_backend/internal/repository"
	"exam_center_backend/internal/service"
	"exam_center_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type SubmissionController struct {
	IntakeService *service.IntakeService
	SyncService   *service.SyncService
	Submissions   *repository.SubmissionRepository
	Results       *repository.GradedResultRepository
}

func NewSubmissionController(intake *service.IntakeService, sync *service.SyncService,
	submissions *repository.SubmissionRepository, results *repository.GradedResultRepository) *SubmissionController {
	return &SubmissionController{
		IntakeService: intake,
		SyncService:   sync,
		Submissions:   submissions,
		Results:       results,
	}
}

// Submit godoc
// @Summary 提交答卷
// @Description 校验通过即入队返回，阅卷异步完成。被拒绝的提交同步返回原因，绝不重试。
// @Tags 答卷
// @Accept  json
// @Produce  json
// @Param   id path string true "考试ID"
// @Param   body body service.SubmitRequest true "答案"
// @Success 202 {object} util.Response{data=service.SubmitResult} "已受理"
// @Failure 422 {object} util.Response{data=service.SubmitResult} "提交被拒绝"
// @Router /api/exams/{id}/submissions [post]
func (c *SubmissionController) Submit(ctx *gin.Context) {
	var req service.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user := util.GetUserFromContext(ctx)
	result, err := c.IntakeService.Submit(ctx.Param("id"), user.UserID, req)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	if !result.Accepted {
		util.Error(ctx, 422, result.Reason)
		return
	}

	util.Accepted(ctx, result)
}

// GetScore godoc
// @Summary 查询本人成绩
// @Description 阅卷完成前返回 pending_grading，从未提交返回 not_found
// @Tags 答卷
// @Produce  json
// @Param   id path string true "考试ID"
// @Success 200 {object} util.Response{data=service.ScoreView}
// @Router /api/exams/{id}/score [get]
func (c *SubmissionController) GetScore(ctx *gin.Context) {
	examID := ctx.Param("id")
	user := util.GetUserFromContext(ctx)

	hasSubmission, err := c.Submissions.HasSubmission(examID, user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	view, err := c.SyncService.GetScore(examID, user.UserID, hasSubmission)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, view)
}

// GetResultDetail godoc
// @Summary 查询本人阅卷明细
// @Description 返回逐题得分，含待人工复核标记
// @Tags 答卷
// @Produce  json
// @Param   id path string true "考试ID"
// @Success 200 {object} util.Response{data=model.GradedResult}
// @Failure 404 {object} util.Response "尚无阅卷结果"
// @Router /api/exams/{id}/result [get]
func (c *SubmissionController) GetResultDetail(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)

	result, err := c.Results.FindLatestByExamAndStudent(ctx.Param("id"), user.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, result)
}
