package controller

import (
	"errors"
	"strconv"
	"time"

	"exam_center_backend/internal/model"
	"exam_center_backend/internal/service"
	"exam_center_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	ExamService *service.ExamService
}

func NewExamController(examService *service.ExamService) *ExamController {
	return &ExamController{ExamService: examService}
}

// CreateExam godoc
// @Summary 创建考试
// @Description 教师基于已有试卷创建考试，初始状态为 draft
// @Tags 考试
// @Accept  json
// @Produce  json
// @Param   body body service.CreateExamRequest true "考试信息"
// @Success 201 {object} util.Response{data=model.Exam} "创建成功"
// @Failure 400 {object} util.Response "考试参数不合法"
// @Router /api/exams [post]
func (c *ExamController) CreateExam(ctx *gin.Context) {
	var req service.CreateExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user := util.GetUserFromContext(ctx)
	exam, err := c.ExamService.CreateExam(user.UserID, req)
	if err != nil {
		if errors.Is(err, util.ErrInvalidExam) {
			util.BadRequest(ctx, "考试时长、总分必须为正，且开始时间须早于结束时间")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, exam)
}

// GetExam godoc
// @Summary 查询考试详情
// @Tags 考试
// @Produce  json
// @Param   id path string true "考试ID"
// @Success 200 {object} util.Response{data=object}
// @Failure 404 {object} util.Response "考试不存在"
// @Router /api/exams/{id} [get]
func (c *ExamController) GetExam(ctx *gin.Context) {
	exam, err := c.ExamService.GetExam(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrExamNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	// 显式状态之外叠加窗口推导的有效状态
	util.Success(ctx, gin.H{
		"exam":            exam,
		"effectiveStatus": c.ExamService.EffectiveStatus(exam, time.Now()),
	})
}

// ListExams godoc
// @Summary 分页查询考试列表
// @Tags 考试
// @Produce  json
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Param   status query string false "状态过滤"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/exams [get]
func (c *ExamController) ListExams(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	status := model.ExamStatus(ctx.Query("status"))

	exams, total, err := c.ExamService.ListExams(page, limit, status)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  exams,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// PublishExam godoc
// @Summary 发布考试
// @Description draft -> published，发布后学生可见
// @Tags 考试
// @Produce  json
// @Param   id path string true "考试ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response "当前状态不允许发布"
// @Router /api/exams/{id}/publish [post]
func (c *ExamController) PublishExam(ctx *gin.Context) {
	c.transition(ctx, c.ExamService.PublishExam)
}

// ActivateExam godoc
// @Summary 手动激活考试
// @Tags 考试
// @Produce  json
// @Param   id path string true "考试ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response "当前状态不允许激活"
// @Router /api/exams/{id}/activate [post]
func (c *ExamController) ActivateExam(ctx *gin.Context) {
	c.transition(ctx, c.ExamService.ActivateExam)
}

// CancelExam godoc
// @Summary 取消考试
// @Tags 考试
// @Produce  json
// @Param   id path string true "考试ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response "已结束的考试不能取消"
// @Router /api/exams/{id}/cancel [post]
func (c *ExamController) CancelExam(ctx *gin.Context) {
	c.transition(ctx, c.ExamService.CancelExam)
}

// CompleteExam godoc
// @Summary 结束考试
// @Tags 考试
// @Produce  json
// @Param   id path string true "考试ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response "当前状态不允许结束"
// @Router /api/exams/{id}/complete [post]
func (c *ExamController) CompleteExam(ctx *gin.Context) {
	c.transition(ctx, c.ExamService.CompleteExam)
}

func (c *ExamController) transition(ctx *gin.Context, fn func(examID string) error) {
	err := fn(ctx.Param("id"))
	switch {
	case err == nil:
		util.Success(ctx, nil)
	case errors.Is(err, util.ErrExamNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrInvalidTransition), errors.Is(err, util.ErrWindowNeverOpened):
		util.Error(ctx, 409, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// AssignStudentsRequest 分配学生请求
type AssignStudentsRequest struct {
	StudentIDs []uint `json:"studentIds" binding:"required,min=1"`
}

// AssignStudents godoc
// @Summary 为考试分配学生
// @Description 幂等操作：重复分配同一学生不会重置其答题次数
// @Tags 考试
// @Accept  json
// @Produce  json
// @Param   id path string true "考试ID"
// @Param   body body AssignStudentsRequest true "学生ID列表"
// @Success 200 {object} util.Response
// @Router /api/exams/{id}/students [post]
func (c *ExamController) AssignStudents(ctx *gin.Context) {
	var req AssignStudentsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	err := c.ExamService.AssignStudents(ctx.Param("id"), req.StudentIDs)
	if err != nil {
		if errors.Is(err, util.ErrExamNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, nil)
}

// ListEnrollments godoc
// @Summary 查询考试的学生分配情况
// @Tags 考试
// @Produce  json
// @Param   id path string true "考试ID"
// @Success 200 {object} util.Response{data=[]model.Enrollment}
// @Router /api/exams/{id}/students [get]
func (c *ExamController) ListEnrollments(ctx *gin.Context) {
	enrollments, err := c.ExamService.ListEnrollments(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrExamNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, enrollments)
}
