package app

import (
	"exam_center_backend/internal/config"
	"exam_center_backend/internal/middleware"
	"exam_center_backend/internal/model"
	"exam_center_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerTeacherRoutes(authGroup, c)
		a.registerOpsRoutes(authGroup, c)
	}
}

// 学生接口：查看考试、交卷、查成绩
func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	group.GET("/exams", c.exam.ListExams)
	group.GET("/exams/:id", c.exam.GetExam)

	group.POST("/exams/:id/submissions", c.submission.Submit)
	group.GET("/exams/:id/score", c.submission.GetScore)
	group.GET("/exams/:id/result", c.submission.GetResultDetail)
}

// 教师接口：考试生命周期管理与成绩汇总
func (a *App) registerTeacherRoutes(group *gin.RouterGroup, c *controllers) {
	teacher := group.Group("/")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		teacher.POST("/exams", c.exam.CreateExam)
		teacher.POST("/exams/:id/publish", c.exam.PublishExam)
		teacher.POST("/exams/:id/activate", c.exam.ActivateExam)
		teacher.POST("/exams/:id/cancel", c.exam.CancelExam)
		teacher.POST("/exams/:id/complete", c.exam.CompleteExam)

		teacher.POST("/exams/:id/students", c.exam.AssignStudents)
		teacher.GET("/exams/:id/students", c.exam.ListEnrollments)

		teacher.GET("/exams/:id/statistics", c.grading.ExamStatistics)
		teacher.POST("/exams/:id/export", c.grading.ExportResults)
	}
}

// 运维接口：阅卷队列观测与死信处理
func (a *App) registerOpsRoutes(group *gin.RouterGroup, c *controllers) {
	ops := group.Group("/grading")
	ops.Use(middleware.RoleMiddleware(model.Teacher))
	{
		ops.GET("/queue/stats", c.grading.QueueStats)
		ops.GET("/dead-letters", c.grading.ListDeadLetters)
		ops.POST("/dead-letters/:id/requeue", c.grading.RequeueDeadLetter)
		ops.GET("/monitor/ws", c.monitor.HandleWS)
	}
}
