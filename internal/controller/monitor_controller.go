package controller

import (
	"exam_center_backend/internal/service"
	"exam_center_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type MonitorController struct {
	Hub *service.MonitorHub
}

func NewMonitorController(hub *service.MonitorHub) *MonitorController {
	return &MonitorController{Hub: hub}
}

// HandleWS godoc
// @Summary 阅卷监控 WebSocket
// @Description 实时推送阅卷完成事件与考试注册表事件
// @Tags 阅卷运维
// @Security ApiKeyAuth
// @Param   token query string true "JWT Token"
// @Success 101 {string} string "Switching Protocols"
// @Router /api/grading/monitor/ws [get]
func (ctrl *MonitorController) HandleWS(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}
	ctrl.Hub.ServeWS(c.Writer, c.Request)
}
