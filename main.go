// @title 考试中心后端 API
// @version 1.0
// @description 考试注册与自动阅卷管线的后端服务。
// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"flag"
	"log"

	"exam_center_backend/internal/app"
	"exam_center_backend/internal/config"
	"exam_center_backend/pkg/configwatcher"
	"exam_center_backend/pkg/logger"
)

func main() {
	configDir := flag.String("config", "configs", "配置文件目录")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	// 等级阈值等配置支持热更新
	go configwatcher.WatchConfig(*configDir+"/config.yaml", cfg, func(newCfg interface{}) {
		if c, ok := newCfg.(*config.Config); ok {
			application.ReloadConfig(c)
		}
	})

	application.Run()
}
