package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exam_center_backend/internal/config"
	"exam_center_backend/internal/controller"
	"exam_center_backend/internal/repository"
	"exam_center_backend/internal/service"
	"exam_center_backend/pkg/database"
	"exam_center_backend/pkg/logger"
	"exam_center_backend/pkg/monitoring"
	"exam_center_backend/pkg/security"
	"exam_center_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	repos    *repositories
	services *services

	bgCtx    context.Context
	bgCancel context.CancelFunc
}

type repositories struct {
	exam         *repository.ExamRepository
	enrollment   *repository.EnrollmentRepository
	submission   *repository.SubmissionRepository
	queue        *repository.QueueRepository
	result       *repository.GradedResultRepository
	score        *repository.ScoreRecordRepository
	questionBank *repository.QuestionBankRepository
}

type services struct {
	exam       *service.ExamService
	intake     *service.IntakeService
	grader     *service.GraderService
	sync       *service.SyncService
	archive    *service.ArchiveService
	monitorHub *service.MonitorHub
}

type controllers struct {
	exam       *controller.ExamController
	submission *controller.SubmissionController
	grading    *controller.GradingController
	monitor    *controller.MonitorController
	health     *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		exam:         repository.NewExamRepository(db),
		enrollment:   repository.NewEnrollmentRepository(db),
		submission:   repository.NewSubmissionRepository(db),
		queue:        repository.NewQueueRepository(db),
		result:       repository.NewGradedResultRepository(db),
		score:        repository.NewScoreRecordRepository(db),
		questionBank: repository.NewQuestionBankRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*services, error) {
	s := &services{}

	s.exam = service.NewExamService(repos.exam, repos.enrollment, repos.submission, rdb)
	s.intake = service.NewIntakeService(db, s.exam, repos.enrollment, repos.submission, repos.queue)
	s.grader = service.NewGraderService(
		repos.queue,
		repos.submission,
		repos.exam,
		repos.questionBank,
		repos.result,
		rdb,
		cfg.Grading.Workers,
		time.Duration(cfg.Grading.LeaseSeconds)*time.Second,
		cfg.Grading.RetryBudget,
		cfg.Grading.PollInterval,
	)
	s.sync = service.NewSyncService(repos.result, repos.score, rdb, cfg.Sync)

	archive, err := service.NewArchiveService(cfg, repos.result)
	if err != nil {
		return nil, err
	}
	s.archive = archive

	s.monitorHub = service.NewMonitorHub(rdb)

	return s, nil
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		exam:       controller.NewExamController(s.exam),
		submission: controller.NewSubmissionController(s.intake, s.sync, repos.submission, repos.result),
		grading:    controller.NewGradingController(repos.queue, s.sync, s.archive),
		monitor:    controller.NewMonitorController(s.monitorHub),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 启动阅卷管线的常驻任务：
// worker 池、成绩发布、过期租约回收、孤儿答卷扫描、监控推送。
func (a *App) startBackgroundTasks(s *services, repos *repositories, cfg *config.Config) {
	ctx := a.bgCtx

	s.grader.Start(ctx)
	go s.sync.Run(ctx)
	go s.monitorHub.Run()

	go func() {
		ticker := time.NewTicker(cfg.Grading.ReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reclaimed, err := repos.queue.ReapExpired(cfg.Grading.RetryBudget)
				if err != nil {
					logger.Log.Error("lease reaper error", zap.Error(err))
					continue
				}
				if reclaimed > 0 {
					logger.Log.Warn("reclaimed expired grading leases", zap.Int64("count", reclaimed))
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.Grading.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.intake.SweepOrphans(cfg.Grading.SweepGrace, 100); err != nil {
					logger.Log.Error("orphan sweep error", zap.Error(err))
				}
			}
		}
	}()

	// 队列深度定期上报
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats, err := repos.queue.Stats()
				if err != nil {
					continue
				}
				for state, count := range stats {
					monitoring.QueueDepth.WithLabelValues(string(state)).Set(float64(count))
				}
			}
		}
	}()
}

// ReloadConfig 配置热更新回调，目前只有等级阈值支持在线调整
func (a *App) ReloadConfig(cfg *config.Config) {
	a.services.sync.UpdateThresholds(cfg.Sync.Thresholds)
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	// InitDB 内部已跑过Migrate
	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	app := &App{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}

	repos := app.initRepositories(db)
	app.repos = repos
	svcs, err := app.initServices(repos, cfg, db, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	app.services = svcs
	ctrls := app.initControllers(svcs, repos, db, rdb)

	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("exam-center", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, ctrls, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/archives", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(svcs, repos, cfg)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 先停止接收新请求，再等 worker 把手里的条目处理完。
	// 租约机制保证即使这里被强杀，未完成条目也会被回收重投。
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	a.bgCancel()
	a.services.grader.Wait()
	a.services.monitorHub.Stop()

	logger.Log.Sync()
	log.Println("Server exiting")
}
