package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	appcatalog "github.com/xiebiao/elibrary/internal/application/catalog"
	"github.com/xiebiao/elibrary/internal/application/circulation"
	appreconcile "github.com/xiebiao/elibrary/internal/application/reconcile"
	apprequest "github.com/xiebiao/elibrary/internal/application/request"
	appreservation "github.com/xiebiao/elibrary/internal/application/reservation"
	appuser "github.com/xiebiao/elibrary/internal/application/user"
	domainnotification "github.com/xiebiao/elibrary/internal/domain/notification"
	"github.com/xiebiao/elibrary/internal/domain/user"
	"github.com/xiebiao/elibrary/internal/infrastructure/config"
	"github.com/xiebiao/elibrary/internal/infrastructure/notification"
	"github.com/xiebiao/elibrary/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/elibrary/internal/infrastructure/persistence/redis"
	"github.com/xiebiao/elibrary/internal/interface/http/handler"
	"github.com/xiebiao/elibrary/internal/interface/http/middleware"
	"github.com/xiebiao/elibrary/pkg/jwt"
	"github.com/xiebiao/elibrary/pkg/metrics"
	"github.com/xiebiao/elibrary/pkg/mq"
	"github.com/xiebiao/elibrary/pkg/response"
	"github.com/xiebiao/elibrary/pkg/tracing"
)

// main 主程序入口
// 说明：手动依赖注入（wire.go提供编译期生成的变体）
func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	fmt.Printf("✓ 配置加载成功\n")
	fmt.Printf("  - 服务端口: %d\n", cfg.Server.Port)
	fmt.Printf("  - 运行模式: %s\n", cfg.Server.Mode)
	fmt.Printf("  - 数据库: %s:%d/%s\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
	fmt.Printf("  - Redis: %s\n", cfg.Redis.Addr())
	fmt.Printf("  - 借期/续借: %d天,最多%d次\n", cfg.Circulation.LoanPeriodDays, cfg.Circulation.MaxRenewals)

	// 2. 初始化指标与追踪
	metrics.InitMetrics()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer("elibrary-api", cfg.Tracing.Endpoint)
		if err != nil {
			log.Fatalf("初始化追踪失败: %v", err)
		}
		defer shutdown(context.Background())
	}

	// 3. 初始化数据库与Redis连接
	db, err := mysql.NewDB(cfg)
	if err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}

	redisClient, err := redis.NewClient(cfg)
	if err != nil {
		log.Fatalf("初始化Redis失败: %v", err)
	}

	// 4. 依赖注入（手动组装）
	// Repository ← Service/Engine ← Handler

	// 基础设施层
	userRepo := mysql.NewUserRepository(db)
	bookRepo := mysql.NewBookRepository(db)
	loanRepo := mysql.NewLoanRepository(db)
	reservationRepo := mysql.NewReservationRepository(db)
	requestRepo := mysql.NewRequestRepository(db)
	txManager := mysql.NewTxManager(db, cfg.Circulation.TxMaxRetries)
	sessionStore := redis.NewSessionStore(redisClient)
	catalogCache := redis.NewCatalogCache(redisClient)
	jwtManager := jwt.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpire,
		cfg.JWT.RefreshTokenExpire,
	)

	// 通知发布器：MQ未启用时退化为日志
	var notifier domainnotification.Notifier
	if cfg.MQ.Enabled {
		publisher, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange, "topic")
		if err != nil {
			log.Fatalf("初始化消息队列失败: %v", err)
		}
		defer publisher.Close()
		notifier = notification.NewMQNotifier(publisher)
	} else {
		notifier = notification.NewLogNotifier()
	}

	// 领域层
	userService := user.NewService(userRepo)

	// 应用层
	// 预约服务先建:流通引擎通过Waker接口依赖它(归还唤醒、凭预约取书)
	reservationService := appreservation.NewService(reservationRepo, userRepo, bookRepo, txManager,
		notifier, cfg.Circulation)
	engine := circulation.NewEngine(userRepo, bookRepo, loanRepo, txManager,
		reservationService, notifier, catalogCache, cfg.Circulation)
	requestService := apprequest.NewService(requestRepo, userRepo, bookRepo, loanRepo,
		engine, txManager, notifier, cfg.Circulation)
	catalogService := appcatalog.NewService(bookRepo, txManager, catalogCache)
	reconcileService := appreconcile.NewService(loanRepo, reservationRepo, userRepo, bookRepo,
		txManager, reservationService, notifier, cfg.Circulation)

	registerUseCase := appuser.NewRegisterUseCase(userService)
	loginUseCase := appuser.NewLoginUseCase(userService, jwtManager, sessionStore)
	logoutUseCase := appuser.NewLogoutUseCase(sessionStore)

	// 接口层
	userHandler := handler.NewUserHandler(registerUseCase, loginUseCase, logoutUseCase)
	bookHandler := handler.NewBookHandler(catalogService)
	loanHandler := handler.NewLoanHandler(engine)
	reservationHandler := handler.NewReservationHandler(reservationService)
	requestHandler := handler.NewRequestHandler(requestService)
	adminHandler := handler.NewAdminHandler(reconcileService)
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, sessionStore)

	// 5. 初始化Gin引擎
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(middleware.Metrics())

	// 6. 注册路由
	registerRoutes(r, userHandler, bookHandler, loanHandler,
		reservationHandler, requestHandler, adminHandler, authMiddleware)

	// 7. 启动服务
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	fmt.Printf("\n🚀 服务启动成功！\n")
	fmt.Printf("   访问地址: http://localhost%s\n", addr)
	fmt.Printf("   健康检查: http://localhost%s/ping\n", addr)
	fmt.Printf("   指标端点: http://localhost%s/metrics\n", addr)
	fmt.Printf("   API文档:  http://localhost%s/swagger/index.html\n", addr)
	fmt.Printf("\n按Ctrl+C停止服务\n\n")

	if err := r.Run(addr); err != nil {
		log.Fatalf("启动服务失败: %v", err)
	}
}

// registerRoutes 注册路由
func registerRoutes(
	r *gin.Engine,
	userHandler *handler.UserHandler,
	bookHandler *handler.BookHandler,
	loanHandler *handler.LoanHandler,
	reservationHandler *handler.ReservationHandler,
	requestHandler *handler.RequestHandler,
	adminHandler *handler.AdminHandler,
	authMiddleware *middleware.AuthMiddleware,
) {
	// 健康检查
	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{
			"message": "pong",
			"status":  "healthy",
		})
	})

	// Prometheus指标端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API路由组
	v1 := r.Group("/api/v1")
	{
		// 用户模块（公开接口）
		users := v1.Group("/users")
		{
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)
			users.POST("/logout", authMiddleware.RequireAuth(), userHandler.Logout)
		}

		// 书目模块
		books := v1.Group("/books")
		{
			// 公开接口
			books.GET("", bookHandler.ListBooks)
			books.GET("/:id", bookHandler.GetBook)
			books.GET("/:id/items", bookHandler.ListAvailableItems)
			books.GET("/:id/queue", reservationHandler.QueueDepth)

			// 馆员接口
			librarian := books.Group("", authMiddleware.RequireAuth(), authMiddleware.RequireLibrarian())
			{
				librarian.POST("", bookHandler.CreateBook)
				librarian.PUT("/:id", bookHandler.UpdateBook)
				librarian.POST("/:id/items", bookHandler.AddItem)
			}
		}

		// 需要登录的路由
		authorized := v1.Group("")
		authorized.Use(authMiddleware.RequireAuth())
		{
			// 个人信息
			authorized.GET("/profile", userHandler.Profile)

			// 馆员扫码查副本
			authorized.GET("/items/barcode/:barcode", bookHandler.GetItemByBarcode)

			// 流通模块（借出/归还/续借）
			loans := authorized.Group("/loans")
			{
				loans.POST("", loanHandler.Checkout)
				loans.GET("", loanHandler.ListLoans)
				loans.POST("/:id/return", loanHandler.Return)
				loans.POST("/:id/renew", loanHandler.Renew)
			}

			// 预约模块
			reservations := authorized.Group("/reservations")
			{
				reservations.POST("", reservationHandler.Reserve)
				reservations.GET("", reservationHandler.ListMine)
				reservations.POST("/:id/cancel", reservationHandler.Cancel)
			}

			// 借阅申请模块
			requests := authorized.Group("/requests")
			{
				requests.POST("", requestHandler.Submit)
				requests.GET("", requestHandler.ListMine)
				requests.POST("/:id/cancel", requestHandler.Cancel)
			}

			// 馆员工作台
			admin := authorized.Group("/admin", authMiddleware.RequireLibrarian())
			{
				admin.GET("/requests", requestHandler.ListPending)
				admin.POST("/requests/:id/approve", requestHandler.Approve)
				admin.POST("/requests/:id/reject", requestHandler.Reject)
				admin.POST("/reconcile", adminHandler.RunReconcile)
				admin.POST("/books/:id/repair", adminHandler.RepairBookCounters)
				admin.POST("/users/:id/repair", adminHandler.RepairUserCounter)
			}
		}
	}
}
