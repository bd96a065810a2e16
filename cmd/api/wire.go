//go:build wireinject
// +build wireinject

// Wire依赖注入配置文件
//
// Wire工作流程：
// Step 1: 编写wire.go（本文件），定义Providers和Injector
// Step 2: 运行 `wire gen ./cmd/api`
// Step 3: Wire生成wire_gen.go，包含完整的依赖创建代码
// Step 4: main.go调用wire_gen.go中的InitializeApp()
//
// 接口绑定说明：
// 流通引擎依赖的Transactor/Waker/CacheInvalidator都是消费方定义的
// 接口，Wire需要wire.Bind把具体实现绑定上去。

package main

import (
	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

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
	"github.com/xiebiao/elibrary/pkg/mq"
)

// infrastructureSet 基础设施层依赖
var infrastructureSet = wire.NewSet(
	config.Load,
	mysql.NewDB,
	redis.NewClient,
)

// repositorySet 仓储层依赖
var repositorySet = wire.NewSet(
	mysql.NewUserRepository,
	mysql.NewBookRepository,
	mysql.NewLoanRepository,
	mysql.NewReservationRepository,
	mysql.NewRequestRepository,
	provideTxManager,
)

// domainSet 领域层依赖
var domainSet = wire.NewSet(
	user.NewService,
)

// applicationSet 应用层依赖
// 接口绑定：预约服务同时充当流通引擎与对账任务的Waker
var applicationSet = wire.NewSet(
	appreservation.NewService,
	circulation.NewEngine,
	apprequest.NewService,
	appcatalog.NewService,
	appreconcile.NewService,
	appuser.NewRegisterUseCase,
	appuser.NewLoginUseCase,
	appuser.NewLogoutUseCase,

	wire.Bind(new(circulation.Transactor), new(*mysql.TxManager)),
	wire.Bind(new(appreservation.Transactor), new(*mysql.TxManager)),
	wire.Bind(new(apprequest.Transactor), new(*mysql.TxManager)),
	wire.Bind(new(appcatalog.Transactor), new(*mysql.TxManager)),
	wire.Bind(new(appreconcile.Transactor), new(*mysql.TxManager)),
	wire.Bind(new(circulation.Waker), new(*appreservation.Service)),
	wire.Bind(new(appreconcile.Waker), new(*appreservation.Service)),
	wire.Bind(new(circulation.CacheInvalidator), new(*redis.CatalogCache)),
	wire.Bind(new(appcatalog.Cache), new(*redis.CatalogCache)),
)

// middlewareSet 中间件依赖
var middlewareSet = wire.NewSet(
	provideJWTManager,
	provideSessionStore,
	redis.NewCatalogCache,
	provideNotifier,
	provideCirculationPolicy,
	middleware.NewAuthMiddleware,
)

// handlerSet HTTP处理器依赖
var handlerSet = wire.NewSet(
	handler.NewUserHandler,
	handler.NewBookHandler,
	handler.NewLoanHandler,
	handler.NewReservationHandler,
	handler.NewRequestHandler,
	handler.NewAdminHandler,
)

// provideJWTManager 从配置创建JWT管理器
func provideJWTManager(cfg *config.Config) *jwt.Manager {
	return jwt.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpire,
		cfg.JWT.RefreshTokenExpire,
	)
}

// provideSessionStore 从Redis客户端创建Session存储
func provideSessionStore(client *goredis.Client) *redis.SessionStore {
	return redis.NewSessionStore(client)
}

// provideTxManager 从配置提取事务重试次数
func provideTxManager(db *gorm.DB, cfg *config.Config) *mysql.TxManager {
	return mysql.NewTxManager(db, cfg.Circulation.TxMaxRetries)
}

// provideCirculationPolicy 提取流通策略配置
func provideCirculationPolicy(cfg *config.Config) config.CirculationConfig {
	return cfg.Circulation
}

// provideNotifier 按配置选择通知发布器
// MQ未启用时退化为日志发布器,借还书主流程不受影响
func provideNotifier(cfg *config.Config) (domainnotification.Notifier, error) {
	if !cfg.MQ.Enabled {
		return notification.NewLogNotifier(), nil
	}
	publisher, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange, "topic")
	if err != nil {
		return nil, err
	}
	return notification.NewMQNotifier(publisher), nil
}

// provideGinEngine 创建并配置Gin引擎
func provideGinEngine(
	cfg *config.Config,
	userHandler *handler.UserHandler,
	bookHandler *handler.BookHandler,
	loanHandler *handler.LoanHandler,
	reservationHandler *handler.ReservationHandler,
	requestHandler *handler.RequestHandler,
	adminHandler *handler.AdminHandler,
	authMiddleware *middleware.AuthMiddleware,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.Metrics())

	registerRoutes(r, userHandler, bookHandler, loanHandler,
		reservationHandler, requestHandler, adminHandler, authMiddleware)

	return r
}

// InitializeApp 初始化整个应用
// Wire会在wire_gen.go中生成实际的初始化代码
func InitializeApp() (*gin.Engine, error) {
	wire.Build(
		infrastructureSet,
		repositorySet,
		domainSet,
		applicationSet,
		middlewareSet,
		handlerSet,
		provideGinEngine,
	)

	return nil, nil
}
