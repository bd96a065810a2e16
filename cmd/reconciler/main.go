package main

import (
	"context"
	"fmt"
	"log"
	"time"

	appreconcile "github.com/xiebiao/elibrary/internal/application/reconcile"
	appreservation "github.com/xiebiao/elibrary/internal/application/reservation"
	domainnotification "github.com/xiebiao/elibrary/internal/domain/notification"
	"github.com/xiebiao/elibrary/internal/infrastructure/config"
	"github.com/xiebiao/elibrary/internal/infrastructure/notification"
	"github.com/xiebiao/elibrary/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/elibrary/pkg/metrics"
	"github.com/xiebiao/elibrary/pkg/mq"
	"github.com/xiebiao/elibrary/pkg/tracing"
)

// main 对账任务入口
// 设计说明：
// 1. 单次运行模式:执行一次对账后退出,调度交给crontab/K8s CronJob
//    (如 0 2 * * * 每日凌晨2点)
// 2. 对账幂等,重复触发不产生重复罚金
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	metrics.InitMetrics()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer("elibrary-reconciler", cfg.Tracing.Endpoint)
		if err != nil {
			log.Fatalf("初始化追踪失败: %v", err)
		}
		defer shutdown(context.Background())
	}

	db, err := mysql.NewDB(cfg)
	if err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}

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

	userRepo := mysql.NewUserRepository(db)
	bookRepo := mysql.NewBookRepository(db)
	loanRepo := mysql.NewLoanRepository(db)
	reservationRepo := mysql.NewReservationRepository(db)
	txManager := mysql.NewTxManager(db, cfg.Circulation.TxMaxRetries)

	reservationService := appreservation.NewService(reservationRepo, userRepo, bookRepo, txManager,
		notifier, cfg.Circulation)
	reconcileService := appreconcile.NewService(loanRepo, reservationRepo, userRepo, bookRepo,
		txManager, reservationService, notifier, cfg.Circulation)

	// 整轮对账设置超时上限,防止批处理悬挂
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	result, err := reconcileService.Run(ctx, time.Now())
	if err != nil {
		log.Fatalf("对账失败: %v", err)
	}

	fmt.Printf("对账完成: processed=%d failed=%d expired_holds=%d due_soon=%d elapsed=%s\n",
		result.Processed, result.Failed, result.ExpiredHolds, result.DueSoon,
		result.FinishedAt.Sub(result.StartedAt))
}
