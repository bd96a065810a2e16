package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/xiebiao/elibrary/internal/infrastructure/config"
	"github.com/xiebiao/elibrary/internal/infrastructure/notification"
	"github.com/xiebiao/elibrary/pkg/mq"
)

// main 通知分发器入口
// 订阅notify.#,消费流通引擎发布的通知事件(逾期、到期提醒、
// 预约到书、审批结果)。真正的短信/邮件推送属于下游系统,
// 这里运行消费骨架与日志handler。
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if !cfg.MQ.Enabled {
		log.Fatal("MQ未启用,通知分发器无事可做(检查mq.enabled配置)")
	}

	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.MQ.Exchange, "topic",
		cfg.MQ.Queue, []string{"notify.#"})
	if err != nil {
		log.Fatalf("初始化消费者失败: %v", err)
	}
	defer consumer.Close()

	dispatcher := notification.NewDispatcher(consumer, nil)

	// Ctrl+C / SIGTERM优雅退出
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatcher.Run(ctx); err != nil {
		log.Fatalf("消费失败: %v", err)
	}
}
