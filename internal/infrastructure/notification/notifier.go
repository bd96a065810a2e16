// Package notification 实现通知事件的发布与消费适配
//
// MQNotifier把领域事件发布到RabbitMQ topic交换机,外面包一层熔断器:
// Broker持续故障时快速失败丢弃事件,绝不让借还书主流程等待超时。
// MQ未启用时用LogNotifier兜底(只记日志,事件不出进程)。
package notification

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/xiebiao/elibrary/internal/domain/notification"
	"github.com/xiebiao/elibrary/pkg/circuitbreaker"
	"github.com/xiebiao/elibrary/pkg/metrics"
	"github.com/xiebiao/elibrary/pkg/mq"
)

// MQNotifier 基于RabbitMQ的通知发布器(熔断保护)
type MQNotifier struct {
	publisher *mq.Publisher
	breaker   *circuitbreaker.Breaker
}

// NewMQNotifier 创建MQ通知发布器
// 熔断策略:连续5次发布失败即熔断,30秒后半开探测
func NewMQNotifier(publisher *mq.Publisher) *MQNotifier {
	cb := circuitbreaker.New("notify-mq", circuitbreaker.Config{
		FailureThreshold: 5,
		MaxProbes:        1,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			log.Printf("⚡ 熔断器状态变化: name=%s %s -> %s", name, from, to)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &MQNotifier{publisher: publisher, breaker: cb}
}

// Publish 发布通知事件
// 约定:失败只计数/记日志,调用方不得因此回滚业务事务
func (n *MQNotifier) Publish(ctx context.Context, event *notification.Event) error {
	err := n.breaker.Execute(func() error {
		return n.publisher.Publish(event.Kind.RoutingKey(), event)
	})

	if err != nil {
		metrics.NotificationsDroppedTotal.Inc()
		log.Printf("❌ 通知事件丢弃: kind=%s user=%d err=%v", event.Kind, event.UserID, err)
		return err
	}

	metrics.NotificationsPublishedTotal.WithLabelValues(string(event.Kind)).Inc()
	return nil
}

// LogNotifier 仅记日志的通知发布器
// MQ未启用(开发环境、单测)时使用
type LogNotifier struct{}

// NewLogNotifier 创建日志通知发布器
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Publish 把事件打进日志
func (n *LogNotifier) Publish(ctx context.Context, event *notification.Event) error {
	payload, _ := json.Marshal(event.Payload)
	log.Printf("📨 通知事件: kind=%s user=%d payload=%s", event.Kind, event.UserID, payload)
	metrics.NotificationsPublishedTotal.WithLabelValues(string(event.Kind)).Inc()
	return nil
}

// Dispatcher 通知分发器(消费端适配)
// 订阅notify.#,把事件解码后交给handler(短信/邮件推送属于下游系统,
// 这里只提供消费骨架与默认的日志handler)
type Dispatcher struct {
	consumer *mq.Consumer
	handler  func(ctx context.Context, event *notification.Event) error
}

// NewDispatcher 创建通知分发器
// handler为nil时使用默认的日志handler
func NewDispatcher(consumer *mq.Consumer, handler func(ctx context.Context, event *notification.Event) error) *Dispatcher {
	if handler == nil {
		handler = func(ctx context.Context, event *notification.Event) error {
			log.Printf("📬 收到通知: kind=%s user=%d", event.Kind, event.UserID)
			return nil
		}
	}
	return &Dispatcher{consumer: consumer, handler: handler}
}

// Run 开始消费,阻塞直到ctx取消
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.consumer.Consume(ctx, func(body []byte) error {
		var event notification.Event
		if err := json.Unmarshal(body, &event); err != nil {
			// 无法解码的消息不重入队,否则会无限循环
			log.Printf("❌ 通知消息解码失败,丢弃: %v", err)
			return nil
		}
		return d.handler(ctx, &event)
	})
}
