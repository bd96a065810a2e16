// Package notification 定义通知事件与发布接口
//
// 流通引擎自身不做推送投递,只在业务事务提交后产出结构化事件,
// 交给下游通知分发器。事件可丢(MQ故障时熔断丢弃),主流程不可阻塞。
package notification

import (
	"context"
	"time"
)

// Kind 通知事件类型
type Kind string

const (
	KindOverdue          Kind = "overdue"           // 借阅已逾期
	KindDueSoon          Kind = "due_soon"          // 借阅即将到期
	KindReservationReady Kind = "reservation_ready" // 预约到书待取
	KindBorrowApproved   Kind = "borrow_approved"   // 借阅申请已批准
	KindBorrowRejected   Kind = "borrow_rejected"   // 借阅申请已驳回
)

// RoutingKey 事件对应的MQ路由键(notify.<kind>)
func (k Kind) RoutingKey() string {
	return "notify." + string(k)
}

// Event 通知事件
// Payload携带分发器渲染消息所需的上下文(书名、到期日、罚金等),
// 跨语言消费,序列化为JSON
type Event struct {
	UserID     uint                   `json:"user_id"`
	Kind       Kind                   `json:"kind"`
	Payload    map[string]interface{} `json:"payload"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NewEvent 创建通知事件
func NewEvent(userID uint, kind Kind, payload map[string]interface{}) *Event {
	return &Event{
		UserID:     userID,
		Kind:       kind,
		Payload:    payload,
		OccurredAt: time.Now(),
	}
}

// Notifier 通知发布接口
// 实现:
// - infrastructure/notification.MQNotifier  发布到RabbitMQ(熔断保护)
// - infrastructure/notification.LogNotifier MQ未启用时仅记日志
//
// 约定:Publish失败只记录/计数,调用方不得因此回滚业务事务
type Notifier interface {
	Publish(ctx context.Context, event *Event) error
}
