// Package circuitbreaker 为通知发布提供熔断保护
//
// 设计说明:
// 1. 保护对象是通知消息队列:业务事务提交后才发布事件,
//    Broker持续故障时必须快速失败丢弃事件,绝不能让借还书主流程
//    等待Broker超时
// 2. 熔断策略固定为"连续失败计数":通知发布没有慢调用/错误率
//    之类的灰度场景,连续失败N次即视为Broker不可用
// 3. 状态机:CLOSED→(连续失败达阈值)→OPEN→(超时)→HALF_OPEN,
//    半开探测成功回CLOSED,失败立即回OPEN
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State 熔断器状态
type State int

const (
	StateClosed   State = iota // 正常放行,统计连续失败
	StateOpen                  // 熔断,快速失败
	StateHalfOpen              // 放行少量探测请求
)

// String 状态转字符串(便于日志)
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpenState 熔断器打开时的快速失败错误
var ErrOpenState = errors.New("circuit breaker is open")

// Config 熔断器配置
type Config struct {
	FailureThreshold uint32        // 连续失败多少次后熔断
	MaxProbes        uint32        // 半开状态允许的探测请求数
	Interval         time.Duration // 关闭状态的统计窗口,窗口结束清零失败计数
	Timeout          time.Duration // 熔断持续时间,到点转半开

	// OnStateChange 状态切换回调(记日志、上报指标)
	OnStateChange func(name string, from, to State)
}

// Breaker 熔断器
// 生成号(generation)在每次状态切换时递增,迟到的请求结果
// 凭生成号识别,不会污染切换后的统计
type Breaker struct {
	name string
	cfg  Config

	mu                  sync.Mutex
	state               State
	generation          uint64
	requests            uint32 // 当前窗口/半开探测已放行的请求数
	consecutiveFailures uint32
	expiry              time.Time // 窗口/熔断的到期时间
}

// New 创建熔断器
func New(name string, cfg Config) *Breaker {
	return &Breaker{
		name:   name,
		cfg:    cfg,
		state:  StateClosed,
		expiry: time.Now().Add(cfg.Interval),
	}
}

// Execute 在熔断保护下执行fn
// 熔断打开或探测额度用尽时返回ErrOpenState,不调用fn
func (b *Breaker) Execute(fn func() error) error {
	generation, err := b.beforeRequest()
	if err != nil {
		return err
	}

	err = fn()
	b.afterRequest(generation, err == nil)
	return err
}

// State 当前状态(只读)
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, _ := b.currentState(time.Now())
	return state
}

// beforeRequest 放行检查,返回当前生成号
func (b *Breaker) beforeRequest() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, generation := b.currentState(time.Now())

	if state == StateOpen {
		return generation, ErrOpenState
	}
	if state == StateHalfOpen && b.requests >= b.cfg.MaxProbes {
		return generation, ErrOpenState
	}

	b.requests++
	return generation, nil
}

// afterRequest 记录结果并推进状态机
// 生成号不匹配说明状态已切换,该结果作废
func (b *Breaker) afterRequest(before uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, generation := b.currentState(now)
	if generation != before {
		return
	}

	if success {
		b.consecutiveFailures = 0
		if state == StateHalfOpen {
			b.setState(StateClosed, now)
		}
		return
	}

	b.consecutiveFailures++
	switch state {
	case StateClosed:
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		// 探测失败,立即回到熔断
		b.setState(StateOpen, now)
	}
}

// currentState 结算到期逻辑后返回当前状态与生成号
// CLOSED:统计窗口到期清零计数;OPEN:熔断到期转半开
func (b *Breaker) currentState(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.requests = 0
			b.consecutiveFailures = 0
			b.expiry = now.Add(b.cfg.Interval)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.setState(StateHalfOpen, now)
		}
	}

	return b.state, b.generation
}

// setState 切换状态:生成号递增,计数清零,重设到期时间
func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.generation++
	b.requests = 0
	b.consecutiveFailures = 0

	switch state {
	case StateClosed:
		b.expiry = now.Add(b.cfg.Interval)
	case StateOpen:
		b.expiry = now.Add(b.cfg.Timeout)
	case StateHalfOpen:
		b.expiry = time.Time{} // 半开不设到期,由探测结果决定去向
	}

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, prev, state)
	}
}
