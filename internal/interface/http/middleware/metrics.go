package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xiebiao/elibrary/pkg/metrics"
)

// Metrics HTTP指标采集中间件
// 设计说明：
// 1. path使用路由模板(c.FullPath())而非原始URL,避免标签基数爆炸
//    例如 /api/v1/loans/123 记为 /api/v1/loans/:id
// 2. 必须先调用metrics.InitMetrics(),否则包级指标变量为nil
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.HTTPRequestsInProgress.Inc()

		c.Next()

		metrics.HTTPRequestsInProgress.Dec()

		path := c.FullPath()
		if path == "" {
			path = "unmatched" // 404等未命中路由的请求
		}

		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
		).Observe(time.Since(start).Seconds())
	}
}
