package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Healthz 存活探针（liveness probe），进程在就返回 200
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"type":   "liveness",
	})
}

// Readiness 就绪探针（readiness probe）
// 启动等待 warmup 之后，检查 RPC 节点和登记表数据库
func (h *Handler) Readiness(c *gin.Context) {
	elapsed := time.Since(h.startTime)
	if elapsed < h.warmup {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not ready",
			"type":      "readiness",
			"message":   "服务启动中，等待就绪",
			"elapsed":   elapsed.String(),
			"remaining": (h.warmup - elapsed).String(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := h.engine.Ready(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"type":    "readiness",
			"message": "依赖检查失败",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"type":    "readiness",
		"message": "服务已就绪",
		"uptime":  elapsed.String(),
	})
}
