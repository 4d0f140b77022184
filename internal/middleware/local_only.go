package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// LocalOnly 中间件：只允许本地访问（127.0.0.1 或 ::1）以及 trusted 中列出的网段。
// 私钥会出现在请求或响应里的接口都挂在它后面。
func LocalOnly(trusted ...*net.IPNet) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "禁止访问", "kind": "forbidden"})
			return
		}
		if !ip.IsLoopback() && !contains(trusted, ip) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "禁止访问：仅允许本地访问", "kind": "forbidden"})
			return
		}
		c.Next()
	}
}

func contains(nets []*net.IPNet, ip net.IP) bool {
	for _, n := range nets {
		if n != nil && n.Contains(ip) {
			return true
		}
	}
	return false
}
