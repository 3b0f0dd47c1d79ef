/*
Roster - BIND配置集中管理系统

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// core/webapi/middleware/timeout.go
// 请求超时：给请求上下文加截止时间，事务排队和数据库调用随之取消

package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"Roster/core/common"
)

// RequestTimeouts 按请求路径的超时时间
type RequestTimeouts struct {
	Default time.Duration
	ByPath  map[string]time.Duration
}

// NewRequestTimeouts 按 [server] request_timeout、get_credentials_timeout、core_run_timeout 创建
func NewRequestTimeouts(cfg *common.Config) RequestTimeouts {
	return RequestTimeouts{
		Default: cfg.GetSeconds("server", "request_timeout", 10),
		ByPath: map[string]time.Duration{
			// 失败后的等待时间随失败次数增加
			"/api/get_credentials": cfg.GetSeconds("server", "get_credentials_timeout", 60),
			// 批量导入可能较慢，还要等待整库锁
			"/api/core_run": cfg.GetSeconds("server", "core_run_timeout", 300),
		},
	}
}

// For 返回路径对应的超时时间，未配置或不大于0时使用 Default
func (t RequestTimeouts) For(path string) time.Duration {
	if d, ok := t.ByPath[path]; ok && d > 0 {
		return d
	}
	if t.Default > 0 {
		return t.Default
	}
	return 10 * time.Second
}

// TimeoutMiddleware 请求超时中间件；处理函数超时且未写响应时返回 504
func TimeoutMiddleware(t RequestTimeouts) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), t.For(c.Request.URL.Path))
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, RPCResponse{
				Success:   false,
				ErrorType: ErrorTypeTimeout,
				Message:   "Request timed out",
			})
		}
	}
}
