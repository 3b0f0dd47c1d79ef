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

// core/webapi/api/setuproute.go

package api

import (
	"github.com/gin-gonic/gin"

	"Roster/core/webapi/middleware"
)

// RPC 路径
const (
	PathCoreRun         = "/api/core_run"
	PathGetCredentials  = "/api/get_credentials"
	PathIsAuthenticated = "/api/is_authenticated"
	PathHealth          = "/api/health"
)

// setupRoutes 创建 gin 引擎并注册路由
func (s *Server) setupRoutes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	timeouts := middleware.NewRequestTimeouts(s.cfg)

	chain := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return []gin.HandlerFunc{
			middleware.LoggerMiddleware(s.logger),
			middleware.RateLimitMiddleware(s.limiter),
			middleware.TimeoutMiddleware(timeouts),
			h,
		}
	}

	// 认证
	engine.POST(PathGetCredentials, chain(s.GetCredentialsHandler)...)
	engine.POST(PathIsAuthenticated, chain(s.IsAuthenticatedHandler)...)

	// 方法调用
	engine.POST(PathCoreRun, chain(s.CoreRunHandler)...)

	// 健康检查不限频
	engine.GET(PathHealth, middleware.TimeoutMiddleware(timeouts), s.HealthHandler)

	return engine
}
