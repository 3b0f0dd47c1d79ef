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

// core/webapi/api/health.go
// 健康检查：数据库连通性、维护标志、最新审计ID 与 Core 缓存

package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"Roster/core/database"
	"Roster/core/webapi/middleware"
)

// HealthCheckResponse 健康检查响应结构
type HealthCheckResponse struct {
	Status    string         `json:"status"` // healthy、maintenance 或 unhealthy
	Timestamp time.Time      `json:"timestamp"`
	System    SystemHealth   `json:"system"`
	Database  DatabaseHealth `json:"database"`
	Cores     int            `json:"cores"` // 缓存中的 Core 数量
}

// SystemHealth 进程状态
type SystemHealth struct {
	GoRoutines      int    `json:"goroutines"`
	MemoryAllocated uint64 `json:"memory_allocated"`
}

// DatabaseHealth 数据库状态；AuditID 为最新的审计日志ID，导出包以它命名
type DatabaseHealth struct {
	Status      string  `json:"status"`
	Driver      string  `json:"driver"`
	Latency     float64 `json:"latency_ms"`
	Maintenance bool    `json:"maintenance"`
	AuditID     uint64  `json:"audit_id"`
	LastError   string  `json:"last_error,omitempty"`
}

// PerformHealthCheck 执行健康检查
func (s *Server) PerformHealthCheck(ctx context.Context) HealthCheckResponse {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	db := DatabaseHealth{Status: "healthy", Driver: s.store.Driver()}
	start := time.Now()
	err := s.store.CheckConnection()
	if err == nil {
		err = s.store.WithTx(ctx, func(tx *database.Tx) error {
			var err error
			if db.Maintenance, err = tx.CheckMaintenanceFlag(); err != nil {
				return err
			}
			db.AuditID, err = tx.MaxAuditID()
			return err
		})
	}
	db.Latency = float64(time.Since(start).Microseconds()) / 1000

	status := "healthy"
	switch {
	case err != nil:
		// 健康检查无需认证，不返回底层错误
		s.logger.Error("数据库健康检查失败: %v", err)
		db.Status = "unhealthy"
		db.LastError = "database unreachable"
		status = "unhealthy"
	case db.Maintenance:
		status = "maintenance"
	}

	return HealthCheckResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		System: SystemHealth{
			GoRoutines:      runtime.NumGoroutine(),
			MemoryAllocated: m.Alloc,
		},
		Database: db,
		Cores:    s.cores.Len(),
	}
}

// HealthHandler 数据库不可用时返回 503，维护模式仍返回 200
func (s *Server) HealthHandler(c *gin.Context) {
	health := s.PerformHealthCheck(c.Request.Context())
	code := http.StatusOK
	if health.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, middleware.RPCResponse{Success: code == http.StatusOK, Result: health})
}
