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

// core/webapi/middleware/middleware.go
// 请求频率限制与请求日志

package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"Roster/core/common"
)

// ContextUserKey 处理函数把已认证的用户名放在 gin.Context 中，供日志使用
const ContextUserKey = "roster_user"

// RateLimiter 按客户端IP和路径限制请求频率
type RateLimiter struct {
	limits      map[string]*LimitCounter
	limitsMutex sync.Mutex

	bannedIPs   map[string]time.Time
	bannedMutex sync.Mutex

	limit       int
	window      time.Duration
	maxFailures int
	banDuration time.Duration
	now         func() time.Time
}

// LimitCounter 滑动窗口计数器
type LimitCounter struct {
	requests  []time.Time
	mutex     sync.Mutex
	failCount int
}

// NewRateLimiter 创建限制器；limit 为 0 时不限制
func NewRateLimiter(limit int, window time.Duration, maxFailures int, banDuration time.Duration) *RateLimiter {
	return &RateLimiter{
		limits:      make(map[string]*LimitCounter),
		bannedIPs:   make(map[string]time.Time),
		limit:       limit,
		window:      window,
		maxFailures: maxFailures,
		banDuration: banDuration,
		now:         time.Now,
	}
}

// NewRateLimiterFromConfig 按 [server] rate_limit、rate_limit_window、rate_limit_max_failures、rate_limit_ban_time 创建限制器
func NewRateLimiterFromConfig(cfg *common.Config) *RateLimiter {
	return NewRateLimiter(
		cfg.GetInt("server", "rate_limit", 600),
		cfg.GetSeconds("server", "rate_limit_window", 60),
		cfg.GetInt("server", "rate_limit_max_failures", 10),
		cfg.GetSeconds("server", "rate_limit_ban_time", 300),
	)
}

// addRequest 记录一次请求，超出窗口内的限制时返回 false
func (lc *LimitCounter) addRequest(now time.Time, limit int, window time.Duration) bool {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()

	cutoff := now.Add(-window)
	valid := lc.requests[:0]
	for _, reqTime := range lc.requests {
		if reqTime.After(cutoff) {
			valid = append(valid, reqTime)
		}
	}
	lc.requests = valid

	if len(lc.requests) >= limit {
		lc.failCount++
		return false
	}
	lc.requests = append(lc.requests, now)
	return true
}

// IsBanned 检查是否被封禁
func (rl *RateLimiter) IsBanned(ip string) bool {
	rl.bannedMutex.Lock()
	defer rl.bannedMutex.Unlock()

	banTime, exists := rl.bannedIPs[ip]
	if !exists {
		return false
	}
	if rl.now().After(banTime) {
		delete(rl.bannedIPs, ip)
		return false
	}
	return true
}

// BanIP 封禁IP
func (rl *RateLimiter) BanIP(ip string) {
	rl.bannedMutex.Lock()
	defer rl.bannedMutex.Unlock()

	rl.bannedIPs[ip] = rl.now().Add(rl.banDuration)
}

func (rl *RateLimiter) counter(key string) *LimitCounter {
	rl.limitsMutex.Lock()
	defer rl.limitsMutex.Unlock()

	counter, exists := rl.limits[key]
	if !exists {
		counter = &LimitCounter{}
		rl.limits[key] = counter
	}
	return counter
}

// Allow 记录来自 ip 对 path 的一次请求；连续超限 maxFailures 次后封禁该IP
func (rl *RateLimiter) Allow(ip, path string) bool {
	if rl.limit <= 0 {
		return true
	}
	if rl.IsBanned(ip) {
		return false
	}
	counter := rl.counter(ip + ":" + path)
	if counter.addRequest(rl.now(), rl.limit, rl.window) {
		return true
	}
	counter.mutex.Lock()
	failures := counter.failCount
	counter.mutex.Unlock()
	if rl.maxFailures > 0 && failures >= rl.maxFailures {
		rl.BanIP(ip)
	}
	return false
}

// Sweep 删除窗口内没有请求的计数器和已到期的封禁，返回删除的计数器数量
func (rl *RateLimiter) Sweep() int {
	now := rl.now()
	cutoff := now.Add(-rl.window)

	rl.limitsMutex.Lock()
	removed := 0
	for key, counter := range rl.limits {
		counter.mutex.Lock()
		idle := len(counter.requests) == 0 || !counter.requests[len(counter.requests)-1].After(cutoff)
		counter.mutex.Unlock()
		if idle {
			delete(rl.limits, key)
			removed++
		}
	}
	rl.limitsMutex.Unlock()

	rl.bannedMutex.Lock()
	for ip, until := range rl.bannedIPs {
		if now.After(until) {
			delete(rl.bannedIPs, ip)
		}
	}
	rl.bannedMutex.Unlock()
	return removed
}

// RateLimitMiddleware 请求频率限制中间件
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP(), c.Request.URL.Path) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, RPCResponse{
				Success:   false,
				ErrorType: ErrorTypeRateLimit,
				Message:   "Too many requests",
			})
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 请求日志中间件，请求体中有密码和凭证，不记录
func LoggerMiddleware(logger *common.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		responseTime := time.Since(startTime)
		statusCode := c.Writer.Status()

		logMessage := fmt.Sprintf("API请求 - IP: %s, 方法: %s, 路径: %s, 状态码: %d, 响应时间: %v",
			clientIP, method, path, statusCode, responseTime)
		if user := c.GetString(ContextUserKey); user != "" {
			logMessage += fmt.Sprintf(", 用户名: %s", user)
		}

		switch {
		case statusCode >= 500:
			logger.Error("%s", logMessage)
		case statusCode >= 400:
			logger.Warn("%s", logMessage)
		default:
			logger.Info("%s", logMessage)
		}
	}
}
