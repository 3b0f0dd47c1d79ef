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

// core/webapi/api/httpd.go
// RPC 服务器

package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/webapi/middleware"
)

// Server RPC 服务器，持有凭证管理器、认证后端和每个用户的 Core
type Server struct {
	cfg         *common.Config
	store       *database.Store
	credentials *middleware.CredentialManager
	auth        middleware.Authenticator
	cores       *CoreCache
	limiter     *middleware.RateLimiter
	engine      *gin.Engine
	logger      *common.Logger

	// 登录失败次数，成功后清零
	failures   map[string]int
	failuresMu sync.Mutex
	waitStep   time.Duration
	sleep      func(ctx context.Context, d time.Duration) error

	server      *http.Server
	servermu    sync.Mutex
	running     bool
	stopSweeper context.CancelFunc
}

// NewServer 按配置创建 RPC 服务器
func NewServer(store *database.Store, cfg *common.Config) (*Server, error) {
	auth, err := middleware.NewAuthenticator(store, cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:         cfg,
		store:       store,
		credentials: middleware.NewCredentialManager(store, cfg),
		auth:        auth,
		cores: NewCoreCache(store,
			cfg.GetSeconds("server", "core_die_time", 1200),
			cfg.GetSeconds("server", "clean_time", 60)),
		limiter:  middleware.NewRateLimiterFromConfig(cfg),
		logger:   common.NewComponentLogger("rpc"),
		failures: make(map[string]int),
		waitStep: cfg.GetSeconds("server", "get_credentials_wait_increment", 1),
		sleep:    sleepContext,
	}
	s.engine = s.setupRoutes()
	return s, nil
}

// SetAuthenticator 替换认证后端
func (s *Server) SetAuthenticator(auth middleware.Authenticator) {
	s.auth = auth
}

// Cores 返回 Core 缓存
func (s *Server) Cores() *CoreCache {
	return s.cores
}

// Handler 返回 HTTP 处理器
func (s *Server) Handler() http.Handler {
	return s.engine
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning 检查服务器是否运行
func (s *Server) IsRunning() bool {
	s.servermu.Lock()
	defer s.servermu.Unlock()
	return s.running
}

// Addr 监听地址
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Get("server", "host"), strconv.Itoa(s.cfg.GetInt("server", "port", 8000)))
}

// Start 监听并在后台处理请求；server_killswitch 关闭时拒绝启动
func (s *Server) Start() error {
	s.servermu.Lock()
	defer s.servermu.Unlock()

	if s.running {
		s.logger.Info("RPC服务器已经在运行中")
		return nil
	}
	if !s.cfg.GetBool("server", "server_killswitch", true) {
		return common.NewError(common.KindCoreError, "server_killswitch is off, refusing to start")
	}

	certFile := s.cfg.Get("server", "ssl_cert_file")
	keyFile := s.cfg.Get("server", "ssl_key_file")
	if (certFile == "") != (keyFile == "") {
		return common.NewError(common.KindInvalidInput, "ssl_cert_file and ssl_key_file must be set together")
	}

	addr := s.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.server
	go func() {
		var err error
		if certFile != "" {
			s.logger.Info("启动RPC服务器 (HTTPS)，监听地址: %s...", addr)
			err = server.ServeTLS(listener, certFile, keyFile)
		} else {
			s.logger.Info("启动RPC服务器 (HTTP)，监听地址: %s...", addr)
			err = server.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("RPC服务器异常退出: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.stopSweeper = cancel
	go s.runSweeper(ctx)

	s.running = true
	return nil
}

// Stop 停止服务器，最多等待30秒让进行中的请求完成
func (s *Server) Stop() error {
	s.servermu.Lock()
	if !s.running {
		s.servermu.Unlock()
		return nil
	}
	server := s.server
	s.running = false
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.servermu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Error("停止RPC服务器超时: %v", err)
		}
		return err
	}
	s.logger.Info("RPC服务器已停止")
	return nil
}

// runSweeper 每隔 clean_time 清理闲置的 Core、限流计数器与过期的凭证
func (s *Server) runSweeper(ctx context.Context) {
	interval := s.cfg.GetSeconds("server", "clean_time", 60)
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cores.Clean()
			if n := s.limiter.Sweep(); n > 0 {
				s.logger.Debug("清理了 %d 个闲置的限流计数器", n)
			}
			if n, err := s.credentials.RemoveExpired(ctx); err != nil {
				s.logger.Warn("清理过期凭证失败: %v", err)
			} else if n > 0 {
				s.logger.Debug("清理了 %d 个过期凭证", n)
			}
		}
	}
}
