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

// core/webapi/api/rpcapi.go
// GetCredentials、IsAuthenticated、CoreRun

package api

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/webapi/middleware"
)

// GetCredentialsRequest 请求凭证
type GetCredentialsRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
	Infinite bool   `json:"infinite"`
}

// IsAuthenticatedRequest 检查凭证
type IsAuthenticatedRequest struct {
	UserName   string `json:"user_name"`
	Credential string `json:"credential"`
}

// CoreRunRequest 调用一个 Core 方法
type CoreRunRequest struct {
	FunctionName string                     `json:"function_name"`
	UserName     string                     `json:"user_name"`
	Credential   string                     `json:"credential"`
	Args         []json.RawMessage          `json:"args"`
	Kwargs       map[string]json.RawMessage `json:"kwargs"`
}

func badRequest(c *gin.Context) {
	middleware.SendErrorResponseGin(c, common.NewError(common.KindInvalidInput, "Invalid request body"))
}

// GetCredentialsHandler 认证用户并签发凭证；失败的次数越多等待越久
func (s *Server) GetCredentialsHandler(c *gin.Context) {
	var req GetCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserName == "" {
		badRequest(c)
		return
	}
	c.Set(middleware.ContextUserKey, req.UserName)
	ctx := c.Request.Context()

	if err := s.auth.Authenticate(ctx, req.UserName, req.Password); err != nil {
		s.loginFailed(ctx, req.UserName)
		middleware.SendErrorResponseGin(c, err)
		return
	}
	// 认证通过的用户还必须是 Roster 用户
	if _, err := s.cores.Get(ctx, req.UserName); err != nil {
		s.loginFailed(ctx, req.UserName)
		middleware.SendErrorResponseGin(c, err)
		return
	}
	s.resetFailures(req.UserName)

	credential, err := s.credentials.Issue(ctx, req.UserName, req.Infinite)
	if err != nil {
		middleware.SendErrorResponseGin(c, err)
		return
	}
	middleware.SendSuccessResponseGin(c, credential, "")
}

// loginFailed 记录一次失败并等待 失败次数 × get_credentials_wait_increment
func (s *Server) loginFailed(ctx context.Context, userName string) {
	s.failuresMu.Lock()
	s.failures[userName]++
	attempts := s.failures[userName]
	s.failuresMu.Unlock()

	s.logger.Warn("用户 %s 第 %d 次获取凭证失败", userName, attempts)
	if err := s.sleep(ctx, time.Duration(attempts)*s.waitStep); err != nil {
		s.logger.Debug("等待被取消: %v", err)
	}
}

func (s *Server) resetFailures(userName string) {
	s.failuresMu.Lock()
	defer s.failuresMu.Unlock()
	delete(s.failures, userName)
}

// IsAuthenticatedHandler 凭证有效时结果为 true；凭证无效不是错误
func (s *Server) IsAuthenticatedHandler(c *gin.Context) {
	var req IsAuthenticatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	c.Set(middleware.ContextUserKey, req.UserName)

	renewed, err := s.credentials.Verify(c.Request.Context(), req.UserName, req.Credential)
	if err != nil {
		middleware.SendSuccessResponseGin(c, false, "")
		return
	}
	middleware.SendSuccessResponseGin(c, true, renewed)
	s.cores.MaybeClean()
}

// CoreRunHandler 校验凭证后调用用户 Core 上的方法
func (s *Server) CoreRunHandler(c *gin.Context) {
	var req CoreRunRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.FunctionName == "" {
		badRequest(c)
		return
	}
	c.Set(middleware.ContextUserKey, req.UserName)
	ctx := c.Request.Context()
	defer s.cores.MaybeClean()

	if strings.HasPrefix(req.FunctionName, "_") {
		err := common.NewError(common.KindInvalidInput, "Private method %s cannot be called", req.FunctionName)
		s.auditFailure(ctx, req, err)
		middleware.SendErrorResponseGin(c, err)
		return
	}

	renewed, err := s.credentials.Verify(ctx, req.UserName, req.Credential)
	if err != nil {
		s.auditFailure(ctx, req, err)
		middleware.SendErrorResponseGin(c, err)
		return
	}

	core, err := s.cores.Get(ctx, req.UserName)
	if err != nil {
		s.auditFailure(ctx, req, err)
		middleware.SendErrorResponseGin(c, err)
		return
	}

	// Core 自己记录方法执行失败的审计日志
	result, err := core.Call(ctx, req.FunctionName, req.Args, req.Kwargs)
	if err != nil {
		middleware.SendErrorResponseGin(c, err)
		return
	}
	if isUserMethod(req.FunctionName) {
		// 用户和访问级别可能已变化
		s.cores.Reset()
	}
	middleware.SendSuccessResponseGin(c, result, renewed)
}

func isUserMethod(name string) bool {
	switch name {
	case "MakeUser", "RemoveUser", "UpdateUser":
		return true
	}
	return false
}

// auditFailure 进入 Core 之前失败的调用也写一条失败的审计日志
func (s *Server) auditFailure(ctx context.Context, req CoreRunRequest, cause error) {
	data := map[string]interface{}{
		"error_type": string(common.KindOf(cause)),
		"args":       req.Args,
		"kwargs":     req.Kwargs,
	}
	err := s.store.WithTx(context.WithoutCancel(ctx), func(tx *database.Tx) error {
		_, err := tx.LogAction(req.UserName, req.FunctionName, data, false)
		return err
	})
	if err != nil {
		s.logger.Error("记录失败审计日志失败: %v", err)
	}
}
