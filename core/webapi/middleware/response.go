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

// core/webapi/middleware/response.go
// RPC 响应格式

package middleware

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"Roster/core/common"
)

const (
	// ErrorTypeInternal 未带类型的内部错误
	ErrorTypeInternal = "InternalError"
	// ErrorTypeRateLimit 请求过于频繁
	ErrorTypeRateLimit = "RateLimitError"
	// ErrorTypeTimeout 请求超过 [server] 中配置的超时时间
	ErrorTypeTimeout = "TimeoutError"
)

// RPCResponse 所有 RPC 调用的响应结构
type RPCResponse struct {
	Success       bool        `json:"success"`                  // 是否成功
	Result        interface{} `json:"result"`                   // 调用结果
	ErrorType     string      `json:"error_type,omitempty"`     // 错误类型，与 common.ErrorKind 对应
	Message       string      `json:"message,omitempty"`        // 错误消息
	NewCredential string      `json:"new_credential,omitempty"` // 无期限凭证换发后的新凭证
}

var (
	pathRegex  = regexp.MustCompile(`[a-zA-Z]:\\[^"'\s]+|/[^"'\s]+`)
	ipRegex    = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	stackRegex = regexp.MustCompile(`(?:at\s+[\w./]+|goroutine\s+\d+|runtime\.[\w]+)`)
	// 可能的敏感关键词
	sensitiveKeywords = []string{"password", "passwd", "secret", "token", "credential"}
	sensitiveRegs     = func() []*regexp.Regexp {
		regs := make([]*regexp.Regexp, len(sensitiveKeywords))
		for i, keyword := range sensitiveKeywords {
			regs[i] = regexp.MustCompile(`(?i)` + keyword + `\s*[:=]\s*[^\s,]+`)
		}
		return regs
	}()
)

// sanitizeError 对错误信息进行脱敏处理，防止泄露系统内部信息
func sanitizeError(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()
	errStr = pathRegex.ReplaceAllString(errStr, "[路径已隐藏]")
	errStr = ipRegex.ReplaceAllString(errStr, "[IP地址已隐藏]")
	errStr = stackRegex.ReplaceAllString(errStr, "[堆栈信息已隐藏]")
	for i, re := range sensitiveRegs {
		errStr = re.ReplaceAllString(errStr, sensitiveKeywords[i]+"=[已隐藏]")
	}
	return errStr
}

// ErrorStatus 错误类型对应的 HTTP 状态码
func ErrorStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch common.KindOf(err) {
	case "":
		return http.StatusInternalServerError
	case common.KindAuthError:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

// errorBody 带类型且不包装底层错误的消息原样返回，其余的经过脱敏
func errorBody(err error) RPCResponse {
	if errors.Is(err, context.DeadlineExceeded) {
		return RPCResponse{Success: false, ErrorType: ErrorTypeTimeout, Message: "Request timed out"}
	}
	var typed *common.Error
	if errors.As(err, &typed) {
		message := typed.Error()
		if typed.Err != nil {
			message = sanitizeError(typed)
		}
		return RPCResponse{Success: false, ErrorType: string(typed.Kind), Message: message}
	}
	return RPCResponse{Success: false, ErrorType: ErrorTypeInternal, Message: sanitizeError(err)}
}

// SendErrorResponseGin 发送错误响应
func SendErrorResponseGin(c *gin.Context, err error) {
	c.JSON(ErrorStatus(err), errorBody(err))
}

// SendSuccessResponseGin 发送成功响应
func SendSuccessResponseGin(c *gin.Context, result interface{}, newCredential string) {
	c.JSON(http.StatusOK, RPCResponse{
		Success:       true,
		Result:        result,
		NewCredential: newCredential,
	})
}
