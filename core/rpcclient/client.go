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

// core/rpcclient/client.go
// rosterd RPC 客户端

package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"Roster/core/common"
)

// RPC 路径，与服务端一致
const (
	pathCoreRun         = "/api/core_run"
	pathGetCredentials  = "/api/get_credentials"
	pathIsAuthenticated = "/api/is_authenticated"
)

// 响应体最大长度
const maxResponseSize = 64 << 20

var knownKinds = map[common.ErrorKind]bool{
	common.KindInvalidInput:          true,
	common.KindUnexpectedData:        true,
	common.KindReservedWord:          true,
	common.KindTransaction:           true,
	common.KindAuthError:             true,
	common.KindCoreError:             true,
	common.KindExporterFileError:     true,
	common.KindExporterNoFileError:   true,
	common.KindExporterFileNameError: true,
	common.KindExporterAuditIDError:  true,
	common.KindExporterListFileError: true,
	common.KindServerCheckError:      true,
	common.KindSchemaError:           true,
}

type response struct {
	Success       bool            `json:"success"`
	Result        json.RawMessage `json:"result"`
	ErrorType     string          `json:"error_type"`
	Message       string          `json:"message"`
	NewCredential string          `json:"new_credential"`
}

// Client 持有服务器地址和当前用户的凭证
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu         sync.Mutex
	userName   string
	credential string

	// 服务器续签凭证后调用，用于持久化新凭证
	onNewCredential func(userName, credential string)
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 使用自定义的 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout 设置请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithCredential 使用已有凭证
func WithCredential(userName, credential string) Option {
	return func(c *Client) {
		c.userName = userName
		c.credential = credential
	}
}

// OnNewCredential 凭证续签回调
func OnNewCredential(fn func(userName, credential string)) Option {
	return func(c *Client) { c.onNewCredential = fn }
}

// New 创建客户端，serverURL 形如 https://roster.example.com:8000
func New(serverURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Credential 返回当前用户名和凭证
func (c *Client) Credential() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userName, c.credential
}

func (c *Client) setCredential(userName, credential string) {
	c.mu.Lock()
	c.userName = userName
	c.credential = credential
	fn := c.onNewCredential
	c.mu.Unlock()
	if fn != nil {
		fn(userName, credential)
	}
}

// GetCredentials 用用户名和密码换取凭证，成功后客户端使用该凭证
func (c *Client) GetCredentials(ctx context.Context, userName, password string, infinite bool) (string, error) {
	body := map[string]interface{}{
		"user_name": userName,
		"password":  password,
		"infinite":  infinite,
	}
	var credential string
	if err := c.post(ctx, pathGetCredentials, body, &credential); err != nil {
		return "", err
	}
	c.setCredential(userName, credential)
	return credential, nil
}

// IsAuthenticated 检查当前凭证是否有效
func (c *Client) IsAuthenticated(ctx context.Context) (bool, error) {
	userName, credential := c.Credential()
	if credential == "" {
		return false, nil
	}
	body := map[string]interface{}{
		"user_name":  userName,
		"credential": credential,
	}
	var ok bool
	if err := c.post(ctx, pathIsAuthenticated, body, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// CoreRun 以关键字参数调用服务端 Core 方法，结果解码到 out（可为 nil）
func (c *Client) CoreRun(ctx context.Context, function string, kwargs map[string]interface{}, out interface{}) error {
	return c.CoreRunArgs(ctx, function, nil, kwargs, out)
}

// CoreRunArgs 同时传位置参数和关键字参数
func (c *Client) CoreRunArgs(ctx context.Context, function string, args []interface{}, kwargs map[string]interface{}, out interface{}) error {
	userName, credential := c.Credential()
	if credential == "" {
		return common.NewError(common.KindAuthError, "No credential, run get_credentials first")
	}
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	body := map[string]interface{}{
		"function_name": function,
		"user_name":     userName,
		"credential":    credential,
		"args":          args,
		"kwargs":        kwargs,
	}
	return c.post(ctx, pathCoreRun, body, out)
}

// post 发送请求并解析统一响应；失败时按 error_type 还原带类型的错误
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return common.WrapError(common.KindInvalidInput, err, "编码请求失败")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return common.WrapError(common.KindInvalidInput, err, "创建请求失败")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("连接服务器失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return common.WrapError(common.KindUnexpectedData, err, "无法解析服务器响应 (HTTP %d)", resp.StatusCode)
	}

	if r.NewCredential != "" {
		userName, _ := c.Credential()
		c.setCredential(userName, r.NewCredential)
	}
	if !r.Success {
		return remoteError(r)
	}
	if out == nil || len(r.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return common.WrapError(common.KindUnexpectedData, err, "无法解析返回结果")
	}
	return nil
}

func remoteError(r response) error {
	kind := common.ErrorKind(r.ErrorType)
	if !knownKinds[kind] {
		// InternalError、RateLimitError 等服务端错误
		return fmt.Errorf("%s: %s", r.ErrorType, r.Message)
	}
	return common.NewError(kind, "%s", r.Message)
}
