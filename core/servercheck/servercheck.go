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

// core/servercheck/servercheck.go
// DNS服务器检查：可达性、BIND版本与部署工具探测

package servercheck

import (
	"context"
	"net"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"

	"Roster/core/common"
	"Roster/core/database"
)

const (
	// DefaultQueryTimeout 单次查询超时时间
	DefaultQueryTimeout = 5 * time.Second

	// DefaultPort 默认DNS端口
	DefaultPort = "53"

	// DefaultCheckWorkers 并发检查的工作协程数
	DefaultCheckWorkers = 5

	// UnknownVersion 无法获取版本时的取值
	UnknownVersion = "UNKNOWN"
)

// Tools 部署前需要在服务器上存在的工具
var Tools = []string{"named-checkzone", "named-checkconf", "named-compilezone", "tar"}

// ToolProber 探测服务器上的工具是否可用
type ToolProber interface {
	HasTool(ctx context.Context, server database.DnsServer, tool string) bool
}

// LocalToolProber 在本机 PATH 中查找工具，适用于导出机与服务器环境一致的部署
type LocalToolProber struct{}

// HasTool 工具在 PATH 中即视为可用
func (LocalToolProber) HasTool(_ context.Context, _ database.DnsServer, tool string) bool {
	_, err := exec.LookPath(tool)
	return err == nil
}

// ServerStatus 一台服务器的检查结果
type ServerStatus struct {
	ServerName   string          `json:"server_name" yaml:"server_name"`
	Reachable    bool            `json:"reachable" yaml:"reachable"`
	BindVersion  string          `json:"bind_version" yaml:"bind_version"`
	ResponseTime time.Duration   `json:"response_time" yaml:"response_time"`
	Tools        map[string]bool `json:"tools" yaml:"tools"`
	Error        string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// Checker 服务器检查器
type Checker struct {
	port    string
	timeout time.Duration
	workers int
	prober  ToolProber
	logger  *common.Logger
}

// NewChecker 创建检查器，prober 为 nil 时使用本机探测
func NewChecker(prober ToolProber) *Checker {
	if prober == nil {
		prober = LocalToolProber{}
	}
	return &Checker{
		port:    DefaultPort,
		timeout: DefaultQueryTimeout,
		workers: DefaultCheckWorkers,
		prober:  prober,
		logger:  common.NewComponentLogger("servercheck"),
	}
}

// SetPort 设置查询端口
func (c *Checker) SetPort(port string) {
	if port != "" {
		c.port = port
	}
}

// SetTimeout 设置单次查询超时
func (c *Checker) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.timeout = timeout
	}
}

func (c *Checker) address(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, c.port)
}

func (c *Checker) exchange(ctx context.Context, msg *dns.Msg, addr string) (*dns.Msg, time.Duration, error) {
	client := &dns.Client{Timeout: c.timeout}
	return client.ExchangeContext(ctx, msg, addr)
}

// CheckServer 查询根区 SOA 判断可达性，再读取 CHAOS version.bind 并探测工具
func (c *Checker) CheckServer(ctx context.Context, server database.DnsServer) (*ServerStatus, error) {
	addr := c.address(server.DnsServerName)
	status := &ServerStatus{
		ServerName:  server.DnsServerName,
		BindVersion: UnknownVersion,
		Tools:       make(map[string]bool, len(Tools)),
	}

	query := new(dns.Msg)
	query.SetQuestion(".", dns.TypeSOA)
	resp, rtt, err := c.exchange(ctx, query, addr)
	if err != nil {
		status.Error = err.Error()
		return status, common.WrapError(common.KindServerCheckError, err, "Server %s is not reachable", server.DnsServerName)
	}
	if resp == nil {
		status.Error = "empty response"
		return status, common.NewError(common.KindServerCheckError, "Server %s returned an empty response", server.DnsServerName)
	}
	status.Reachable = true
	status.ResponseTime = rtt
	c.logger.Debug("服务器 %s 可达，返回码: %s, 响应时间: %v", addr, dns.RcodeToString[resp.Rcode], rtt)

	if version, err := c.bindVersion(ctx, addr); err != nil {
		c.logger.Debug("读取服务器 %s 版本失败: %v", addr, err)
	} else {
		status.BindVersion = version
	}

	for _, tool := range Tools {
		status.Tools[tool] = c.prober.HasTool(ctx, server, tool)
	}
	return status, nil
}

func (c *Checker) bindVersion(ctx context.Context, addr string) (string, error) {
	query := new(dns.Msg)
	query.SetQuestion("version.bind.", dns.TypeTXT)
	query.Question[0].Qclass = dns.ClassCHAOS
	query.RecursionDesired = false

	resp, _, err := c.exchange(ctx, query, addr)
	if err != nil {
		return "", err
	}
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok && len(txt.Txt) > 0 {
			return strings.Join(txt.Txt, " "), nil
		}
	}
	return "", common.NewError(common.KindServerCheckError, "No version.bind answer from %s", addr)
}

// CheckServers 并发检查多台服务器，不可达的服务器在结果中标记而不中断其他检查
func (c *Checker) CheckServers(ctx context.Context, servers []database.DnsServer) []*ServerStatus {
	jobs := make(chan int)
	results := make([]*ServerStatus, len(servers))

	var wg sync.WaitGroup
	workers := c.workers
	if workers > len(servers) {
		workers = len(servers)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				status, err := c.CheckServer(ctx, servers[idx])
				if err != nil {
					c.logger.Warn("检查服务器 %s 失败: %v", servers[idx].DnsServerName, err)
				}
				results[idx] = status
			}
		}()
	}
	for i := range servers {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ServerName < results[j].ServerName
	})
	return results
}
