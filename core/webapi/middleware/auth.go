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

// core/webapi/middleware/auth.go
// 用户名密码认证后端：local、ldap、fakeldap

package middleware

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"Roster/core/common"
	"Roster/core/database"
)

// 认证方式
const (
	AuthMethodLocal    = "local"
	AuthMethodLDAP     = "ldap"
	AuthMethodFakeLDAP = "fakeldap"
)

// Authenticator 校验用户名和密码，失败时返回 AuthError
type Authenticator interface {
	Authenticate(ctx context.Context, userName, password string) error
}

// NewAuthenticator 按 [credentials] authentication_method 选择认证后端
func NewAuthenticator(store *database.Store, cfg *common.Config) (Authenticator, error) {
	method := strings.ToLower(cfg.Get("credentials", "authentication_method"))
	switch method {
	case "", AuthMethodLocal:
		return &LocalAuthenticator{store: store}, nil
	case AuthMethodLDAP:
		server := cfg.Get("ldap", "server")
		bindDN := cfg.Get("ldap", "binddn")
		if server == "" || !strings.Contains(bindDN, "%s") {
			return nil, common.NewError(common.KindInvalidInput, "[ldap] needs server and a binddn containing %%s")
		}
		return &LDAPAuthenticator{
			server:  server,
			bindDN:  bindDN,
			useTLS:  cfg.GetBool("ldap", "tls", true),
			timeout: 10 * time.Second,
		}, nil
	case AuthMethodFakeLDAP:
		return NewFakeLDAPAuthenticator(cfg.Get("fakeldap", "users")), nil
	default:
		return nil, common.NewError(common.KindInvalidInput, "Unknown authentication method %s", method)
	}
}

// LocalAuthenticator 用 users 表中的 bcrypt 密码认证
type LocalAuthenticator struct {
	store *database.Store
}

// Authenticate 校验本地密码
func (a *LocalAuthenticator) Authenticate(ctx context.Context, userName, password string) error {
	return a.store.WithTx(ctx, func(tx *database.Tx) error {
		if _, ok := tx.ValidateUserPassword(userName, password); !ok {
			return common.NewError(common.KindAuthError, "Invalid user name or password")
		}
		return nil
	})
}

// LDAPAuthenticator 以用户自己的 DN 绑定 LDAP 服务器
type LDAPAuthenticator struct {
	server  string
	bindDN  string
	useTLS  bool
	timeout time.Duration
}

func (a *LDAPAuthenticator) connect() (*ldap.Conn, error) {
	host := a.server
	if u, err := url.Parse(a.server); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	tlsCfg := &tls.Config{ServerName: host}
	dialer := &net.Dialer{Timeout: a.timeout}

	if strings.HasPrefix(strings.ToLower(a.server), "ldaps://") {
		return ldap.DialURL(a.server, ldap.DialWithDialer(dialer), ldap.DialWithTLSConfig(tlsCfg))
	}

	conn, err := ldap.DialURL(a.server, ldap.DialWithDialer(dialer))
	if err != nil {
		return nil, err
	}
	if a.useTLS {
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}
	return conn, nil
}

// Authenticate 空密码一律拒绝，避免匿名绑定被当成认证成功
func (a *LDAPAuthenticator) Authenticate(_ context.Context, userName, password string) error {
	if userName == "" || password == "" {
		return common.NewError(common.KindAuthError, "Invalid user name or password")
	}
	conn, err := a.connect()
	if err != nil {
		return common.WrapError(common.KindAuthError, err, "Could not connect to LDAP server")
	}
	defer conn.Close()

	if err := conn.Bind(fmt.Sprintf(a.bindDN, ldap.EscapeDN(userName)), password); err != nil {
		return common.NewError(common.KindAuthError, "Invalid user name or password")
	}
	return nil
}

// FakeLDAPAuthenticator 测试用的认证后端，用户来自 [fakeldap] users
type FakeLDAPAuthenticator struct {
	users map[string]string
}

// NewFakeLDAPAuthenticator 解析 "user:password,user2:password2"
func NewFakeLDAPAuthenticator(spec string) *FakeLDAPAuthenticator {
	users := make(map[string]string)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		idx := strings.Index(pair, ":")
		if idx <= 0 {
			continue
		}
		users[pair[:idx]] = pair[idx+1:]
	}
	return &FakeLDAPAuthenticator{users: users}
}

func (a *FakeLDAPAuthenticator) Authenticate(_ context.Context, userName, password string) error {
	expected, ok := a.users[userName]
	if !ok || password == "" || expected != password {
		return common.NewError(common.KindAuthError, "Invalid user name or password")
	}
	return nil
}
