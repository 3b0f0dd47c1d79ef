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

// core/webapi/middleware/credentials.go
// 凭证签发与校验：凭证是 HS256 签名的 JWT，有效期由 credentials 表中的 last_used 决定

package middleware

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"Roster/core/common"
	"Roster/core/database"
)

const (
	// 最小密钥长度
	minSecretKeyLength = 32
	// 配置模板中的占位密钥，不能直接使用
	placeholderSecret = "change-this-roster-credential-secret"
	credentialIssuer  = "roster"
)

// credentialClaims 凭证中携带的声明，sub 为用户名，jti 为凭证ID
type credentialClaims struct {
	jwt.RegisteredClaims
}

// CredentialManager 凭证管理器
type CredentialManager struct {
	store        *database.Store
	secretKey    []byte
	expTime      time.Duration
	infRenewTime time.Duration
	logger       *common.Logger
}

// NewCredentialManager 按 [credentials] 与 [server] 配置创建凭证管理器
func NewCredentialManager(store *database.Store, cfg *common.Config) *CredentialManager {
	logger := common.NewComponentLogger("credentials")
	secret := cfg.Get("credentials", "secret")
	if secret == placeholderSecret || !validateSecretKey(secret) {
		logger.Warn("凭证密钥强度不足或仍为模板值，已生成临时密钥，重启后已签发的凭证全部失效")
		secret = generateStrongSecret()
	}
	return &CredentialManager{
		store:        store,
		secretKey:    []byte(secret),
		expTime:      cfg.GetSeconds("credentials", "exp_time", 3600),
		infRenewTime: cfg.GetSeconds("server", "inf_renew_time", 432000),
		logger:       logger,
	}
}

// validateSecretKey 密钥至少32个字符，且至少包含两类字符
func validateSecretKey(secret string) bool {
	if len(secret) < minSecretKeyLength {
		return false
	}
	var upper, lower, digit, other bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}
	classes := 0
	for _, ok := range []bool{upper, lower, digit, other} {
		if ok {
			classes++
		}
	}
	return classes >= 2
}

// generateStrongSecret 生成随机密钥
func generateStrongSecret() string {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand 不可用时退回到两个 uuid
		return uuid.NewString() + uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// sign 签发一个新的凭证字符串，返回凭证与凭证ID
func (m *CredentialManager) sign(userName string, now time.Time) (string, string, error) {
	id := uuid.NewString()
	claims := credentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userName,
			ID:       id,
			Issuer:   credentialIssuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", "", fmt.Errorf("签发凭证失败: %w", err)
	}
	return token, id, nil
}

// parse 校验签名并取出声明；有效期不看 JWT 时间字段，只看 credentials 表
func (m *CredentialManager) parse(credential string) (*credentialClaims, error) {
	claims := &credentialClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	token, err := parser.ParseWithClaims(credential, claims, func(*jwt.Token) (interface{}, error) {
		return m.secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, common.NewError(common.KindAuthError, "Invalid credential")
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, common.NewError(common.KindAuthError, "Invalid credential")
	}
	return claims, nil
}

// Issue 为已通过认证的用户签发凭证并保存
func (m *CredentialManager) Issue(ctx context.Context, userName string, infinite bool) (string, error) {
	token, id, err := m.sign(userName, m.store.Now())
	if err != nil {
		return "", err
	}
	err = m.store.WithTx(ctx, func(tx *database.Tx) error {
		return tx.MakeCredential(userName, id, infinite)
	})
	if err != nil {
		return "", err
	}
	m.logger.Info("为用户 %s 签发凭证 (infinite=%v)", userName, infinite)
	return token, nil
}

// Verify 校验用户的凭证并刷新其使用时间。
// 普通凭证在 exp_time 内未使用即过期并被删除；无期限凭证签发超过 inf_renew_time 后
// 换发新凭证，新凭证通过返回值交给调用方，旧凭证作废
func (m *CredentialManager) Verify(ctx context.Context, userName, credential string) (string, error) {
	claims, err := m.parse(credential)
	if err != nil {
		return "", err
	}
	if claims.Subject != userName {
		return "", common.NewError(common.KindAuthError, "Credential does not belong to %s", userName)
	}

	var renewed string
	var expired error
	err = m.store.WithTx(ctx, func(tx *database.Tx) error {
		cred, err := tx.GetCredential(claims.ID)
		if err != nil {
			return err
		}
		if cred.UserName != userName {
			return common.NewError(common.KindAuthError, "Credential does not belong to %s", userName)
		}

		now := m.store.Now()
		if cred.Infinite {
			if now.Sub(cred.Issued) < m.infRenewTime {
				return tx.TouchCredential(cred.CredentialID)
			}
			token, id, err := m.sign(userName, now)
			if err != nil {
				return err
			}
			if err := tx.MakeCredential(userName, id, true); err != nil {
				return err
			}
			renewed = token
			return tx.RemoveCredential(cred.CredentialID)
		}

		if now.Sub(cred.LastUsed) >= m.expTime {
			expired = common.NewError(common.KindAuthError, "Credential expired")
			return tx.RemoveCredential(cred.CredentialID)
		}
		return tx.TouchCredential(cred.CredentialID)
	})
	if err != nil {
		return "", err
	}
	if expired != nil {
		return "", expired
	}
	if renewed != "" {
		m.logger.Info("用户 %s 的无期限凭证已换发", userName)
	}
	return renewed, nil
}

// Revoke 作废一个凭证
func (m *CredentialManager) Revoke(ctx context.Context, credential string) error {
	claims, err := m.parse(credential)
	if err != nil {
		return err
	}
	return m.store.WithTx(ctx, func(tx *database.Tx) error {
		return tx.RemoveCredential(claims.ID)
	})
}

// RemoveExpired 删除所有已过期的普通凭证，返回删除数量
func (m *CredentialManager) RemoveExpired(ctx context.Context) (int, error) {
	removed := 0
	err := m.store.WithTx(ctx, func(tx *database.Tx) error {
		creds, err := tx.ListCredentials("")
		if err != nil {
			return err
		}
		now := m.store.Now()
		for _, cred := range creds {
			if cred.Infinite || now.Sub(cred.LastUsed) < m.expTime {
				continue
			}
			if err := tx.RemoveCredential(cred.CredentialID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
