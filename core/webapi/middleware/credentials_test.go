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

// core/webapi/middleware/credentials_test.go
// 凭证管理器测试

package middleware

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/record"
)

const testSecret = "test-secret-key-for-roster-credentials-12345"

// testClock 可以手动拨动的时钟
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// setupCredentialTest 创建内存数据库、用户 alice 和凭证管理器
func setupCredentialTest(t *testing.T) (*CredentialManager, *database.Store, *testClock) {
	t.Helper()
	cfg := common.NewConfig()
	cfg.Set("database", "driver", "sqlite")
	cfg.Set("database", "database", ":memory:")
	cfg.Set("credentials", "secret", testSecret)
	cfg.Set("credentials", "exp_time", "3600")
	cfg.Set("server", "inf_renew_time", "86400")

	store, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("创建测试数据库失败: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InitSchema(); err != nil {
		t.Fatalf("初始化数据库失败: %v", err)
	}
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store.SetClock(clock.Now)

	err = store.WithTx(context.Background(), func(tx *database.Tx) error {
		if err := tx.MakeUser("alice", record.AccessUser, "alice-password"); err != nil {
			return err
		}
		return tx.MakeUser("bob", record.AccessUser, "bob-password")
	})
	if err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}
	return NewCredentialManager(store, cfg), store, clock
}

// TestValidateSecretKey 测试密钥强度验证
func TestValidateSecretKey(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected bool
	}{
		{"有效强密钥", "ThisIsAVeryStrongSecretKey123!@#abcdef", true},
		{"有效中等密钥-含特殊字符", "MySecretKey1234567890123456!@#$%", true},
		{"过短密钥", "short", false},
		{"仅小写字母-32字符", "abcdefghijklmnopqrstuvwxyzabcdef", false},
		{"仅数字-32字符", "12345678901234567890123456789012", false},
		{"空密钥", "", false},
		{"混合类型密钥-32字符", "Abc123!@#Def456$%^Ghi789&*()Jkl012", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := validateSecretKey(tt.secret); result != tt.expected {
				t.Errorf("validateSecretKey(%q) = %v, want %v", tt.secret, result, tt.expected)
			}
		})
	}
}

// TestGenerateStrongSecret 测试强密钥生成
func TestGenerateStrongSecret(t *testing.T) {
	secret1 := generateStrongSecret()
	secret2 := generateStrongSecret()

	if len(secret1) < minSecretKeyLength {
		t.Errorf("生成的密钥长度 %d 小于最小长度 %d", len(secret1), minSecretKeyLength)
	}
	if secret1 == secret2 {
		t.Error("两次生成的密钥不应该相同")
	}
}

// TestPlaceholderSecretReplaced 模板中的占位密钥不会被使用
func TestPlaceholderSecretReplaced(t *testing.T) {
	cfg := common.NewConfig()
	cfg.Set("credentials", "secret", placeholderSecret)
	m := NewCredentialManager(nil, cfg)
	if string(m.secretKey) == placeholderSecret {
		t.Error("占位密钥不应该被使用")
	}
}

// TestCredentialExpiry 测试普通凭证的有效期按最后使用时间计算
func TestCredentialExpiry(t *testing.T) {
	m, _, clock := setupCredentialTest(t)
	ctx := context.Background()

	cred, err := m.Issue(ctx, "alice", false)
	if err != nil {
		t.Fatalf("签发凭证失败: %v", err)
	}
	if strings.Count(cred, ".") != 2 {
		t.Fatalf("凭证格式不正确: %s", cred)
	}

	steps := []struct {
		name    string
		advance time.Duration
		wantErr bool
	}{
		{"签发后立即使用", 0, false},
		{"50分钟后使用", 50 * time.Minute, false},
		{"再过50分钟仍有效", 50 * time.Minute, false},
		{"闲置超过一小时后过期", 61 * time.Minute, true},
		{"过期后已被删除", 0, true},
	}
	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			clock.Advance(step.advance)
			renewed, err := m.Verify(ctx, "alice", cred)
			if step.wantErr {
				if !errors.Is(err, common.ErrAuth) {
					t.Errorf("期望 AuthError, 实际 %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("校验凭证失败: %v", err)
			}
			if renewed != "" {
				t.Errorf("普通凭证不应换发")
			}
		})
	}
}

// TestCredentialRejected 测试各种无效凭证
func TestCredentialRejected(t *testing.T) {
	m, _, _ := setupCredentialTest(t)
	ctx := context.Background()

	cred, err := m.Issue(ctx, "alice", false)
	if err != nil {
		t.Fatalf("签发凭证失败: %v", err)
	}
	other := &CredentialManager{store: m.store, secretKey: []byte("another-secret-key-for-roster-tests-9876"), expTime: time.Hour}
	forged, _, err := other.sign("alice", time.Now())
	if err != nil {
		t.Fatalf("签发伪造凭证失败: %v", err)
	}

	tests := []struct {
		name       string
		user       string
		credential string
	}{
		{"他人的凭证", "bob", cred},
		{"篡改的凭证", "alice", cred[:len(cred)-2] + "xx"},
		{"其他密钥签发", "alice", forged},
		{"空凭证", "alice", ""},
		{"非JWT字符串", "alice", "not-a-credential"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Verify(ctx, tt.user, tt.credential); !errors.Is(err, common.ErrAuth) {
				t.Errorf("期望 AuthError, 实际 %v", err)
			}
		})
	}

	if _, err := m.Verify(ctx, "alice", cred); err != nil {
		t.Errorf("无效请求不应影响有效凭证: %v", err)
	}
}

// TestInfiniteCredentialRenewal 测试无期限凭证的换发
func TestInfiniteCredentialRenewal(t *testing.T) {
	m, store, clock := setupCredentialTest(t)
	ctx := context.Background()

	cred, err := m.Issue(ctx, "alice", true)
	if err != nil {
		t.Fatalf("签发凭证失败: %v", err)
	}

	clock.Advance(10 * time.Hour)
	renewed, err := m.Verify(ctx, "alice", cred)
	if err != nil || renewed != "" {
		t.Fatalf("闲置10小时的无期限凭证应仍然有效且不换发: renewed=%q err=%v", renewed, err)
	}

	clock.Advance(15 * time.Hour)
	renewed, err = m.Verify(ctx, "alice", cred)
	if err != nil {
		t.Fatalf("校验无期限凭证失败: %v", err)
	}
	if renewed == "" || renewed == cred {
		t.Fatalf("超过 inf_renew_time 后应换发新凭证")
	}

	if _, err := m.Verify(ctx, "alice", cred); !errors.Is(err, common.ErrAuth) {
		t.Errorf("旧凭证应已作废, 实际 %v", err)
	}
	if again, err := m.Verify(ctx, "alice", renewed); err != nil || again != "" {
		t.Errorf("新凭证应有效且不再换发: again=%q err=%v", again, err)
	}

	var creds []database.Credential
	err = store.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		creds, err = tx.ListCredentials("alice")
		return err
	})
	if err != nil {
		t.Fatalf("查询凭证失败: %v", err)
	}
	if len(creds) != 1 || !creds[0].Infinite {
		t.Errorf("换发后应只剩一个无期限凭证: %+v", creds)
	}
}

// TestRevokeAndRemoveExpired 测试作废与清理
func TestRevokeAndRemoveExpired(t *testing.T) {
	m, _, clock := setupCredentialTest(t)
	ctx := context.Background()

	revoked, _ := m.Issue(ctx, "alice", false)
	if err := m.Revoke(ctx, revoked); err != nil {
		t.Fatalf("作废凭证失败: %v", err)
	}
	if _, err := m.Verify(ctx, "alice", revoked); !errors.Is(err, common.ErrAuth) {
		t.Errorf("作废后的凭证应无效, 实际 %v", err)
	}

	if _, err := m.Issue(ctx, "alice", false); err != nil {
		t.Fatalf("签发凭证失败: %v", err)
	}
	if _, err := m.Issue(ctx, "bob", false); err != nil {
		t.Fatalf("签发凭证失败: %v", err)
	}
	infinite, _ := m.Issue(ctx, "bob", true)

	clock.Advance(2 * time.Hour)
	removed, err := m.RemoveExpired(ctx)
	if err != nil {
		t.Fatalf("清理过期凭证失败: %v", err)
	}
	if removed != 2 {
		t.Errorf("清理了 %d 个凭证, 期望 2", removed)
	}
	if _, err := m.Verify(ctx, "bob", infinite); err != nil {
		t.Errorf("无期限凭证不应被清理: %v", err)
	}
}
