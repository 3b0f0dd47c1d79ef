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
// core/database/users_test.go
// 用户与凭证操作测试

package database

import (
	"errors"
	"strings"
	"testing"

	"Roster/core/common"
	"Roster/core/record"
)

// TestIsBcryptHash 测试bcrypt哈希检测函数
func TestIsBcryptHash(t *testing.T) {
	tests := []struct {
		name     string
		password string
		expected bool
	}{
		{"bcrypt $2a$ 格式", "$2a$12$abcdefghijklmnopqrstuvwx", true},
		{"bcrypt $2b$ 格式", "$2b$12$abcdefghijklmnopqrstuvwx", true},
		{"bcrypt $2y$ 格式", "$2y$12$abcdefghijklmnopqrstuvwx", true},
		{"普通密码", "admin123", false},
		{"空密码", "", false},
		{"其他哈希格式", "$5$rounds=5000$salt$hash", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isBcryptHash(tt.password)
			if result != tt.expected {
				t.Errorf("isBcryptHash(%q) = %v, want %v", tt.password, result, tt.expected)
			}
		})
	}
}

// TestHashPassword 测试密码哈希函数
func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"普通密码", "admin123"},
		{"空密码", ""},
		{"中等长度密码", strings.Repeat("a", 50)},
		{"已经是bcrypt格式", "$2a$12$abcdefghijklmnopqrstuvwx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := hashPassword(tt.password)
			if err != nil {
				t.Fatalf("hashPassword(%q) error = %v", tt.password, err)
			}

			switch {
			case tt.password == "" || isBcryptHash(tt.password):
				if result != tt.password {
					t.Errorf("hashPassword(%q) 应该返回原值", tt.password)
				}
			case !isBcryptHash(result):
				t.Errorf("hashPassword(%q) = %q, 应该是bcrypt格式", tt.password, result)
			}
		})
	}
}

// TestMakeUser 测试创建用户
func TestMakeUser(t *testing.T) {
	store := setupTestStore(t)
	tx := beginTestTx(t, store)

	tests := []struct {
		name   string
		user   string
		level  int
		passwd string
		want   error
	}{
		{"正常创建用户", "sharrell", record.AccessDNSAdmin, "password123", nil},
		{"外部认证用户", "jcollins", record.AccessUser, "", nil},
		{"重复用户名", "sharrell", record.AccessUser, "password456", common.ErrCore},
		{"非法访问级别", "shuey", 100, "", common.ErrUnexpectedData},
		{"保留字用户名", "default", record.AccessUser, "", common.ErrReservedWord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tx.MakeUser(tt.user, tt.level, tt.passwd)
			if tt.want == nil && err != nil {
				t.Fatalf("MakeUser(%s) error = %v", tt.user, err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("MakeUser(%s) error = %v, want %v", tt.user, err, tt.want)
			}
		})
	}

	users, err := tx.ListUsers("")
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	// 包含种子用户 tree_export_user
	if len(users) != 3 {
		t.Errorf("用户数量 = %d, want 3", len(users))
	}
}

// TestValidateUserPassword 测试本地密码验证
func TestValidateUserPassword(t *testing.T) {
	store := setupTestStore(t)
	tx := beginTestTx(t, store)

	if err := tx.MakeUser("sharrell", record.AccessDNSAdmin, "password123"); err != nil {
		t.Fatalf("创建测试用户失败: %v", err)
	}

	tests := []struct {
		name     string
		user     string
		password string
		wantOk   bool
	}{
		{"正确的凭据", "sharrell", "password123", true},
		{"错误的密码", "sharrell", "wrongpassword", false},
		{"不存在的用户", "nobody", "password123", false},
		{"没有本地密码的用户", TreeExportUser, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tx.ValidateUserPassword(tt.user, tt.password)
			if ok != tt.wantOk {
				t.Errorf("ValidateUserPassword(%q) = %v, want %v", tt.user, ok, tt.wantOk)
			}
		})
	}
}

// TestUpdateAndRemoveUser 测试更新和删除用户
func TestUpdateAndRemoveUser(t *testing.T) {
	store := setupTestStore(t)
	tx := beginTestTx(t, store)

	if err := tx.MakeUser("sharrell", record.AccessUser, "password123"); err != nil {
		t.Fatalf("创建测试用户失败: %v", err)
	}
	if err := tx.MakeCredential("sharrell", "cred-1", false); err != nil {
		t.Fatalf("保存凭证失败: %v", err)
	}

	t.Run("更新访问级别", func(t *testing.T) {
		level := record.AccessDomainAdmin
		if _, err := tx.UpdateUser("sharrell", &level, ""); err != nil {
			t.Fatalf("UpdateUser() error = %v", err)
		}
		user, err := tx.GetUser("sharrell")
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}
		if user.AccessLevel != record.AccessDomainAdmin {
			t.Errorf("AccessLevel = %d, want %d", user.AccessLevel, record.AccessDomainAdmin)
		}
	})

	t.Run("更新密码", func(t *testing.T) {
		if _, err := tx.UpdateUser("sharrell", nil, "newpassword456"); err != nil {
			t.Fatalf("UpdateUser() error = %v", err)
		}
		if _, ok := tx.ValidateUserPassword("sharrell", "newpassword456"); !ok {
			t.Errorf("新密码应能通过验证")
		}
	})

	t.Run("删除用户", func(t *testing.T) {
		removed, err := tx.RemoveUser("sharrell")
		if err != nil || removed != 1 {
			t.Fatalf("RemoveUser() = %d, %v", removed, err)
		}
		if _, err := tx.GetCredential("cred-1"); !errors.Is(err, common.ErrAuth) {
			t.Errorf("删除用户后凭证应不存在, got %v", err)
		}
	})
}
