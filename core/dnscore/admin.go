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

// core/dnscore/admin.go
// 用户管理、审计日志查询与维护模式

package dnscore

import (
	"context"
	"encoding/json"
	"time"

	"Roster/core/database"
	"Roster/core/record"
)

// UserInfo 用户信息，不包含密码
type UserInfo struct {
	UserName    string `json:"user_name" yaml:"user_name"`
	AccessLevel int    `json:"access_level" yaml:"access_level"`
	LevelName   string `json:"access_level_name" yaml:"access_level_name"`
	HasPassword bool   `json:"has_password" yaml:"has_password"`
}

// AuditQuery 审计日志查询条件
type AuditQuery struct {
	UserName string    `json:"user_name"`
	Action   string    `json:"action"`
	Success  *bool     `json:"success"`
	Begin    time.Time `json:"begin_timestamp"`
	End      time.Time `json:"end_timestamp"`
}

// AuditEntry 一条审计日志
type AuditEntry struct {
	ID        uint64          `json:"audit_log_id" yaml:"audit_log_id"`
	UserName  string          `json:"user_name" yaml:"user_name"`
	Action    string          `json:"action" yaml:"action"`
	Data      json.RawMessage `json:"data" yaml:"-"`
	Success   bool            `json:"success" yaml:"success"`
	Timestamp time.Time       `json:"timestamp" yaml:"timestamp"`
}

// MakeUser 创建用户，审计日志中不记录密码
func (c *Core) MakeUser(ctx context.Context, userName string, accessLevel int, password string) error {
	data := auditArgs{"user_name": userName, "access_level": accessLevel}
	_, err := run(ctx, c, "MakeUser", data, func(tx *database.Tx) (struct{}, error) {
		return struct{}{}, tx.MakeUser(userName, accessLevel, password)
	})
	return err
}

// RemoveUser 删除用户及其凭证
func (c *Core) RemoveUser(ctx context.Context, userName string) (int64, error) {
	return run(ctx, c, "RemoveUser", auditArgs{"user_name": userName}, func(tx *database.Tx) (int64, error) {
		return tx.RemoveUser(userName)
	})
}

// UpdateUser 修改用户访问级别或密码
func (c *Core) UpdateUser(ctx context.Context, userName string, accessLevel *int, password string) (int64, error) {
	data := auditArgs{"search_user_name": userName, "update_access_level": accessLevel, "update_password": password != ""}
	return run(ctx, c, "UpdateUser", data, func(tx *database.Tx) (int64, error) {
		return tx.UpdateUser(userName, accessLevel, password)
	})
}

// ListUsers 列出用户
func (c *Core) ListUsers(ctx context.Context, userName string) ([]UserInfo, error) {
	return run(ctx, c, "ListUsers", auditArgs{"user_name": userName}, func(tx *database.Tx) ([]UserInfo, error) {
		users, err := tx.ListUsers(userName)
		if err != nil {
			return nil, err
		}
		result := make([]UserInfo, 0, len(users))
		for _, u := range users {
			result = append(result, UserInfo{
				UserName:    u.UserName,
				AccessLevel: u.AccessLevel,
				LevelName:   record.ValidAccessLevels[u.AccessLevel],
				HasPassword: u.PasswordHash != "",
			})
		}
		return result, nil
	})
}

// ListAuditLog 查询审计日志
func (c *Core) ListAuditLog(ctx context.Context, query AuditQuery) ([]AuditEntry, error) {
	data := auditArgs{
		"user_name": query.UserName, "action": query.Action, "success": query.Success,
		"begin_timestamp": query.Begin, "end_timestamp": query.End,
	}
	return run(ctx, c, "ListAuditLog", data, func(tx *database.Tx) ([]AuditEntry, error) {
		logs, err := tx.ListAuditLog(database.AuditFilter{
			UserName: query.UserName,
			Action:   query.Action,
			Success:  query.Success,
			Begin:    query.Begin,
			End:      query.End,
		})
		if err != nil {
			return nil, err
		}
		result := make([]AuditEntry, 0, len(logs))
		for _, l := range logs {
			result = append(result, AuditEntry{
				ID:        l.ID,
				UserName:  l.UserName,
				Action:    l.Action,
				Data:      json.RawMessage(l.Data),
				Success:   l.Success,
				Timestamp: l.Timestamp,
			})
		}
		return result, nil
	})
}

// SetMaintenanceFlag 开启或关闭维护模式
func (c *Core) SetMaintenanceFlag(ctx context.Context, on bool) error {
	_, err := run(ctx, c, "SetMaintenanceFlag", auditArgs{"flag": on}, func(tx *database.Tx) (struct{}, error) {
		return struct{}{}, tx.SetMaintenanceFlag(on)
	})
	return err
}

// CheckMaintenanceFlag 查询维护模式
func (c *Core) CheckMaintenanceFlag(ctx context.Context) (bool, error) {
	return run(ctx, c, "CheckMaintenanceFlag", nil, func(tx *database.Tx) (bool, error) {
		return tx.CheckMaintenanceFlag()
	})
}
