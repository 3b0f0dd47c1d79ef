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

// core/database/audit.go
// 审计日志写入与查询

package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"Roster/core/common"

	"gorm.io/datatypes"
)

// AuditFilter 审计日志查询条件，零值表示不限制
type AuditFilter struct {
	UserName string
	Action   string
	Success  *bool
	Begin    time.Time
	End      time.Time
	MinID    uint64
	Limit    int
}

// LogAction 在当前事务中写入一条审计日志，返回日志ID
func (t *Tx) LogAction(userName, action string, data interface{}, success bool) (uint64, error) {
	if err := t.checkActive(); err != nil {
		return 0, err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return 0, common.WrapError(common.KindUnexpectedData, err, "序列化审计数据失败")
	}

	entry := AuditLog{
		UserName:  userName,
		Action:    action,
		Data:      datatypes.JSON(payload),
		Success:   success,
		Timestamp: t.store.now(),
	}
	if err := t.db.Create(&entry).Error; err != nil {
		return 0, translateDBError(err, "写入审计日志失败")
	}
	return entry.ID, nil
}

// MaxAuditID 返回审计日志当前最大ID，没有日志时返回 0
func (t *Tx) MaxAuditID() (uint64, error) {
	if err := t.checkActive(); err != nil {
		return 0, err
	}
	var maxID sql.NullInt64
	if err := t.db.Model(&AuditLog{}).Select("MAX(id)").Row().Scan(&maxID); err != nil {
		return 0, translateDBError(err, "读取审计日志ID失败")
	}
	if !maxID.Valid {
		return 0, nil
	}
	return uint64(maxID.Int64), nil
}

// ListAuditLog 查询审计日志，按ID升序
func (t *Tx) ListAuditLog(filter AuditFilter) ([]AuditLog, error) {
	if err := t.checkActive(); err != nil {
		return nil, err
	}

	query := t.db.Model(&AuditLog{}).Order("id")
	if filter.UserName != "" {
		query = query.Where("user_name = ?", filter.UserName)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Success != nil {
		query = query.Where("success = ?", *filter.Success)
	}
	if !filter.Begin.IsZero() {
		query = query.Where("timestamp >= ?", filter.Begin)
	}
	if !filter.End.IsZero() {
		query = query.Where("timestamp <= ?", filter.End)
	}
	if filter.MinID > 0 {
		query = query.Where("id >= ?", filter.MinID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var entries []AuditLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, translateDBError(err, "查询审计日志失败")
	}
	return entries, nil
}
