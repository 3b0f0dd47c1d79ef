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

// core/database/rows.go
// 通用行接口：MakeRow / RemoveRow / UpdateRow / ListRow

package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"Roster/core/common"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Row 以列名为键的一行数据，查询条件中值为 nil 的列视为通配
type Row map[string]interface{}

// String 读取字符串列
func (r Row) String(column string) string {
	if v, ok := r[column].(string); ok {
		return v
	}
	return ""
}

// Bool 读取布尔列
func (r Row) Bool(column string) bool {
	v, _ := r[column].(bool)
	return v
}

// Uint 读取整数列
func (r Row) Uint(column string) uint64 {
	switch v := r[column].(type) {
	case uint64:
		return v
	case uint32:
		return uint64(v)
	case uint:
		return uint64(v)
	case int:
		return uint64(v)
	case int64:
		return uint64(v)
	case float64:
		return uint64(v)
	}
	return 0
}

// Time 读取时间列
func (r Row) Time(column string) time.Time {
	v, _ := r[column].(time.Time)
	return v
}

// compact 去掉值为 nil 的通配列
func (r Row) compact() map[string]interface{} {
	conditions := make(map[string]interface{}, len(r))
	for k, v := range r {
		if v != nil {
			conditions[k] = v
		}
	}
	return conditions
}

// MakeRow 新建一行，返回自增ID（无自增列的表返回0）
func (t *Tx) MakeRow(table string, row Row) (uint64, error) {
	if err := t.checkActive(); err != nil {
		return 0, err
	}
	def, err := lookupTable(table)
	if err != nil {
		return 0, err
	}
	if err := t.validateNewRow(table, def, row); err != nil {
		return 0, err
	}
	if err := t.waitForBigLock(); err != nil {
		return 0, err
	}

	model := def.newModel()
	if err := rowToModel(row, model); err != nil {
		return 0, err
	}
	if err := t.db.Create(model).Error; err != nil {
		return 0, translateDBError(err, "新建%s记录失败", table)
	}

	return modelID(model), nil
}

// RemoveRow 删除与 row 完全匹配的行，返回删除的行数
func (t *Tx) RemoveRow(table string, row Row) (int64, error) {
	if err := t.checkActive(); err != nil {
		return 0, err
	}
	def, err := lookupTable(table)
	if err != nil {
		return 0, err
	}
	if err := t.validateColumns(table, def, row, false); err != nil {
		return 0, err
	}
	conditions := row.compact()
	if len(conditions) == 0 {
		return 0, common.NewError(common.KindInvalidInput, "Refusing to remove all rows from %s", table)
	}
	if err := t.waitForBigLock(); err != nil {
		return 0, err
	}

	result := t.db.Where(conditions).Delete(def.newModel())
	if result.Error != nil {
		return 0, translateDBError(result.Error, "删除%s记录失败", table)
	}
	return result.RowsAffected, nil
}

// UpdateRow 更新匹配 search 的行，返回更新的行数
func (t *Tx) UpdateRow(table string, search, update Row) (int64, error) {
	if err := t.checkActive(); err != nil {
		return 0, err
	}
	def, err := lookupTable(table)
	if err != nil {
		return 0, err
	}
	if err := t.validateColumns(table, def, search, false); err != nil {
		return 0, err
	}
	if err := t.validateColumns(table, def, update, true); err != nil {
		return 0, err
	}
	conditions := search.compact()
	if len(conditions) == 0 {
		return 0, common.NewError(common.KindInvalidInput, "Refusing to update all rows in %s", table)
	}
	changes := update.compact()
	if len(changes) == 0 {
		return 0, nil
	}
	if err := t.waitForBigLock(); err != nil {
		return 0, err
	}

	result := t.db.Model(def.newModel()).Where(conditions).Updates(changes)
	if result.Error != nil {
		return 0, translateDBError(result.Error, "更新%s记录失败", table)
	}
	return result.RowsAffected, nil
}

// ListRow 查询匹配 filter 的行，按主键排序；lockRows 为 true 时加行锁（sqlite 除外）
func (t *Tx) ListRow(table string, filter Row, lockRows bool) ([]Row, error) {
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	def, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	if err := t.validateColumns(table, def, filter, false); err != nil {
		return nil, err
	}

	query := t.db.Model(def.newModel()).Order(def.orderBy)
	if conditions := filter.compact(); len(conditions) > 0 {
		query = query.Where(conditions)
	}
	if lockRows && t.store.driver != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	slice := def.newSlice()
	if err := query.Find(slice).Error; err != nil {
		return nil, translateDBError(err, "查询%s失败", table)
	}
	return modelsToRows(slice), nil
}

// rowToModel 通过 json 标签把行写入模型
func rowToModel(row Row, model interface{}) error {
	data, err := json.Marshal(row)
	if err != nil {
		return common.WrapError(common.KindUnexpectedData, err, "序列化行数据失败")
	}
	if err := json.Unmarshal(data, model); err != nil {
		return common.WrapError(common.KindUnexpectedData, err, "行数据与表结构不匹配")
	}
	return nil
}

// modelID 读取模型的 ID 字段
func modelID(model interface{}) uint64 {
	v := reflect.Indirect(reflect.ValueOf(model))
	field := v.FieldByName("ID")
	if !field.IsValid() || field.Kind() != reflect.Uint64 {
		return 0
	}
	return field.Uint()
}

// modelsToRows 把模型切片转换为行，列名取 json 标签
func modelsToRows(slice interface{}) []Row {
	v := reflect.Indirect(reflect.ValueOf(slice))
	rows := make([]Row, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		rows = append(rows, modelToRow(v.Index(i)))
	}
	return rows
}

func modelToRow(v reflect.Value) Row {
	v = reflect.Indirect(v)
	row := make(Row, v.NumField())
	typ := v.Type()
	for i := 0; i < typ.NumField(); i++ {
		name := strings.Split(typ.Field(i).Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		row[name] = v.Field(i).Interface()
	}
	return row
}

// translateDBError 把驱动错误转换为 Roster 错误，约束冲突视为业务错误
func translateDBError(err error, format string, args ...interface{}) error {
	message := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey), isConstraintError(err):
		return common.WrapError(common.KindCoreError, err, "%s: 违反唯一性或外键约束", message)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return common.WrapError(common.KindCoreError, err, "%s: 记录不存在", message)
	}
	return common.WrapError(common.KindTransaction, err, "%s", message)
}

// isConstraintError 识别各驱动的约束冲突错误文本
func isConstraintError(err error) bool {
	text := strings.ToLower(err.Error())
	for _, marker := range []string{"unique constraint", "foreign key constraint", "duplicate entry", "duplicate key", "violates"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
