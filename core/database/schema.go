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

// core/database/schema.go
// 行接口使用的表结构定义与校验

package database

import (
	"sort"

	"Roster/core/common"
	"Roster/core/record"

	"gorm.io/gorm"
)

// columnDef 列定义
type columnDef struct {
	dataType string
	// required 新建行时必须提供
	required bool
	// reserved 值不能是保留字
	reserved bool
}

// tableDef 表定义
type tableDef struct {
	columns  map[string]columnDef
	newModel func() interface{}
	newSlice func() interface{}
	orderBy  string
}

func col(dataType string) columnDef         { return columnDef{dataType: dataType, required: true} }
func optionalCol(dataType string) columnDef { return columnDef{dataType: dataType} }
func nameCol() columnDef                    { return columnDef{dataType: record.UnicodeStringNotEmpty, required: true, reserved: true} }
func idCol() columnDef                      { return columnDef{dataType: record.UnsignedInt} }

// tables 行接口可以访问的表，audit_log、users、credentials、locks 通过专用方法访问
var tables = map[string]tableDef{
	"views": {
		columns: map[string]columnDef{
			"view_name":    nameCol(),
			"view_options": optionalCol(record.UnicodeString),
		},
		newModel: func() interface{} { return &View{} },
		newSlice: func() interface{} { return &[]View{} },
		orderBy:  "view_name",
	},
	"view_dependencies": {
		columns: map[string]columnDef{
			"view_dependency": col(record.UnicodeStringNotEmpty),
		},
		newModel: func() interface{} { return &ViewDependency{} },
		newSlice: func() interface{} { return &[]ViewDependency{} },
		orderBy:  "view_dependency",
	},
	"view_dependency_assignments": {
		columns: map[string]columnDef{
			"id":              idCol(),
			"view_name":       col(record.UnicodeStringNotEmpty),
			"view_dependency": col(record.UnicodeStringNotEmpty),
		},
		newModel: func() interface{} { return &ViewDependencyAssignment{} },
		newSlice: func() interface{} { return &[]ViewDependencyAssignment{} },
		orderBy:  "id",
	},
	"zones": {
		columns: map[string]columnDef{
			"zone_name": nameCol(),
		},
		newModel: func() interface{} { return &Zone{} },
		newSlice: func() interface{} { return &[]Zone{} },
		orderBy:  "zone_name",
	},
	"zone_types": {
		columns: map[string]columnDef{
			"zone_type": col(record.UnicodeStringNotEmpty),
		},
		newModel: func() interface{} { return &ZoneType{} },
		newSlice: func() interface{} { return &[]ZoneType{} },
		orderBy:  "zone_type",
	},
	"zone_view_assignments": {
		columns: map[string]columnDef{
			"id":              idCol(),
			"zone_name":       col(record.UnicodeStringNotEmpty),
			"view_dependency": col(record.UnicodeStringNotEmpty),
			"zone_type":       col(record.UnicodeStringNotEmpty),
			"zone_origin":     col(record.Hostname),
			"zone_options":    optionalCol(record.UnicodeString),
		},
		newModel: func() interface{} { return &ZoneViewAssignment{} },
		newSlice: func() interface{} { return &[]ZoneViewAssignment{} },
		orderBy:  "id",
	},
	"record_types": {
		columns: map[string]columnDef{
			"record_type": col(record.UnicodeStringNotEmpty),
		},
		newModel: func() interface{} { return &RecordType{} },
		newSlice: func() interface{} { return &[]RecordType{} },
		orderBy:  "record_type",
	},
	"data_types": {
		columns: map[string]columnDef{
			"data_type": col(record.UnicodeStringNotEmpty),
		},
		newModel: func() interface{} { return &DataType{} },
		newSlice: func() interface{} { return &[]DataType{} },
		orderBy:  "data_type",
	},
	"record_arguments": {
		columns: map[string]columnDef{
			"id":                 idCol(),
			"record_type":        col(record.UnicodeStringNotEmpty),
			"argument_name":      col(record.UnicodeStringNotEmpty),
			"argument_order":     col(record.UnsignedInt),
			"argument_data_type": col(record.UnicodeStringNotEmpty),
		},
		newModel: func() interface{} { return &RecordArgument{} },
		newSlice: func() interface{} { return &[]RecordArgument{} },
		orderBy:  "record_type, argument_order",
	},
	"records": {
		columns: map[string]columnDef{
			"id":              idCol(),
			"target":          col(record.Target),
			"record_type":     col(record.UnicodeStringNotEmpty),
			"ttl":             col(record.UnsignedInt),
			"zone_name":       col(record.UnicodeStringNotEmpty),
			"view_dependency": col(record.UnicodeStringNotEmpty),
			"last_user":       optionalCol(record.UnicodeString),
			"last_updated":    optionalCol(record.DateTime),
		},
		newModel: func() interface{} { return &Record{} },
		newSlice: func() interface{} { return &[]Record{} },
		orderBy:  "id",
	},
	"record_arguments_records_assignments": {
		columns: map[string]columnDef{
			"id":             idCol(),
			"record_id":      col(record.UnsignedInt),
			"argument_name":  col(record.UnicodeStringNotEmpty),
			"argument_value": col(record.UnicodeString),
		},
		newModel: func() interface{} { return &RecordArgumentAssignment{} },
		newSlice: func() interface{} { return &[]RecordArgumentAssignment{} },
		orderBy:  "id",
	},
	"acls": {
		columns: map[string]columnDef{
			"acl_name": nameCol(),
		},
		newModel: func() interface{} { return &ACL{} },
		newSlice: func() interface{} { return &[]ACL{} },
		orderBy:  "acl_name",
	},
	"acl_ranges": {
		columns: map[string]columnDef{
			"id":            idCol(),
			"acl_name":      col(record.UnicodeStringNotEmpty),
			"cidr_block":    col(record.CIDRBlock),
			"range_allowed": col(record.IntBool),
		},
		newModel: func() interface{} { return &ACLRange{} },
		newSlice: func() interface{} { return &[]ACLRange{} },
		orderBy:  "id",
	},
	"view_acl_assignments": {
		columns: map[string]columnDef{
			"id":                  idCol(),
			"view_name":           col(record.UnicodeStringNotEmpty),
			"acl_name":            col(record.UnicodeStringNotEmpty),
			"dns_server_set_name": col(record.UnicodeStringNotEmpty),
			"range_allowed":       col(record.IntBool),
		},
		newModel: func() interface{} { return &ViewACLAssignment{} },
		newSlice: func() interface{} { return &[]ViewACLAssignment{} },
		orderBy:  "id",
	},
	"dns_servers": {
		columns: map[string]columnDef{
			"dns_server_name": nameCol(),
			"ssh_user":        optionalCol(record.UnicodeString),
			"bind_dir":        optionalCol(record.UnicodeString),
			"test_dir":        optionalCol(record.UnicodeString),
		},
		newModel: func() interface{} { return &DnsServer{} },
		newSlice: func() interface{} { return &[]DnsServer{} },
		orderBy:  "dns_server_name",
	},
	"dns_server_sets": {
		columns: map[string]columnDef{
			"dns_server_set_name": nameCol(),
		},
		newModel: func() interface{} { return &DnsServerSet{} },
		newSlice: func() interface{} { return &[]DnsServerSet{} },
		orderBy:  "dns_server_set_name",
	},
	"dns_server_set_assignments": {
		columns: map[string]columnDef{
			"id":                  idCol(),
			"dns_server_name":     col(record.UnicodeStringNotEmpty),
			"dns_server_set_name": col(record.UnicodeStringNotEmpty),
		},
		newModel: func() interface{} { return &DnsServerSetAssignment{} },
		newSlice: func() interface{} { return &[]DnsServerSetAssignment{} },
		orderBy:  "id",
	},
	"dns_server_set_view_assignments": {
		columns: map[string]columnDef{
			"id":                  idCol(),
			"dns_server_set_name": col(record.UnicodeStringNotEmpty),
			"view_name":           col(record.UnicodeStringNotEmpty),
			"view_order":          col(record.UnsignedInt),
			"view_options":        optionalCol(record.UnicodeString),
		},
		newModel: func() interface{} { return &DnsServerSetViewAssignment{} },
		newSlice: func() interface{} { return &[]DnsServerSetViewAssignment{} },
		orderBy:  "id",
	},
	"reverse_range_zone_assignments": {
		columns: map[string]columnDef{
			"id":         idCol(),
			"zone_name":  col(record.UnicodeStringNotEmpty),
			"cidr_block": col(record.CIDRBlock),
		},
		newModel: func() interface{} { return &ReverseRangeZoneAssignment{} },
		newSlice: func() interface{} { return &[]ReverseRangeZoneAssignment{} },
		orderBy:  "id",
	},
	"named_conf_global_options": {
		columns: map[string]columnDef{
			"id":                  idCol(),
			"dns_server_set_name": col(record.UnicodeStringNotEmpty),
			"global_options":      col(record.UnicodeString),
			"options_created":     col(record.DateTime),
		},
		newModel: func() interface{} { return &NamedConfGlobalOption{} },
		newSlice: func() interface{} { return &[]NamedConfGlobalOption{} },
		orderBy:  "id",
	},
	"reserved_words": {
		columns: map[string]columnDef{
			"id":            idCol(),
			"reserved_word": col(record.UnicodeStringNotEmpty),
		},
		newModel: func() interface{} { return &ReservedWord{} },
		newSlice: func() interface{} { return &[]ReservedWord{} },
		orderBy:  "id",
	},
}

// TableNames 返回行接口支持的表名
func TableNames() []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lookupTable 查找表定义
func lookupTable(table string) (tableDef, error) {
	def, ok := tables[table]
	if !ok {
		return tableDef{}, common.NewError(common.KindInvalidInput, "Table %s does not exist", table)
	}
	return def, nil
}

// validateColumns 校验列名与值的数据类型，nil 值视为通配
func (t *Tx) validateColumns(table string, def tableDef, row Row, checkReserved bool) error {
	for name, value := range row {
		column, ok := def.columns[name]
		if !ok {
			return common.NewError(common.KindInvalidInput, "Column %s does not exist in table %s", name, table)
		}
		if value == nil {
			continue
		}
		if err := record.CheckDataType(column.dataType, value); err != nil {
			return common.NewError(common.KindUnexpectedData, "Invalid data type %s for %s: %v", column.dataType, name, value)
		}
		if checkReserved && column.reserved {
			reserved, err := t.store.reservedWordSet(t.db)
			if err != nil {
				return err
			}
			if str, ok := value.(string); ok && record.IsReservedWord(str, reserved) {
				return common.NewError(common.KindReservedWord, "Reserved word %s found, unable to complete request", str)
			}
		}
	}
	return nil
}

// validateNewRow 新建行时所有必填列都要提供且不能为 nil
func (t *Tx) validateNewRow(table string, def tableDef, row Row) error {
	for name, column := range def.columns {
		if !column.required {
			continue
		}
		if value, ok := row[name]; !ok || value == nil {
			return common.NewError(common.KindInvalidInput, "Missing column %s for table %s", name, table)
		}
	}
	return t.validateColumns(table, def, row, true)
}

// reservedWordSet 读取运维追加的保留字，每个 Store 只读一次
// 读取使用调用方事务的连接，sqlite 只有一个连接
func (s *Store) reservedWordSet(db *gorm.DB) (map[string]bool, error) {
	s.reservedOnce.Do(func() {
		var words []ReservedWord
		if err := db.Find(&words).Error; err != nil {
			s.reservedErr = common.WrapError(common.KindTransaction, err, "读取保留字失败")
			return
		}
		s.reservedWords = make(map[string]bool, len(words))
		for _, w := range words {
			s.reservedWords[w.ReservedWord] = true
		}
	})
	return s.reservedWords, s.reservedErr
}
