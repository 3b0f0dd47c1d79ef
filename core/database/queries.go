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

// core/database/queries.go
// 按用途拆分的关联查询

package database

import (
	"Roster/core/common"
)

// RecordWithArgs 记录及其参数
type RecordWithArgs struct {
	Record
	Arguments map[string]string `json:"arguments"`
}

// find 按条件查询模型列表
func find[T any](t *Tx, table string, filter Row, order string) ([]T, error) {
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	if def, ok := tables[table]; ok {
		if err := t.validateColumns(table, def, filter, false); err != nil {
			return nil, err
		}
	}

	var out []T
	query := t.db.Order(order)
	if conditions := filter.compact(); len(conditions) > 0 {
		query = query.Where(conditions)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, translateDBError(err, "查询%s失败", table)
	}
	return out, nil
}

// ListRecordsWithArguments 查询记录并附带参数
func (t *Tx) ListRecordsWithArguments(filter Row) ([]RecordWithArgs, error) {
	records, err := find[Record](t, "records", filter, "id")
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []RecordWithArgs{}, nil
	}

	ids := make([]uint64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}

	arguments := make(map[uint64]map[string]string, len(records))
	// 分批查询，避免 IN 列表过长
	const batch = 500
	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}
		var assignments []RecordArgumentAssignment
		if err := t.db.Where("record_id IN ?", ids[start:end]).Order("id").Find(&assignments).Error; err != nil {
			return nil, translateDBError(err, "查询记录参数失败")
		}
		for _, a := range assignments {
			if arguments[a.RecordID] == nil {
				arguments[a.RecordID] = make(map[string]string)
			}
			arguments[a.RecordID][a.ArgumentName] = a.ArgumentValue
		}
	}

	out := make([]RecordWithArgs, 0, len(records))
	for _, r := range records {
		args := arguments[r.ID]
		if args == nil {
			args = map[string]string{}
		}
		out = append(out, RecordWithArgs{Record: r, Arguments: args})
	}
	return out, nil
}

// MakeRecordWithArguments 写入记录及其参数
func (t *Tx) MakeRecordWithArguments(rec Record, args map[string]string) (uint64, error) {
	id, err := t.MakeRow("records", Row{
		"target":          rec.Target,
		"record_type":     rec.RecordType,
		"ttl":             rec.TTL,
		"zone_name":       rec.ZoneName,
		"view_dependency": rec.ViewDependency,
		"last_user":       rec.LastUser,
		"last_updated":    t.store.now(),
	})
	if err != nil {
		return 0, err
	}

	for name, value := range args {
		if _, err := t.MakeRow("record_arguments_records_assignments", Row{
			"record_id":      id,
			"argument_name":  name,
			"argument_value": value,
		}); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// RemoveRecordByID 删除记录，参数随外键级联删除
func (t *Tx) RemoveRecordByID(id uint64) error {
	if _, err := t.RemoveRow("record_arguments_records_assignments", Row{"record_id": id}); err != nil {
		return err
	}
	removed, err := t.RemoveRow("records", Row{"id": id})
	if err != nil {
		return err
	}
	if removed == 0 {
		return common.NewError(common.KindCoreError, "Record %d not found", id)
	}
	return nil
}

// SetRecordArgument 修改记录的一个参数值
func (t *Tx) SetRecordArgument(recordID uint64, name, value string) error {
	updated, err := t.UpdateRow("record_arguments_records_assignments",
		Row{"record_id": recordID, "argument_name": name},
		Row{"argument_value": value})
	if err != nil {
		return err
	}
	if updated == 0 {
		return common.NewError(common.KindCoreError, "Record %d has no argument %s", recordID, name)
	}
	return nil
}

// TouchRecord 更新记录的修改人与修改时间
func (t *Tx) TouchRecord(recordID uint64, user string) error {
	_, err := t.UpdateRow("records", Row{"id": recordID}, Row{"last_user": user, "last_updated": t.store.now()})
	return err
}

// ListZoneViewAssignments 查询区域在各视图依赖中的实例
func (t *Tx) ListZoneViewAssignments(filter Row) ([]ZoneViewAssignment, error) {
	return find[ZoneViewAssignment](t, "zone_view_assignments", filter, "zone_name, view_dependency")
}

// ListViewDependencyAssignments 查询视图与依赖的关联
func (t *Tx) ListViewDependencyAssignments(filter Row) ([]ViewDependencyAssignment, error) {
	return find[ViewDependencyAssignment](t, "view_dependency_assignments", filter, "id")
}

// ListViewACLAssignments 查询视图的 ACL 关联
func (t *Tx) ListViewACLAssignments(filter Row) ([]ViewACLAssignment, error) {
	return find[ViewACLAssignment](t, "view_acl_assignments", filter, "id")
}

// ListACLRanges 查询 ACL 地址段
func (t *Tx) ListACLRanges(filter Row) ([]ACLRange, error) {
	return find[ACLRange](t, "acl_ranges", filter, "acl_name, id")
}

// ListRecordArguments 查询记录参数定义，按类型和顺序排序
func (t *Tx) ListRecordArguments(filter Row) ([]RecordArgument, error) {
	return find[RecordArgument](t, "record_arguments", filter, "record_type, argument_order")
}

// ListReverseRanges 查询反向区域地址段
func (t *Tx) ListReverseRanges(filter Row) ([]ReverseRangeZoneAssignment, error) {
	return find[ReverseRangeZoneAssignment](t, "reverse_range_zone_assignments", filter, "id")
}

// ListDnsServers 查询服务器
func (t *Tx) ListDnsServers(filter Row) ([]DnsServer, error) {
	return find[DnsServer](t, "dns_servers", filter, "dns_server_name")
}

// ListDnsServerSetAssignments 查询服务器组成员
func (t *Tx) ListDnsServerSetAssignments(filter Row) ([]DnsServerSetAssignment, error) {
	return find[DnsServerSetAssignment](t, "dns_server_set_assignments", filter, "id")
}

// ListDnsServerSetViewAssignments 查询服务器组中的视图，按 view_order 排序
func (t *Tx) ListDnsServerSetViewAssignments(filter Row) ([]DnsServerSetViewAssignment, error) {
	return find[DnsServerSetViewAssignment](t, "dns_server_set_view_assignments", filter, "dns_server_set_name, view_order, view_name")
}

// ListNamedConfGlobalOptions 查询 named.conf 全局选项历史
func (t *Tx) ListNamedConfGlobalOptions(filter Row) ([]NamedConfGlobalOption, error) {
	return find[NamedConfGlobalOption](t, "named_conf_global_options", filter, "options_created, id")
}

// ZoneExists 区域是否存在
func (t *Tx) ZoneExists(zoneName string) (bool, error) {
	zones, err := t.ListRow("zones", Row{"zone_name": zoneName}, false)
	if err != nil {
		return false, err
	}
	return len(zones) > 0, nil
}

// ViewExists 视图是否存在
func (t *Tx) ViewExists(viewName string) (bool, error) {
	views, err := t.ListRow("views", Row{"view_name": viewName}, false)
	if err != nil {
		return false, err
	}
	return len(views) > 0, nil
}
