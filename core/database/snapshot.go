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

// core/database/snapshot.go
// 导出使用的一致性快照

package database

import (
	"context"
)

// RawData 整库锁下读取的快照，后续导出流程不再访问数据库
type RawData struct {
	AuditID                  uint64                       `json:"audit_id"`
	GlobalOptions            []NamedConfGlobalOption      `json:"named_conf_global_options"`
	ServerSetViewAssignments []DnsServerSetViewAssignment `json:"dns_server_set_view_assignments"`
	ServerSetAssignments     []DnsServerSetAssignment     `json:"dns_server_set_assignments"`
	ServerSets               []DnsServerSet               `json:"dns_server_sets"`
	Servers                  []DnsServer                  `json:"dns_servers"`
	ViewDependencies         []ViewDependencyAssignment   `json:"view_dependency_assignments"`
	ViewACLAssignments       []ViewACLAssignment          `json:"view_acl_assignments"`
	ACLRanges                []ACLRange                   `json:"acls"`
	Records                  []RecordWithArgs             `json:"records"`
	ZoneViewAssignments      []ZoneViewAssignment         `json:"zone_view_assignments"`
	RecordArguments          []RecordArgument             `json:"record_arguments"`
	Views                    []View                       `json:"views"`
	ReverseRanges            []ReverseRangeZoneAssignment `json:"reverse_range_zone_assignments"`
}

// GetRawData 加整库锁读取快照，快照的审计ID是读取时的最大日志ID
func (s *Store) GetRawData(ctx context.Context) (*RawData, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := tx.loadRawData()
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("回滚事务失败: %v", rbErr)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return raw, nil
}

func (t *Tx) loadRawData() (*RawData, error) {
	if err := t.LockAll(); err != nil {
		return nil, err
	}

	raw := &RawData{}
	var err error

	if raw.GlobalOptions, err = t.ListNamedConfGlobalOptions(nil); err != nil {
		return nil, err
	}
	if raw.ServerSetViewAssignments, err = t.ListDnsServerSetViewAssignments(nil); err != nil {
		return nil, err
	}
	if raw.ServerSetAssignments, err = t.ListDnsServerSetAssignments(nil); err != nil {
		return nil, err
	}
	if raw.ServerSets, err = find[DnsServerSet](t, "dns_server_sets", nil, "dns_server_set_name"); err != nil {
		return nil, err
	}
	if raw.Servers, err = t.ListDnsServers(nil); err != nil {
		return nil, err
	}
	if raw.ViewDependencies, err = t.ListViewDependencyAssignments(nil); err != nil {
		return nil, err
	}
	if raw.ViewACLAssignments, err = t.ListViewACLAssignments(nil); err != nil {
		return nil, err
	}
	if raw.ACLRanges, err = t.ListACLRanges(nil); err != nil {
		return nil, err
	}
	if raw.Records, err = t.ListRecordsWithArguments(nil); err != nil {
		return nil, err
	}
	if raw.ZoneViewAssignments, err = t.ListZoneViewAssignments(nil); err != nil {
		return nil, err
	}
	if raw.RecordArguments, err = t.ListRecordArguments(nil); err != nil {
		return nil, err
	}
	if raw.Views, err = find[View](t, "views", nil, "view_name"); err != nil {
		return nil, err
	}
	if raw.ReverseRanges, err = t.ListReverseRanges(nil); err != nil {
		return nil, err
	}
	if raw.AuditID, err = t.MaxAuditID(); err != nil {
		return nil, err
	}
	return raw, nil
}
