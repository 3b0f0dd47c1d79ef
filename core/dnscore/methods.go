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

// core/dnscore/methods.go
// RPC 可调用的方法及其访问要求

package dnscore

import (
	"sort"

	"Roster/core/record"
)

// MethodInfo 方法的访问要求，Params 为位置参数的顺序
type MethodInfo struct {
	RequiresTargetCheck bool     `json:"requires_target_check"`
	RequiresWrite       bool     `json:"requires_write"`
	MinAccessLevel      int      `json:"min_access_level"`
	Params              []string `json:"params"`
}

func read(params ...string) MethodInfo {
	return MethodInfo{MinAccessLevel: record.AccessUser, Params: params}
}

func adminRead(params ...string) MethodInfo {
	return MethodInfo{MinAccessLevel: record.AccessDNSAdmin, Params: params}
}

func write(level int, params ...string) MethodInfo {
	return MethodInfo{RequiresWrite: true, MinAccessLevel: level, Params: params}
}

func targetWrite(params ...string) MethodInfo {
	return MethodInfo{RequiresTargetCheck: true, RequiresWrite: true, MinAccessLevel: record.AccessUser, Params: params}
}

// SupportedMethods 可以通过 CoreRun 调用的方法
var SupportedMethods = map[string]MethodInfo{
	// 视图
	"MakeView":                   write(record.AccessDNSAdmin, "view_name", "view_options"),
	"RemoveView":                 write(record.AccessDNSAdmin, "view_name"),
	"UpdateView":                 write(record.AccessDNSAdmin, "search_view_name", "update_view_options"),
	"ListViews":                  read("view_name"),
	"MakeViewAssignment":         write(record.AccessDNSAdmin, "view_superset", "view_subset"),
	"RemoveViewAssignment":       write(record.AccessDNSAdmin, "view_superset", "view_subset"),
	"ListViewAssignments":        read("view_superset"),
	"MakeViewToACLAssignments":   write(record.AccessDNSAdmin, "view_name", "dns_server_set", "acl_name", "acl_range_allowed"),
	"RemoveViewToACLAssignments": write(record.AccessDNSAdmin, "view_name", "dns_server_set", "acl_name"),
	"ListViewToACLAssignments":   read("view_name", "dns_server_set", "acl_name"),

	// 区域
	"MakeZone":                         write(record.AccessDomainAdmin, "zone_name", "zone_type", "zone_origin", "view_name", "zone_options", "make_soa"),
	"RemoveZone":                       write(record.AccessDomainAdmin, "zone_name", "view_name"),
	"ListZones":                        read("view_name"),
	"MakeReverseRangeZoneAssignment":   write(record.AccessDomainAdmin, "zone_name", "cidr_block"),
	"RemoveReverseRangeZoneAssignment": write(record.AccessDomainAdmin, "zone_name", "cidr_block"),
	"ListReverseRangeZoneAssignments":  read("zone_name"),

	// 记录
	"MakeRecord":                    targetWrite("record_type", "target", "zone_name", "record_args_dict", "view_name", "ttl"),
	"RemoveRecord":                  targetWrite("record_type", "target", "zone_name", "record_args_dict", "view_name", "ttl"),
	"UpdateRecord":                  targetWrite("search", "update"),
	"ListRecords":                   read("record_type", "target", "zone_name", "view_name", "ttl", "record_args_dict"),
	"ListRecordsByCIDRBlock":        read("cidr_block", "view_name"),
	"ProcessRecordsBatch":           targetWrite("delete_records", "add_records", "zone_import"),
	"GetPTRTarget":                  read("ip_address", "view_name"),
	"ListRecordArgumentDefinitions": read("record_type"),
	"ListZoneTypes":                 read(),
	"ListRecordTypes":               read(),

	// ACL
	"MakeACL":                write(record.AccessDNSAdmin, "acl_name", "cidr_block", "range_allowed"),
	"RemoveACL":              write(record.AccessDNSAdmin, "acl_name"),
	"RemoveCIDRBlockFromACL": write(record.AccessDNSAdmin, "cidr_block", "acl_name"),
	"ListACLs":               read("acl_name", "cidr_block"),

	// 服务器与服务器组
	"MakeDnsServer":                     write(record.AccessDNSAdmin, "dns_server_name", "ssh_user", "bind_dir", "test_dir"),
	"RemoveDnsServer":                   write(record.AccessDNSAdmin, "dns_server_name"),
	"UpdateDnsServer":                   write(record.AccessDNSAdmin, "search_dns_server_name", "ssh_user", "bind_dir", "test_dir"),
	"ListDnsServers":                    read("dns_server_name"),
	"MakeDnsServerSet":                  write(record.AccessDNSAdmin, "dns_server_set_name"),
	"RemoveDnsServerSet":                write(record.AccessDNSAdmin, "dns_server_set_name"),
	"ListDnsServerSets":                 read("dns_server_set_name"),
	"MakeDnsServerSetAssignments":       write(record.AccessDNSAdmin, "dns_server_name", "dns_server_set_name"),
	"RemoveDnsServerSetAssignments":     write(record.AccessDNSAdmin, "dns_server_name", "dns_server_set_name"),
	"ListDnsServerSetAssignments":       read("dns_server_name", "dns_server_set_name"),
	"MakeDnsServerSetViewAssignments":   write(record.AccessDNSAdmin, "view_name", "view_order", "dns_server_set_name", "view_options"),
	"RemoveDnsServerSetViewAssignments": write(record.AccessDNSAdmin, "view_name", "dns_server_set_name"),
	"ListDnsServerSetViewAssignments":   read("view_name", "dns_server_set_name"),

	// named.conf 全局选项
	"MakeNamedConfGlobalOption":  write(record.AccessDNSAdmin, "dns_server_set_name", "options"),
	"ListNamedConfGlobalOptions": read("dns_server_set_name", "option_id"),

	// 用户
	"MakeUser":   write(record.AccessDNSAdmin, "user_name", "access_level", "password"),
	"RemoveUser": write(record.AccessDNSAdmin, "user_name"),
	"UpdateUser": write(record.AccessDNSAdmin, "search_user_name", "update_access_level", "update_password"),
	"ListUsers":  adminRead("user_name"),

	// 审计与维护
	"ListAuditLog":         adminRead("user_name", "action", "success", "begin_timestamp", "end_timestamp"),
	"SetMaintenanceFlag":   write(record.AccessDNSAdmin, "flag"),
	"CheckMaintenanceFlag": read(),
}

// MethodNames 返回所有方法名，按字母排序
func MethodNames() []string {
	names := make([]string, 0, len(SupportedMethods))
	for name := range SupportedMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
