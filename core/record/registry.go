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

// core/record/registry.go
// 记录类型及其参数定义

package record

import (
	"sort"
	"strings"
)

// 记录类型
const (
	TypeA     = "a"
	TypeAAAA  = "aaaa"
	TypeCNAME = "cname"
	TypeSOA   = "soa"
	TypeMX    = "mx"
	TypeNS    = "ns"
	TypeTXT   = "txt"
	TypeSRV   = "srv"
	TypePTR   = "ptr"
	TypeHINFO = "hinfo"
)

// 区域类型
const (
	ZoneMaster  = "master"
	ZoneSlave   = "slave"
	ZoneForward = "forward"
	ZoneHint    = "hint"
)

// ZoneTypes 所有区域类型
var ZoneTypes = []string{ZoneForward, ZoneHint, ZoneMaster, ZoneSlave}

// ArgumentDef 记录参数定义
type ArgumentDef struct {
	Name     string `json:"argument_name"`
	Order    int    `json:"argument_order"`
	DataType string `json:"argument_data_type"`
}

// TypeDef 记录类型定义，Args 按 Order 排列
type TypeDef struct {
	Type string        `json:"record_type"`
	Args []ArgumentDef `json:"arguments"`
}

// Registry 内置记录类型定义，数据库初始化时以此为种子
var Registry = map[string]TypeDef{
	TypeA: {TypeA, []ArgumentDef{
		{"assignment_ip", 0, IPv4IPAddress},
	}},
	TypeAAAA: {TypeAAAA, []ArgumentDef{
		{"assignment_ip", 0, IPv6IPAddress},
	}},
	TypeCNAME: {TypeCNAME, []ArgumentDef{
		{"assignment_host", 0, Hostname},
	}},
	TypeNS: {TypeNS, []ArgumentDef{
		{"name_server", 0, Hostname},
	}},
	TypeMX: {TypeMX, []ArgumentDef{
		{"priority", 0, UnsignedInt},
		{"mail_server", 1, Hostname},
	}},
	TypePTR: {TypePTR, []ArgumentDef{
		{"assignment_host", 0, Hostname},
	}},
	TypeSOA: {TypeSOA, []ArgumentDef{
		{"name_server", 0, Hostname},
		{"admin_email", 1, Hostname},
		{"serial_number", 2, UnsignedInt},
		{"refresh_seconds", 3, UnsignedInt},
		{"retry_seconds", 4, UnsignedInt},
		{"expiry_seconds", 5, UnsignedInt},
		{"minimum_seconds", 6, UnsignedInt},
	}},
	TypeSRV: {TypeSRV, []ArgumentDef{
		{"priority", 0, UnsignedInt},
		{"weight", 1, UnsignedInt},
		{"port", 2, UnsignedInt},
		{"assignment_host", 3, Hostname},
	}},
	TypeTXT: {TypeTXT, []ArgumentDef{
		{"quoted_text", 0, UnicodeString},
	}},
	TypeHINFO: {TypeHINFO, []ArgumentDef{
		{"hardware", 0, UnicodeString},
		{"os", 1, UnicodeString},
	}},
}

// RecordTypes 返回所有记录类型（已排序）
func RecordTypes() []string {
	types := make([]string, 0, len(Registry))
	for recordType := range Registry {
		types = append(types, recordType)
	}
	sort.Strings(types)
	return types
}

// LookupType 查找记录类型定义，类型名不区分大小写
func LookupType(recordType string) (TypeDef, bool) {
	def, ok := Registry[strings.ToLower(recordType)]
	return def, ok
}

// SortArguments 按 Order 排序参数定义
func SortArguments(args []ArgumentDef) {
	sort.SliceStable(args, func(i, j int) bool {
		return args[i].Order < args[j].Order
	})
}

// ArgumentNames 返回有序的参数名
func (d TypeDef) ArgumentNames() []string {
	names := make([]string, len(d.Args))
	for i, arg := range d.Args {
		names[i] = arg.Name
	}
	return names
}

// Argument 按名称查找参数定义
func (d TypeDef) Argument(name string) (ArgumentDef, bool) {
	for _, arg := range d.Args {
		if arg.Name == name {
			return arg, true
		}
	}
	return ArgumentDef{}, false
}
