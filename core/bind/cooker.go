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

// core/bind/cooker.go
// 把数据库快照整理成按服务器组、视图、区域组织的导出结构

package bind

import (
	"sort"
	"strings"

	"Roster/core/database"
	"Roster/core/record"
)

// ArgumentDefs 每种记录类型按顺序排列的参数名
type ArgumentDefs map[string][]string

// ArgumentDefsFrom 从快照中的参数定义构建 ArgumentDefs
func ArgumentDefsFrom(args []database.RecordArgument) ArgumentDefs {
	sorted := make([]database.RecordArgument, len(args))
	copy(sorted, args)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RecordType != sorted[j].RecordType {
			return sorted[i].RecordType < sorted[j].RecordType
		}
		return sorted[i].ArgumentOrder < sorted[j].ArgumentOrder
	})

	defs := make(ArgumentDefs)
	for _, a := range sorted {
		defs[a.RecordType] = append(defs[a.RecordType], a.ArgumentName)
	}
	return defs
}

// CookedRecord 导出用的记录，无符号整数参数为 uint32，IPv6 地址已展开
type CookedRecord struct {
	ID             uint64                 `json:"id"`
	RecordType     string                 `json:"record_type"`
	Target         string                 `json:"target"`
	TTL            uint32                 `json:"ttl"`
	ViewDependency string                 `json:"view_dependency"`
	Args           map[string]interface{} `json:"record_args_dict"`
}

// CookedZone 视图中的一个区域
type CookedZone struct {
	ZoneOrigin  string         `json:"zone_origin"`
	ZoneType    string         `json:"zone_type"`
	ZoneOptions string         `json:"zone_options"`
	Records     []CookedRecord `json:"records"`
}

// CookedACL 视图匹配客户端使用的 ACL
type CookedACL struct {
	ACLName      string `json:"acl_name"`
	RangeAllowed bool   `json:"range_allowed"`
}

// CookedView 服务器组中的一个视图
type CookedView struct {
	ViewOrder   uint32                 `json:"view_order"`
	ViewOptions string                 `json:"view_options"`
	ACLs        []CookedACL            `json:"acls"`
	Zones       map[string]*CookedZone `json:"zones"`
}

// ZoneNames 按名称排序的区域
func (v *CookedView) ZoneNames() []string {
	return sortedKeys(v.Zones)
}

// CookedSet 服务器组
type CookedSet struct {
	DnsServers []string               `json:"dns_servers"`
	Views      map[string]*CookedView `json:"views"`
}

// ViewNames 按 view_order、名称排序的视图
func (s *CookedSet) ViewNames() []string {
	names := sortedKeys(s.Views)
	sort.SliceStable(names, func(i, j int) bool {
		return s.Views[names[i]].ViewOrder < s.Views[names[j]].ViewOrder
	})
	return names
}

// Cooked 导出流程使用的完整数据
type Cooked struct {
	AuditID       uint64                         `json:"audit_id"`
	Sets          map[string]*CookedSet          `json:"dns_server_sets"`
	Servers       map[string]database.DnsServer  `json:"dns_servers"`
	ACLs          map[string][]database.ACLRange `json:"acls"`
	GlobalOptions map[string]string              `json:"named_conf_global_options"`
	ArgumentDefs  ArgumentDefs                   `json:"record_arguments"`
}

// SetNames 按名称排序的服务器组
func (c *Cooked) SetNames() []string {
	return sortedKeys(c.Sets)
}

// ACLNames 按名称排序、至少有一个地址段的 ACL，不含 any
func (c *Cooked) ACLNames() []string {
	names := make([]string, 0, len(c.ACLs))
	for name, ranges := range c.ACLs {
		if name != database.AnyACL && len(ranges) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Cook 整理快照；区域在视图依赖中没有记录时不出现在该视图
func Cook(raw *database.RawData) (*Cooked, error) {
	cooked := &Cooked{
		AuditID:       raw.AuditID,
		Sets:          make(map[string]*CookedSet),
		Servers:       make(map[string]database.DnsServer, len(raw.Servers)),
		ACLs:          make(map[string][]database.ACLRange),
		GlobalOptions: latestGlobalOptions(raw.GlobalOptions),
		ArgumentDefs:  ArgumentDefsFrom(raw.RecordArguments),
	}
	for _, s := range raw.Servers {
		cooked.Servers[s.DnsServerName] = s
	}
	for _, r := range raw.ACLRanges {
		cooked.ACLs[r.ACLName] = append(cooked.ACLs[r.ACLName], r)
	}

	viewOptions := make(map[string]string, len(raw.Views))
	for _, v := range raw.Views {
		viewOptions[v.ViewName] = v.ViewOptions
	}
	viewDeps := make(map[string][]string)
	for _, d := range raw.ViewDependencies {
		viewDeps[d.ViewName] = append(viewDeps[d.ViewName], d.ViewDependency)
	}
	assignments := make(map[string]map[string]database.ZoneViewAssignment)
	for _, a := range raw.ZoneViewAssignments {
		if assignments[a.ZoneName] == nil {
			assignments[a.ZoneName] = make(map[string]database.ZoneViewAssignment)
		}
		assignments[a.ZoneName][a.ViewDependency] = a
	}
	records := make(map[string]map[string][]database.RecordWithArgs)
	for _, r := range raw.Records {
		if records[r.ZoneName] == nil {
			records[r.ZoneName] = make(map[string][]database.RecordWithArgs)
		}
		records[r.ZoneName][r.ViewDependency] = append(records[r.ZoneName][r.ViewDependency], r)
	}
	zoneNames := sortedKeys(assignments)

	for _, set := range raw.ServerSets {
		cs := &CookedSet{DnsServers: []string{}, Views: make(map[string]*CookedView)}
		for _, a := range raw.ServerSetAssignments {
			if a.DnsServerSetName == set.DnsServerSetName {
				cs.DnsServers = append(cs.DnsServers, a.DnsServerName)
			}
		}

		for _, sv := range raw.ServerSetViewAssignments {
			if sv.DnsServerSetName != set.DnsServerSetName {
				continue
			}
			view := &CookedView{
				ViewOrder:   sv.ViewOrder,
				ViewOptions: joinOptions(viewOptions[sv.ViewName], sv.ViewOptions),
				ACLs:        []CookedACL{},
				Zones:       make(map[string]*CookedZone),
			}
			for _, va := range raw.ViewACLAssignments {
				if va.ViewName == sv.ViewName && va.DnsServerSetName == set.DnsServerSetName {
					view.ACLs = append(view.ACLs, CookedACL{ACLName: va.ACLName, RangeAllowed: va.RangeAllowed})
				}
			}

			own := sv.ViewName + "_dep"
			deps := viewDeps[sv.ViewName]
			for _, zoneName := range zoneNames {
				zone := cookZone(zoneName, own, deps, assignments[zoneName], records[zoneName], cooked.ArgumentDefs)
				if zone != nil {
					view.Zones[zoneName] = zone
				}
			}
			cs.Views[sv.ViewName] = view
		}
		cooked.Sets[set.DnsServerSetName] = cs
	}
	return cooked, nil
}

// cookZone 合并视图各依赖中的记录；优先使用视图自身依赖的区域实例和 SOA，其次 any
func cookZone(zoneName, own string, deps []string, assigned map[string]database.ZoneViewAssignment,
	byDep map[string][]database.RecordWithArgs, defs ArgumentDefs) *CookedZone {

	ordered := make([]string, 0, len(deps))
	for _, preferred := range []string{own, database.AnyDependency} {
		for _, dep := range deps {
			if dep == preferred {
				ordered = append(ordered, dep)
			}
		}
	}
	for _, dep := range deps {
		if dep != own && dep != database.AnyDependency {
			ordered = append(ordered, dep)
		}
	}

	var assignment *database.ZoneViewAssignment
	for _, dep := range ordered {
		if a, ok := assigned[dep]; ok {
			assignment = &a
			break
		}
	}
	if assignment == nil {
		return nil
	}

	var result []CookedRecord
	haveSOA := false
	for _, dep := range ordered {
		for _, r := range byDep[dep] {
			if r.RecordType == record.TypeSOA {
				if haveSOA {
					continue
				}
				haveSOA = true
			}
			result = append(result, cookRecord(r, defs))
		}
	}
	if len(result) == 0 {
		return nil
	}

	sortRecords(result, defs)
	return &CookedZone{
		ZoneOrigin:  assignment.ZoneOrigin,
		ZoneType:    assignment.ZoneType,
		ZoneOptions: assignment.ZoneOptions,
		Records:     result,
	}
}

// cookRecord 规范化参数值：无符号整数转为数字，IPv6 展开，主机名不变
func cookRecord(r database.RecordWithArgs, defs ArgumentDefs) CookedRecord {
	typeDef, _ := record.LookupType(r.RecordType)
	args := make(map[string]interface{}, len(r.Arguments))
	for name, value := range r.Arguments {
		args[name] = value
		arg, ok := typeDef.Argument(name)
		if !ok {
			continue
		}
		switch arg.DataType {
		case record.UnsignedInt:
			if n, err := record.ToUnsigned(value); err == nil {
				args[name] = n
			}
		case record.IPv6IPAddress:
			if expanded, err := record.ExpandIPv6String(value); err == nil {
				args[name] = expanded
			}
		}
	}
	return CookedRecord{
		ID:             r.ID,
		RecordType:     r.RecordType,
		Target:         r.Target,
		TTL:            r.TTL,
		ViewDependency: r.ViewDependency,
		Args:           args,
	}
}

// sortRecords SOA 在前，NS 按 name_server 排序，其余按类型、目标、首个参数排序，相同键保持写入顺序
func sortRecords(records []CookedRecord, defs ArgumentDefs) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	rank := func(r CookedRecord) int {
		switch r.RecordType {
		case record.TypeSOA:
			return 0
		case record.TypeNS:
			return 1
		}
		return 2
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra < rb
		}
		switch rank(a) {
		case 0:
			return false
		case 1:
			return lessValue(a.Args["name_server"], b.Args["name_server"])
		}
		if a.RecordType != b.RecordType {
			return a.RecordType < b.RecordType
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return lessValue(firstArgument(a, defs), firstArgument(b, defs))
	})
}

func firstArgument(r CookedRecord, defs ArgumentDefs) interface{} {
	names := defs[r.RecordType]
	if len(names) == 0 {
		return nil
	}
	return r.Args[names[0]]
}

// lessValue 数字按大小比较，其余按字符串比较
func lessValue(a, b interface{}) bool {
	na, okA := a.(uint32)
	nb, okB := b.(uint32)
	if okA && okB {
		return na < nb
	}
	return record.FormatValue(a) < record.FormatValue(b)
}

// latestGlobalOptions 每个服务器组创建时间最新的全局选项
func latestGlobalOptions(options []database.NamedConfGlobalOption) map[string]string {
	latest := make(map[string]database.NamedConfGlobalOption)
	for _, o := range options {
		current, ok := latest[o.DnsServerSetName]
		if !ok || o.OptionsCreated.After(current.OptionsCreated) ||
			(o.OptionsCreated.Equal(current.OptionsCreated) && o.ID > current.ID) {
			latest[o.DnsServerSetName] = o
		}
	}
	result := make(map[string]string, len(latest))
	for set, o := range latest {
		result[set] = o.GlobalOptions
	}
	return result
}

// joinOptions 合并多段选项文本，去掉空行
func joinOptions(parts ...string) string {
	var lines []string
	for _, part := range parts {
		for _, line := range strings.Split(part, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return strings.Join(lines, "\n")
}
