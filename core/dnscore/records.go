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

// core/dnscore/records.go
// 资源记录的增删改查、冲突检查与批量处理

package dnscore

import (
	"context"
	"net/netip"
	"sort"
	"strings"
	"time"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/record"
)

// RecordSpec 定位或新建一条记录
type RecordSpec struct {
	RecordType string                 `json:"record_type" yaml:"record_type"`
	Target     string                 `json:"target" yaml:"target"`
	ZoneName   string                 `json:"zone_name" yaml:"zone_name"`
	ViewName   string                 `json:"view_name,omitempty" yaml:"view_name,omitempty"`
	TTL        *uint32                `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Args       map[string]interface{} `json:"record_args_dict" yaml:"record_args_dict"`
}

// RecordUpdate 记录的修改内容，nil 字段保持原值，Args 只需包含要修改的参数
type RecordUpdate struct {
	Target   *string                `json:"target,omitempty"`
	ZoneName *string                `json:"zone_name,omitempty"`
	ViewName *string                `json:"view_name,omitempty"`
	TTL      *uint32                `json:"ttl,omitempty"`
	Args     map[string]interface{} `json:"record_args_dict,omitempty"`
}

// RecordFilter 查询条件，空值表示不限制
type RecordFilter struct {
	RecordType string                 `json:"record_type"`
	Target     string                 `json:"target"`
	ZoneName   string                 `json:"zone_name"`
	ViewName   string                 `json:"view_name"`
	TTL        *uint32                `json:"ttl"`
	Args       map[string]interface{} `json:"record_args_dict"`
}

// RecordInfo 查询结果中的一条记录
type RecordInfo struct {
	ID          uint64                 `json:"id" yaml:"id"`
	RecordType  string                 `json:"record_type" yaml:"record_type"`
	Target      string                 `json:"target" yaml:"target"`
	TTL         uint32                 `json:"ttl" yaml:"ttl"`
	ZoneName    string                 `json:"zone_name" yaml:"zone_name"`
	ViewName    string                 `json:"view_name" yaml:"view_name"`
	LastUser    string                 `json:"last_user" yaml:"last_user"`
	LastUpdated time.Time              `json:"last_updated" yaml:"last_updated"`
	Args        map[string]interface{} `json:"record_args_dict" yaml:"record_args_dict"`
}

// ArgumentDefinition 记录参数定义
type ArgumentDefinition struct {
	ArgumentName  string `json:"argument_name" yaml:"argument_name"`
	ArgumentOrder int    `json:"argument_order" yaml:"argument_order"`
	DataType      string `json:"argument_data_type" yaml:"argument_data_type"`
}

// PTRTarget 地址在反向区域中的位置
type PTRTarget struct {
	Target   string `json:"target" yaml:"target"`
	ZoneName string `json:"zone_name" yaml:"zone_name"`
}

// preparedRecord 通过校验、可以写入的记录
type preparedRecord struct {
	rec  database.Record
	args map[string]string
}

func (p preparedRecord) key() zoneKey {
	return zoneKey{zone: p.rec.ZoneName, dependency: p.rec.ViewDependency}
}

func (s RecordSpec) auditData() auditArgs {
	return auditArgs{
		"record_type": s.RecordType, "target": s.Target, "zone_name": s.ZoneName,
		"view_name": s.ViewName, "ttl": s.TTL, "record_args_dict": s.Args,
	}
}

func (s RecordSpec) target() Target {
	return Target{RecordType: s.RecordType, Target: s.Target, ZoneName: s.ZoneName, ViewName: s.ViewName}
}

// zoneAssignment 查找记录所在的区域实例；依赖为 any 时区域在任意视图中存在即可
func zoneAssignment(tx *database.Tx, zoneName, dependency string) (*database.ZoneViewAssignment, error) {
	assignments, err := tx.ListZoneViewAssignments(database.Row{"zone_name": zoneName})
	if err != nil {
		return nil, err
	}
	var fallback *database.ZoneViewAssignment
	for i := range assignments {
		a := &assignments[i]
		if a.ViewDependency == dependency {
			return a, nil
		}
		if dependency == database.AnyDependency || a.ViewDependency == database.AnyDependency {
			if fallback == nil {
				fallback = a
			}
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, common.NewError(common.KindCoreError, "Zone %s does not exist in view %s", zoneName, viewNameFromDependency(dependency))
}

// prepareRecord 校验记录类型、目标、参数以及所在区域实例
func prepareRecord(tx *database.Tx, userName string, spec RecordSpec) (preparedRecord, error) {
	def, ok := record.LookupType(spec.RecordType)
	if !ok {
		return preparedRecord{}, common.NewError(common.KindInvalidInput, "Unknown record type: %s", spec.RecordType)
	}
	target := strings.TrimSpace(spec.Target)
	if !record.IsTarget(target) {
		return preparedRecord{}, common.NewError(common.KindUnexpectedData, "Invalid target: %s", spec.Target)
	}
	if target != "@" {
		if err := record.CheckNameLength(target); err != nil {
			return preparedRecord{}, err
		}
	}

	data, err := record.Parse(def.Type, spec.Args)
	if err != nil {
		return preparedRecord{}, err
	}

	if err := checkViewExists(tx, spec.ViewName); err != nil {
		return preparedRecord{}, err
	}
	dependency := viewDependency(spec.ViewName)
	if _, err := zoneAssignment(tx, spec.ZoneName, dependency); err != nil {
		return preparedRecord{}, err
	}

	ttl := uint32(defaultTTL)
	if spec.TTL != nil {
		ttl = *spec.TTL
	}

	return preparedRecord{
		rec: database.Record{
			Target:         target,
			RecordType:     def.Type,
			TTL:            ttl,
			ZoneName:       spec.ZoneName,
			ViewDependency: dependency,
			LastUser:       userName,
		},
		args: record.ArgumentMap(data),
	}, nil
}

// checkConflicts 检查重复记录、CNAME 冲突和 SOA 唯一性，ignoreID 为正在修改的记录
func checkConflicts(tx *database.Tx, p preparedRecord, ignoreID uint64) error {
	existing, err := tx.ListRecordsWithArguments(database.Row{
		"target":          p.rec.Target,
		"zone_name":       p.rec.ZoneName,
		"view_dependency": p.rec.ViewDependency,
	})
	if err != nil {
		return err
	}

	recordType := p.rec.RecordType
	for _, e := range existing {
		if e.ID == ignoreID {
			continue
		}
		switch {
		case e.RecordType == recordType && record.SameArguments(e.Arguments, p.args):
			return common.NewError(common.KindCoreError, "Duplicate record")
		case e.RecordType == recordType && (recordType == record.TypeA || recordType == record.TypeCNAME):
			return common.NewError(common.KindCoreError, "Duplicate record")
		case recordType == record.TypeCNAME:
			return common.NewError(common.KindCoreError, "CNAME %s conflicts with existing %s record", p.rec.Target, e.RecordType)
		case e.RecordType == record.TypeCNAME:
			return common.NewError(common.KindCoreError, "Record %s conflicts with existing CNAME", p.rec.Target)
		}
	}

	if recordType == record.TypeSOA {
		soas, err := tx.ListRecordsWithArguments(database.Row{
			"record_type":     record.TypeSOA,
			"zone_name":       p.rec.ZoneName,
			"view_dependency": p.rec.ViewDependency,
		})
		if err != nil {
			return err
		}
		for _, soa := range soas {
			if soa.ID != ignoreID {
				return common.NewError(common.KindCoreError, "Zone %s already has an SOA record in view %s",
					p.rec.ZoneName, viewNameFromDependency(p.rec.ViewDependency))
			}
		}
	}
	return nil
}

// findMatches 查找类型、位置和全部参数都相同的记录
func findMatches(tx *database.Tx, p preparedRecord, ttl *uint32) ([]database.RecordWithArgs, error) {
	filter := database.Row{
		"record_type":     p.rec.RecordType,
		"target":          p.rec.Target,
		"zone_name":       p.rec.ZoneName,
		"view_dependency": p.rec.ViewDependency,
	}
	if ttl != nil {
		filter["ttl"] = *ttl
	}
	candidates, err := tx.ListRecordsWithArguments(filter)
	if err != nil {
		return nil, err
	}
	matches := candidates[:0]
	for _, c := range candidates {
		if record.SameArguments(c.Arguments, p.args) {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

func (c *Core) checkTarget(ctx context.Context, spec RecordSpec) error {
	return c.checker.CheckTarget(ctx, c.userName, c.accessLevel, spec.target())
}

// addRecord 校验并写入一条记录，返回新记录ID
func (c *Core) addRecord(ctx context.Context, tx *database.Tx, spec RecordSpec) (preparedRecord, uint64, error) {
	if err := c.checkTarget(ctx, spec); err != nil {
		return preparedRecord{}, 0, err
	}
	p, err := prepareRecord(tx, c.userName, spec)
	if err != nil {
		return preparedRecord{}, 0, err
	}
	if err := checkConflicts(tx, p, 0); err != nil {
		return preparedRecord{}, 0, err
	}
	id, err := tx.MakeRecordWithArguments(p.rec, p.args)
	if err != nil {
		return preparedRecord{}, 0, err
	}
	return p, id, nil
}

// MakeRecord 新建记录，非 SOA 记录会递增所在区域实例的 SOA 序列号
func (c *Core) MakeRecord(ctx context.Context, spec RecordSpec) (uint64, error) {
	return run(ctx, c, "MakeRecord", spec.auditData(), func(tx *database.Tx) (uint64, error) {
		p, id, err := c.addRecord(ctx, tx, spec)
		if err != nil {
			return 0, err
		}
		if p.rec.RecordType != record.TypeSOA {
			if err := bumpSOA(tx, p.rec.ZoneName, p.rec.ViewDependency); err != nil {
				return 0, err
			}
		}
		return id, nil
	})
}

// RemoveRecord 删除参数完全匹配的记录，返回删除数量
func (c *Core) RemoveRecord(ctx context.Context, spec RecordSpec) (int64, error) {
	return run(ctx, c, "RemoveRecord", spec.auditData(), func(tx *database.Tx) (int64, error) {
		if err := c.checkTarget(ctx, spec); err != nil {
			return 0, err
		}
		p, err := prepareRecord(tx, c.userName, spec)
		if err != nil {
			return 0, err
		}
		matches, err := findMatches(tx, p, spec.TTL)
		if err != nil {
			return 0, err
		}
		for _, m := range matches {
			if err := tx.RemoveRecordByID(m.ID); err != nil {
				return 0, err
			}
		}
		if len(matches) > 0 && p.rec.RecordType != record.TypeSOA {
			if err := bumpSOA(tx, p.rec.ZoneName, p.rec.ViewDependency); err != nil {
				return 0, err
			}
		}
		return int64(len(matches)), nil
	})
}

// UpdateRecord 修改匹配 search 的记录，返回修改数量
func (c *Core) UpdateRecord(ctx context.Context, search RecordSpec, update RecordUpdate) (int64, error) {
	data := auditArgs{"search": search.auditData(), "update": update}
	return run(ctx, c, "UpdateRecord", data, func(tx *database.Tx) (int64, error) {
		if err := c.checkTarget(ctx, search); err != nil {
			return 0, err
		}
		p, err := prepareRecord(tx, c.userName, search)
		if err != nil {
			return 0, err
		}
		matches, err := findMatches(tx, p, search.TTL)
		if err != nil {
			return 0, err
		}

		affected := make(map[zoneKey]bool)
		for _, m := range matches {
			next := mergeUpdate(search, m, update)
			if err := c.checkTarget(ctx, next); err != nil {
				return 0, err
			}
			np, err := prepareRecord(tx, c.userName, next)
			if err != nil {
				return 0, err
			}
			if err := checkConflicts(tx, np, m.ID); err != nil {
				return 0, err
			}

			if _, err := tx.UpdateRow("records", database.Row{"id": m.ID}, database.Row{
				"target":          np.rec.Target,
				"ttl":             np.rec.TTL,
				"zone_name":       np.rec.ZoneName,
				"view_dependency": np.rec.ViewDependency,
				"last_user":       c.userName,
				"last_updated":    c.store.Now(),
			}); err != nil {
				return 0, err
			}
			for name, value := range np.args {
				if m.Arguments[name] == value {
					continue
				}
				if err := tx.SetRecordArgument(m.ID, name, value); err != nil {
					return 0, err
				}
			}

			if np.rec.RecordType != record.TypeSOA {
				affected[p.key()] = true
				affected[np.key()] = true
			}
		}

		if err := bumpAll(tx, affected); err != nil {
			return 0, err
		}
		return int64(len(matches)), nil
	})
}

// mergeUpdate 在现有记录上叠加修改内容
func mergeUpdate(search RecordSpec, current database.RecordWithArgs, update RecordUpdate) RecordSpec {
	ttl := current.TTL
	next := RecordSpec{
		RecordType: current.RecordType,
		Target:     current.Target,
		ZoneName:   current.ZoneName,
		ViewName:   search.ViewName,
		TTL:        &ttl,
		Args:       make(map[string]interface{}, len(current.Arguments)),
	}
	for name, value := range current.Arguments {
		next.Args[name] = value
	}
	if update.Target != nil {
		next.Target = *update.Target
	}
	if update.ZoneName != nil {
		next.ZoneName = *update.ZoneName
	}
	if update.ViewName != nil {
		next.ViewName = *update.ViewName
	}
	if update.TTL != nil {
		next.TTL = update.TTL
	}
	for name, value := range update.Args {
		next.Args[name] = value
	}
	return next
}

// ListRecords 按条件查询记录
func (c *Core) ListRecords(ctx context.Context, filter RecordFilter) ([]RecordInfo, error) {
	data := auditArgs{
		"record_type": filter.RecordType, "target": filter.Target, "zone_name": filter.ZoneName,
		"view_name": filter.ViewName, "ttl": filter.TTL, "record_args_dict": filter.Args,
	}
	return run(ctx, c, "ListRecords", data, func(tx *database.Tx) ([]RecordInfo, error) {
		return listRecords(tx, filter)
	})
}

func listRecords(tx *database.Tx, filter RecordFilter) ([]RecordInfo, error) {
	row := database.Row{
		"record_type": optional(strings.ToLower(filter.RecordType)),
		"target":      optional(filter.Target),
		"zone_name":   optional(filter.ZoneName),
	}
	if filter.ViewName != "" {
		row["view_dependency"] = viewDependency(filter.ViewName)
	}
	if filter.TTL != nil {
		row["ttl"] = *filter.TTL
	}

	records, err := tx.ListRecordsWithArguments(row)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]string, len(filter.Args))
	for name, value := range filter.Args {
		wanted[name] = normalizeArgument(name, record.FormatValue(value))
	}

	result := make([]RecordInfo, 0, len(records))
	for _, r := range records {
		if !argumentsContain(r.Arguments, wanted) {
			continue
		}
		result = append(result, recordInfo(r))
	}
	return result, nil
}

// normalizeArgument IPv6 地址按存储形式展开后再比较
func normalizeArgument(name, value string) string {
	if name == "assignment_ip" && strings.Contains(value, ":") {
		if expanded, err := record.ExpandIPv6String(value); err == nil {
			return expanded
		}
	}
	return strings.TrimSpace(value)
}

func argumentsContain(args, wanted map[string]string) bool {
	for name, value := range wanted {
		if args[name] != value {
			return false
		}
	}
	return true
}

func recordInfo(r database.RecordWithArgs) RecordInfo {
	info := RecordInfo{
		ID:          r.ID,
		RecordType:  r.RecordType,
		Target:      r.Target,
		TTL:         r.TTL,
		ZoneName:    r.ZoneName,
		ViewName:    viewNameFromDependency(r.ViewDependency),
		LastUser:    r.LastUser,
		LastUpdated: r.LastUpdated,
	}
	if data, err := record.ParseStrings(r.RecordType, r.Arguments); err == nil {
		info.Args = record.WireArguments(data)
	} else {
		info.Args = make(map[string]interface{}, len(r.Arguments))
		for name, value := range r.Arguments {
			info.Args[name] = value
		}
	}
	return info
}

// ListRecordsByCIDRBlock 列出地址落在 CIDR 内的 a/aaaa 记录和对应反向区域中的 ptr 记录
func (c *Core) ListRecordsByCIDRBlock(ctx context.Context, cidr, viewName string) ([]RecordInfo, error) {
	data := auditArgs{"cidr_block": cidr, "view_name": viewName}
	return run(ctx, c, "ListRecordsByCIDRBlock", data, func(tx *database.Tx) ([]RecordInfo, error) {
		prefix, err := record.NormalizeCIDR(cidr)
		if err != nil {
			return nil, err
		}

		inView := func(dependency string) bool {
			if viewName == "" {
				return true
			}
			return dependency == viewDependency(viewName) || dependency == database.AnyDependency
		}

		var result []RecordInfo
		for _, recordType := range []string{record.TypeA, record.TypeAAAA} {
			records, err := tx.ListRecordsWithArguments(database.Row{"record_type": recordType})
			if err != nil {
				return nil, err
			}
			for _, r := range records {
				ip, err := netip.ParseAddr(r.Arguments["assignment_ip"])
				if err == nil && inView(r.ViewDependency) && prefix.Contains(ip) {
					result = append(result, recordInfo(r))
				}
			}
		}

		assignments, err := tx.ListZoneViewAssignments(nil)
		if err != nil {
			return nil, err
		}
		origins := make(map[zoneKey]string, len(assignments))
		for _, a := range assignments {
			origins[zoneKey{a.ZoneName, a.ViewDependency}] = a.ZoneOrigin
		}

		ptrs, err := tx.ListRecordsWithArguments(database.Row{"record_type": record.TypePTR})
		if err != nil {
			return nil, err
		}
		for _, r := range ptrs {
			if !inView(r.ViewDependency) {
				continue
			}
			origin, ok := origins[zoneKey{r.ZoneName, r.ViewDependency}]
			if !ok {
				continue
			}
			address, err := record.UnReverseIP(ptrName(r.Target, origin))
			if err != nil {
				continue
			}
			if ip, err := netip.ParseAddr(address); err == nil && prefix.Contains(ip) {
				result = append(result, recordInfo(r))
			}
		}
		return result, nil
	})
}

// ptrName 返回 ptr 记录的完整反向名称，RFC 2317 区域去掉 origin 的首个标签
func ptrName(target, origin string) string {
	if first, rest, ok := strings.Cut(origin, "."); ok && strings.Contains(first, "-") {
		origin = rest
	}
	if target == "@" {
		return origin
	}
	return target + "." + origin
}

// ProcessRecordsBatch 先删除后新增；删除要求参数完全匹配，找不到时整个批次失败
// 每个受影响的区域实例只递增一次 SOA，导入区域时保留原序列号
func (c *Core) ProcessRecordsBatch(ctx context.Context, deletes, adds []RecordSpec, zoneImport bool) (int, error) {
	data := auditArgs{"delete_records": deletes, "add_records": adds, "zone_import": zoneImport}
	return run(ctx, c, "ProcessRecordsBatch", data, func(tx *database.Tx) (int, error) {
		affected := make(map[zoneKey]bool)
		changed := 0

		for _, spec := range deletes {
			if err := c.checkTarget(ctx, spec); err != nil {
				return 0, err
			}
			p, err := prepareRecord(tx, c.userName, spec)
			if err != nil {
				return 0, err
			}
			matches, err := findMatches(tx, p, spec.TTL)
			if err != nil {
				return 0, err
			}
			if len(matches) == 0 {
				return 0, common.NewError(common.KindCoreError, "No matching %s record %s in zone %s to delete",
					p.rec.RecordType, p.rec.Target, p.rec.ZoneName)
			}
			if err := tx.RemoveRecordByID(matches[0].ID); err != nil {
				return 0, err
			}
			if p.rec.RecordType != record.TypeSOA {
				affected[p.key()] = true
			}
			changed++
		}

		for _, spec := range adds {
			p, _, err := c.addRecord(ctx, tx, spec)
			if err != nil {
				return 0, err
			}
			if p.rec.RecordType != record.TypeSOA {
				affected[p.key()] = true
			}
			changed++
		}

		if !zoneImport {
			if err := bumpAll(tx, affected); err != nil {
				return 0, err
			}
		}
		return changed, nil
	})
}

// GetPTRTarget 返回地址在视图中对应的反向区域和相对名称，多个地址段匹配时取最长前缀
func (c *Core) GetPTRTarget(ctx context.Context, ip, viewName string) (PTRTarget, error) {
	data := auditArgs{"ip_address": ip, "view_name": viewName}
	return run(ctx, c, "GetPTRTarget", data, func(tx *database.Tx) (PTRTarget, error) {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return PTRTarget{}, common.NewError(common.KindUnexpectedData, "Invalid IP address: %s", ip)
		}

		ranges, err := tx.ListReverseRanges(nil)
		if err != nil {
			return PTRTarget{}, err
		}
		type candidate struct {
			zone string
			bits int
		}
		var candidates []candidate
		for _, r := range ranges {
			prefix, err := record.NormalizeCIDR(r.CIDRBlock)
			if err != nil || !prefix.Contains(addr) {
				continue
			}
			candidates = append(candidates, candidate{zone: r.ZoneName, bits: prefix.Bits()})
		}
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].bits > candidates[j].bits })

		dependency := viewDependency(viewName)
		for _, cand := range candidates {
			assignment, err := zoneAssignment(tx, cand.zone, dependency)
			if err != nil {
				continue
			}
			target, err := record.ReverseTarget(addr.String(), assignment.ZoneOrigin)
			if err != nil {
				continue
			}
			return PTRTarget{Target: target, ZoneName: cand.zone}, nil
		}
		return PTRTarget{}, common.NewError(common.KindCoreError, "No reverse zone found for %s in view %s", ip, viewName)
	})
}

// ListRecordArgumentDefinitions 按记录类型返回参数定义，按 argument_order 排序
func (c *Core) ListRecordArgumentDefinitions(ctx context.Context, recordType string) (map[string][]ArgumentDefinition, error) {
	data := auditArgs{"record_type": recordType}
	return run(ctx, c, "ListRecordArgumentDefinitions", data, func(tx *database.Tx) (map[string][]ArgumentDefinition, error) {
		args, err := tx.ListRecordArguments(database.Row{"record_type": optional(strings.ToLower(recordType))})
		if err != nil {
			return nil, err
		}
		result := make(map[string][]ArgumentDefinition)
		for _, a := range args {
			result[a.RecordType] = append(result[a.RecordType], ArgumentDefinition{
				ArgumentName:  a.ArgumentName,
				ArgumentOrder: a.ArgumentOrder,
				DataType:      a.ArgumentDataType,
			})
		}
		return result, nil
	})
}

// ListZoneTypes 列出区域类型
func (c *Core) ListZoneTypes(ctx context.Context) ([]string, error) {
	return run(ctx, c, "ListZoneTypes", nil, func(tx *database.Tx) ([]string, error) {
		return listColumn(tx, "zone_types", "zone_type")
	})
}

// ListRecordTypes 列出记录类型
func (c *Core) ListRecordTypes(ctx context.Context) ([]string, error) {
	return run(ctx, c, "ListRecordTypes", nil, func(tx *database.Tx) ([]string, error) {
		return listColumn(tx, "record_types", "record_type")
	})
}

func listColumn(tx *database.Tx, table, column string) ([]string, error) {
	rows, err := tx.ListRow(table, nil, false)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		values = append(values, row.String(column))
	}
	return values, nil
}
