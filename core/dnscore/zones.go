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

// core/dnscore/zones.go
// 区域、区域实例与反向地址段

package dnscore

import (
	"context"
	"slices"
	"strings"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/record"

	"github.com/miekg/dns"
)

// ZoneSpec 新建区域实例的参数
type ZoneSpec struct {
	ZoneName    string `json:"zone_name"`
	ZoneType    string `json:"zone_type"`
	ZoneOrigin  string `json:"zone_origin"`
	ViewName    string `json:"view_name"`
	ZoneOptions string `json:"zone_options"`
	MakeSOA     *bool  `json:"make_soa"`
}

// ZoneInfo 区域在一个视图中的实例
type ZoneInfo struct {
	ZoneType    string `json:"zone_type" yaml:"zone_type"`
	ZoneOrigin  string `json:"zone_origin" yaml:"zone_origin"`
	ZoneOptions string `json:"zone_options" yaml:"zone_options"`
}

// MakeZone 创建区域实例；主区域默认写入占位 SOA，序列号为 1
func (c *Core) MakeZone(ctx context.Context, spec ZoneSpec) error {
	data := auditArgs{
		"zone_name": spec.ZoneName, "zone_type": spec.ZoneType, "zone_origin": spec.ZoneOrigin,
		"view_name": spec.ViewName, "zone_options": spec.ZoneOptions, "make_soa": spec.MakeSOA,
	}
	_, err := run(ctx, c, "MakeZone", data, func(tx *database.Tx) (struct{}, error) {
		return struct{}{}, makeZone(tx, c.userName, spec)
	})
	return err
}

func makeZone(tx *database.Tx, userName string, spec ZoneSpec) error {
	if !slices.Contains(record.ZoneTypes, spec.ZoneType) {
		return common.NewError(common.KindUnexpectedData, "Invalid zone type: %s", spec.ZoneType)
	}
	origin := strings.ToLower(spec.ZoneOrigin)
	if !strings.HasSuffix(origin, ".") || !record.IsHostname(origin) {
		return common.NewError(common.KindUnexpectedData, "Zone origin %s must be a fully qualified name ending with '.'", spec.ZoneOrigin)
	}
	if err := record.CheckNameLength(origin); err != nil {
		return err
	}
	if err := checkViewExists(tx, spec.ViewName); err != nil {
		return err
	}

	exists, err := tx.ZoneExists(spec.ZoneName)
	if err != nil {
		return err
	}
	if !exists {
		if _, err := tx.MakeRow("zones", database.Row{"zone_name": spec.ZoneName}); err != nil {
			return err
		}
	} else if err := checkReverseOrigin(tx, spec.ZoneName, origin); err != nil {
		return err
	}

	dependency := viewDependency(spec.ViewName)
	if _, err := tx.MakeRow("zone_view_assignments", database.Row{
		"zone_name":       spec.ZoneName,
		"view_dependency": dependency,
		"zone_type":       spec.ZoneType,
		"zone_origin":     origin,
		"zone_options":    spec.ZoneOptions,
	}); err != nil {
		return err
	}

	makeSOA := spec.MakeSOA == nil || *spec.MakeSOA
	if spec.ZoneType != record.ZoneMaster || !makeSOA {
		return nil
	}

	if _, err := tx.MakeRecordWithArguments(database.Record{
		Target:         "@",
		RecordType:     record.TypeSOA,
		TTL:            defaultTTL,
		ZoneName:       spec.ZoneName,
		ViewDependency: dependency,
		LastUser:       userName,
	}, placeholderSOA(origin)); err != nil {
		return err
	}
	return bumpSOA(tx, spec.ZoneName, dependency)
}

// checkReverseOrigin 已关联反向地址段的区域，新实例的 origin 必须与地址段一致
func checkReverseOrigin(tx *database.Tx, zoneName, origin string) error {
	ranges, err := tx.ListReverseRanges(database.Row{"zone_name": zoneName})
	if err != nil {
		return err
	}
	for _, r := range ranges {
		want, err := record.ReverseOriginFromCIDR(r.CIDRBlock)
		if err != nil {
			return err
		}
		if !strings.EqualFold(want, origin) {
			return common.NewError(common.KindCoreError,
				"Zone origin %s does not match reverse range %s (%s)", origin, r.CIDRBlock, want)
		}
	}
	return nil
}

// RemoveZone 删除区域；指定视图时只删除该视图中的实例和记录
func (c *Core) RemoveZone(ctx context.Context, zoneName, viewName string) (int64, error) {
	data := auditArgs{"zone_name": zoneName, "view_name": viewName}
	return run(ctx, c, "RemoveZone", data, func(tx *database.Tx) (int64, error) {
		if viewName == "" {
			return tx.RemoveRow("zones", database.Row{"zone_name": zoneName})
		}

		dependency := viewDependency(viewName)
		removed, err := tx.RemoveRow("zone_view_assignments", database.Row{"zone_name": zoneName, "view_dependency": dependency})
		if err != nil {
			return 0, err
		}
		records, err := tx.ListRecordsWithArguments(database.Row{"zone_name": zoneName, "view_dependency": dependency})
		if err != nil {
			return 0, err
		}
		for _, r := range records {
			if err := tx.RemoveRecordByID(r.ID); err != nil {
				return 0, err
			}
		}
		return removed, nil
	})
}

// ListZones 列出区域，结果按区域名和视图名索引
func (c *Core) ListZones(ctx context.Context, viewName string) (map[string]map[string]ZoneInfo, error) {
	return run(ctx, c, "ListZones", auditArgs{"view_name": viewName}, func(tx *database.Tx) (map[string]map[string]ZoneInfo, error) {
		filter := database.Row{}
		if viewName != "" {
			filter["view_dependency"] = viewDependency(viewName)
		}
		assignments, err := tx.ListZoneViewAssignments(filter)
		if err != nil {
			return nil, err
		}
		zones := make(map[string]map[string]ZoneInfo)
		for _, a := range assignments {
			if zones[a.ZoneName] == nil {
				zones[a.ZoneName] = make(map[string]ZoneInfo)
			}
			zones[a.ZoneName][viewNameFromDependency(a.ViewDependency)] = ZoneInfo{
				ZoneType:    a.ZoneType,
				ZoneOrigin:  a.ZoneOrigin,
				ZoneOptions: a.ZoneOptions,
			}
		}
		return zones, nil
	})
}

// MakeReverseRangeZoneAssignment 为反向区域指定地址段，区域的每个实例都必须以该地址段的反向名称为 origin
func (c *Core) MakeReverseRangeZoneAssignment(ctx context.Context, zoneName, cidr string) error {
	data := auditArgs{"zone_name": zoneName, "cidr_block": cidr}
	_, err := run(ctx, c, "MakeReverseRangeZoneAssignment", data, func(tx *database.Tx) (uint64, error) {
		origin, err := record.ReverseOriginFromCIDR(cidr)
		if err != nil {
			return 0, err
		}
		assignments, err := tx.ListZoneViewAssignments(database.Row{"zone_name": zoneName})
		if err != nil {
			return 0, err
		}
		if len(assignments) == 0 {
			return 0, common.NewError(common.KindCoreError, "Zone %s does not exist", zoneName)
		}
		for _, a := range assignments {
			if !strings.EqualFold(dns.Fqdn(a.ZoneOrigin), origin) {
				return 0, common.NewError(common.KindCoreError,
					"Zone origin %s does not match reverse range %s (%s)", a.ZoneOrigin, cidr, origin)
			}
		}
		prefix, err := record.NormalizeCIDR(cidr)
		if err != nil {
			return 0, err
		}
		return tx.MakeRow("reverse_range_zone_assignments", database.Row{
			"zone_name":  zoneName,
			"cidr_block": prefix.String(),
		})
	})
	return err
}

// RemoveReverseRangeZoneAssignment 删除反向地址段
func (c *Core) RemoveReverseRangeZoneAssignment(ctx context.Context, zoneName, cidr string) (int64, error) {
	data := auditArgs{"zone_name": zoneName, "cidr_block": cidr}
	return run(ctx, c, "RemoveReverseRangeZoneAssignment", data, func(tx *database.Tx) (int64, error) {
		prefix, err := record.NormalizeCIDR(cidr)
		if err != nil {
			return 0, err
		}
		return tx.RemoveRow("reverse_range_zone_assignments", database.Row{
			"zone_name":  zoneName,
			"cidr_block": prefix.String(),
		})
	})
}

// ListReverseRangeZoneAssignments 列出反向区域及其地址段
func (c *Core) ListReverseRangeZoneAssignments(ctx context.Context, zoneName string) (map[string]string, error) {
	return run(ctx, c, "ListReverseRangeZoneAssignments", auditArgs{"zone_name": zoneName}, func(tx *database.Tx) (map[string]string, error) {
		ranges, err := tx.ListReverseRanges(database.Row{"zone_name": optional(zoneName)})
		if err != nil {
			return nil, err
		}
		result := make(map[string]string, len(ranges))
		for _, r := range ranges {
			result[r.ZoneName] = r.CIDRBlock
		}
		return result, nil
	})
}
