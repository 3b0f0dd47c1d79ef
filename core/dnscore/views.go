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

// core/dnscore/views.go
// 视图、视图依赖与视图 ACL

package dnscore

import (
	"context"

	"Roster/core/common"
	"Roster/core/database"
)

// ViewACL 视图在服务器组中的 ACL
type ViewACL struct {
	ViewName     string `json:"view_name" yaml:"view_name"`
	DnsServerSet string `json:"dns_server_set" yaml:"dns_server_set"`
	ACLName      string `json:"acl_name" yaml:"acl_name"`
	RangeAllowed bool   `json:"acl_range_allowed" yaml:"acl_range_allowed"`
}

// MakeView 创建视图及其依赖 <view>_dep，视图同时包含 any 中的记录
func (c *Core) MakeView(ctx context.Context, viewName, viewOptions string) error {
	data := auditArgs{"view_name": viewName, "view_options": viewOptions}
	_, err := run(ctx, c, "MakeView", data, func(tx *database.Tx) (struct{}, error) {
		dependency := viewDependency(viewName)
		if _, err := tx.MakeRow("views", database.Row{"view_name": viewName, "view_options": viewOptions}); err != nil {
			return struct{}{}, err
		}
		if _, err := tx.MakeRow("view_dependencies", database.Row{"view_dependency": dependency}); err != nil {
			return struct{}{}, err
		}
		for _, dep := range []string{dependency, database.AnyDependency} {
			if _, err := tx.MakeRow("view_dependency_assignments", database.Row{
				"view_name":       viewName,
				"view_dependency": dep,
			}); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

// RemoveView 删除视图，视图依赖中的区域实例和记录级联删除
func (c *Core) RemoveView(ctx context.Context, viewName string) (int64, error) {
	return run(ctx, c, "RemoveView", auditArgs{"view_name": viewName}, func(tx *database.Tx) (int64, error) {
		if viewName == "" || viewName == database.AnyDependency {
			return 0, common.NewError(common.KindCoreError, "Cannot remove view %q", viewName)
		}
		removed, err := tx.RemoveRow("views", database.Row{"view_name": viewName})
		if err != nil {
			return 0, err
		}
		if removed == 0 {
			return 0, nil
		}
		if _, err := tx.RemoveRow("view_dependencies", database.Row{"view_dependency": viewDependency(viewName)}); err != nil {
			return 0, err
		}
		return removed, nil
	})
}

// UpdateView 修改视图选项
func (c *Core) UpdateView(ctx context.Context, viewName, viewOptions string) (int64, error) {
	data := auditArgs{"search_view_name": viewName, "update_view_options": viewOptions}
	return run(ctx, c, "UpdateView", data, func(tx *database.Tx) (int64, error) {
		return tx.UpdateRow("views", database.Row{"view_name": viewName}, database.Row{"view_options": viewOptions})
	})
}

// ListViews 列出视图及其选项
func (c *Core) ListViews(ctx context.Context, viewName string) (map[string]string, error) {
	return run(ctx, c, "ListViews", auditArgs{"view_name": viewName}, func(tx *database.Tx) (map[string]string, error) {
		rows, err := tx.ListRow("views", database.Row{"view_name": optional(viewName)}, false)
		if err != nil {
			return nil, err
		}
		views := make(map[string]string, len(rows))
		for _, row := range rows {
			views[row.String("view_name")] = row.String("view_options")
		}
		return views, nil
	})
}

// MakeViewAssignment 让 superset 视图同时包含 subset 视图的记录
func (c *Core) MakeViewAssignment(ctx context.Context, superset, subset string) error {
	data := auditArgs{"view_superset": superset, "view_subset": subset}
	_, err := run(ctx, c, "MakeViewAssignment", data, func(tx *database.Tx) (uint64, error) {
		if err := checkViewExists(tx, superset); err != nil {
			return 0, err
		}
		if err := checkViewExists(tx, subset); err != nil {
			return 0, err
		}
		return tx.MakeRow("view_dependency_assignments", database.Row{
			"view_name":       superset,
			"view_dependency": viewDependency(subset),
		})
	})
	return err
}

// RemoveViewAssignment 删除视图包含关系
func (c *Core) RemoveViewAssignment(ctx context.Context, superset, subset string) (int64, error) {
	data := auditArgs{"view_superset": superset, "view_subset": subset}
	return run(ctx, c, "RemoveViewAssignment", data, func(tx *database.Tx) (int64, error) {
		if superset == subset {
			return 0, common.NewError(common.KindCoreError, "Cannot remove the own dependency of view %s", superset)
		}
		return tx.RemoveRow("view_dependency_assignments", database.Row{
			"view_name":       superset,
			"view_dependency": viewDependency(subset),
		})
	})
}

// ListViewAssignments 列出每个视图包含的依赖
func (c *Core) ListViewAssignments(ctx context.Context, superset string) (map[string][]string, error) {
	return run(ctx, c, "ListViewAssignments", auditArgs{"view_superset": superset}, func(tx *database.Tx) (map[string][]string, error) {
		assignments, err := tx.ListViewDependencyAssignments(database.Row{"view_name": optional(superset)})
		if err != nil {
			return nil, err
		}
		result := make(map[string][]string)
		for _, a := range assignments {
			result[a.ViewName] = append(result[a.ViewName], a.ViewDependency)
		}
		return result, nil
	})
}

// MakeViewToACLAssignments 在服务器组中为视图指定匹配客户端的 ACL
func (c *Core) MakeViewToACLAssignments(ctx context.Context, viewName, serverSet, aclName string, rangeAllowed bool) error {
	data := auditArgs{"view_name": viewName, "dns_server_set": serverSet, "acl_name": aclName, "acl_range_allowed": rangeAllowed}
	_, err := run(ctx, c, "MakeViewToACLAssignments", data, func(tx *database.Tx) (uint64, error) {
		return tx.MakeRow("view_acl_assignments", database.Row{
			"view_name":           viewName,
			"acl_name":            aclName,
			"dns_server_set_name": serverSet,
			"range_allowed":       rangeAllowed,
		})
	})
	return err
}

// RemoveViewToACLAssignments 删除视图 ACL
func (c *Core) RemoveViewToACLAssignments(ctx context.Context, viewName, serverSet, aclName string) (int64, error) {
	data := auditArgs{"view_name": viewName, "dns_server_set": serverSet, "acl_name": aclName}
	return run(ctx, c, "RemoveViewToACLAssignments", data, func(tx *database.Tx) (int64, error) {
		return tx.RemoveRow("view_acl_assignments", database.Row{
			"view_name":           viewName,
			"acl_name":            aclName,
			"dns_server_set_name": serverSet,
		})
	})
}

// ListViewToACLAssignments 列出视图 ACL，参数为空表示不限制
func (c *Core) ListViewToACLAssignments(ctx context.Context, viewName, serverSet, aclName string) ([]ViewACL, error) {
	data := auditArgs{"view_name": viewName, "dns_server_set": serverSet, "acl_name": aclName}
	return run(ctx, c, "ListViewToACLAssignments", data, func(tx *database.Tx) ([]ViewACL, error) {
		assignments, err := tx.ListViewACLAssignments(database.Row{
			"view_name":           optional(viewName),
			"acl_name":            optional(aclName),
			"dns_server_set_name": optional(serverSet),
		})
		if err != nil {
			return nil, err
		}
		result := make([]ViewACL, 0, len(assignments))
		for _, a := range assignments {
			result = append(result, ViewACL{
				ViewName:     a.ViewName,
				DnsServerSet: a.DnsServerSetName,
				ACLName:      a.ACLName,
				RangeAllowed: a.RangeAllowed,
			})
		}
		return result, nil
	})
}

// optional 空字符串作为通配条件
func optional(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
