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

// core/dnscore/servers.go
// DNS服务器、服务器组以及 named.conf 全局选项

package dnscore

import (
	"context"
	"time"

	"Roster/core/bind/namedconf"
	"Roster/core/common"
	"Roster/core/database"
)

// DnsServerInfo 服务器的部署信息
type DnsServerInfo struct {
	SSHUser string `json:"ssh_user" yaml:"ssh_user"`
	BindDir string `json:"bind_dir" yaml:"bind_dir"`
	TestDir string `json:"test_dir" yaml:"test_dir"`
}

// SetView 服务器组中的一个视图
type SetView struct {
	ViewName    string `json:"view_name" yaml:"view_name"`
	ViewOrder   uint32 `json:"view_order" yaml:"view_order"`
	ViewOptions string `json:"view_options" yaml:"view_options"`
}

// GlobalOption 一条 named.conf 全局选项历史
type GlobalOption struct {
	ID               uint64    `json:"id" yaml:"id"`
	DnsServerSetName string    `json:"dns_server_set_name" yaml:"dns_server_set_name"`
	Options          string    `json:"options" yaml:"options"`
	Created          time.Time `json:"timestamp" yaml:"timestamp"`
}

// MakeDnsServer 新建服务器
func (c *Core) MakeDnsServer(ctx context.Context, name string, info DnsServerInfo) error {
	data := auditArgs{"dns_server_name": name, "ssh_user": info.SSHUser, "bind_dir": info.BindDir, "test_dir": info.TestDir}
	_, err := run(ctx, c, "MakeDnsServer", data, func(tx *database.Tx) (uint64, error) {
		return tx.MakeRow("dns_servers", database.Row{
			"dns_server_name": name,
			"ssh_user":        info.SSHUser,
			"bind_dir":        info.BindDir,
			"test_dir":        info.TestDir,
		})
	})
	return err
}

// RemoveDnsServer 删除服务器
func (c *Core) RemoveDnsServer(ctx context.Context, name string) (int64, error) {
	return run(ctx, c, "RemoveDnsServer", auditArgs{"dns_server_name": name}, func(tx *database.Tx) (int64, error) {
		return tx.RemoveRow("dns_servers", database.Row{"dns_server_name": name})
	})
}

// UpdateDnsServer 修改服务器部署信息
func (c *Core) UpdateDnsServer(ctx context.Context, name string, info DnsServerInfo) (int64, error) {
	data := auditArgs{"search_dns_server_name": name, "ssh_user": info.SSHUser, "bind_dir": info.BindDir, "test_dir": info.TestDir}
	return run(ctx, c, "UpdateDnsServer", data, func(tx *database.Tx) (int64, error) {
		return tx.UpdateRow("dns_servers", database.Row{"dns_server_name": name}, database.Row{
			"ssh_user": info.SSHUser,
			"bind_dir": info.BindDir,
			"test_dir": info.TestDir,
		})
	})
}

// ListDnsServers 列出服务器
func (c *Core) ListDnsServers(ctx context.Context, name string) (map[string]DnsServerInfo, error) {
	return run(ctx, c, "ListDnsServers", auditArgs{"dns_server_name": name}, func(tx *database.Tx) (map[string]DnsServerInfo, error) {
		servers, err := tx.ListDnsServers(database.Row{"dns_server_name": optional(name)})
		if err != nil {
			return nil, err
		}
		result := make(map[string]DnsServerInfo, len(servers))
		for _, s := range servers {
			result[s.DnsServerName] = DnsServerInfo{SSHUser: s.SSHUser, BindDir: s.BindDir, TestDir: s.TestDir}
		}
		return result, nil
	})
}

// MakeDnsServerSet 新建服务器组
func (c *Core) MakeDnsServerSet(ctx context.Context, setName string) error {
	_, err := run(ctx, c, "MakeDnsServerSet", auditArgs{"dns_server_set_name": setName}, func(tx *database.Tx) (uint64, error) {
		return tx.MakeRow("dns_server_sets", database.Row{"dns_server_set_name": setName})
	})
	return err
}

// RemoveDnsServerSet 删除服务器组
func (c *Core) RemoveDnsServerSet(ctx context.Context, setName string) (int64, error) {
	return run(ctx, c, "RemoveDnsServerSet", auditArgs{"dns_server_set_name": setName}, func(tx *database.Tx) (int64, error) {
		return tx.RemoveRow("dns_server_sets", database.Row{"dns_server_set_name": setName})
	})
}

// ListDnsServerSets 列出服务器组
func (c *Core) ListDnsServerSets(ctx context.Context, setName string) ([]string, error) {
	return run(ctx, c, "ListDnsServerSets", auditArgs{"dns_server_set_name": setName}, func(tx *database.Tx) ([]string, error) {
		rows, err := tx.ListRow("dns_server_sets", database.Row{"dns_server_set_name": optional(setName)}, false)
		if err != nil {
			return nil, err
		}
		sets := make([]string, 0, len(rows))
		for _, row := range rows {
			sets = append(sets, row.String("dns_server_set_name"))
		}
		return sets, nil
	})
}

// MakeDnsServerSetAssignments 把服务器加入服务器组
func (c *Core) MakeDnsServerSetAssignments(ctx context.Context, serverName, setName string) error {
	data := auditArgs{"dns_server_name": serverName, "dns_server_set_name": setName}
	_, err := run(ctx, c, "MakeDnsServerSetAssignments", data, func(tx *database.Tx) (uint64, error) {
		return tx.MakeRow("dns_server_set_assignments", database.Row{
			"dns_server_name":     serverName,
			"dns_server_set_name": setName,
		})
	})
	return err
}

// RemoveDnsServerSetAssignments 把服务器移出服务器组
func (c *Core) RemoveDnsServerSetAssignments(ctx context.Context, serverName, setName string) (int64, error) {
	data := auditArgs{"dns_server_name": serverName, "dns_server_set_name": setName}
	return run(ctx, c, "RemoveDnsServerSetAssignments", data, func(tx *database.Tx) (int64, error) {
		return tx.RemoveRow("dns_server_set_assignments", database.Row{
			"dns_server_name":     serverName,
			"dns_server_set_name": setName,
		})
	})
}

// ListDnsServerSetAssignments 列出每个服务器组的成员
func (c *Core) ListDnsServerSetAssignments(ctx context.Context, serverName, setName string) (map[string][]string, error) {
	data := auditArgs{"dns_server_name": serverName, "dns_server_set_name": setName}
	return run(ctx, c, "ListDnsServerSetAssignments", data, func(tx *database.Tx) (map[string][]string, error) {
		assignments, err := tx.ListDnsServerSetAssignments(database.Row{
			"dns_server_name":     optional(serverName),
			"dns_server_set_name": optional(setName),
		})
		if err != nil {
			return nil, err
		}
		result := make(map[string][]string)
		for _, a := range assignments {
			result[a.DnsServerSetName] = append(result[a.DnsServerSetName], a.DnsServerName)
		}
		return result, nil
	})
}

// MakeDnsServerSetViewAssignments 把视图加入服务器组，view_order 在组内唯一
func (c *Core) MakeDnsServerSetViewAssignments(ctx context.Context, viewName string, viewOrder uint32, setName, viewOptions string) error {
	data := auditArgs{"view_name": viewName, "view_order": viewOrder, "dns_server_set_name": setName, "view_options": viewOptions}
	_, err := run(ctx, c, "MakeDnsServerSetViewAssignments", data, func(tx *database.Tx) (uint64, error) {
		used, err := tx.ListDnsServerSetViewAssignments(database.Row{"dns_server_set_name": setName, "view_order": viewOrder})
		if err != nil {
			return 0, err
		}
		if len(used) > 0 {
			return 0, common.NewError(common.KindCoreError, "View order %d is already used by view %s in set %s",
				viewOrder, used[0].ViewName, setName)
		}
		return tx.MakeRow("dns_server_set_view_assignments", database.Row{
			"dns_server_set_name": setName,
			"view_name":           viewName,
			"view_order":          viewOrder,
			"view_options":        viewOptions,
		})
	})
	return err
}

// RemoveDnsServerSetViewAssignments 把视图移出服务器组
func (c *Core) RemoveDnsServerSetViewAssignments(ctx context.Context, viewName, setName string) (int64, error) {
	data := auditArgs{"view_name": viewName, "dns_server_set_name": setName}
	return run(ctx, c, "RemoveDnsServerSetViewAssignments", data, func(tx *database.Tx) (int64, error) {
		return tx.RemoveRow("dns_server_set_view_assignments", database.Row{
			"view_name":           viewName,
			"dns_server_set_name": setName,
		})
	})
}

// ListDnsServerSetViewAssignments 列出每个服务器组中的视图，按 view_order 排序
func (c *Core) ListDnsServerSetViewAssignments(ctx context.Context, viewName, setName string) (map[string][]SetView, error) {
	data := auditArgs{"view_name": viewName, "dns_server_set_name": setName}
	return run(ctx, c, "ListDnsServerSetViewAssignments", data, func(tx *database.Tx) (map[string][]SetView, error) {
		assignments, err := tx.ListDnsServerSetViewAssignments(database.Row{
			"view_name":           optional(viewName),
			"dns_server_set_name": optional(setName),
		})
		if err != nil {
			return nil, err
		}
		result := make(map[string][]SetView)
		for _, a := range assignments {
			result[a.DnsServerSetName] = append(result[a.DnsServerSetName], SetView{
				ViewName:    a.ViewName,
				ViewOrder:   a.ViewOrder,
				ViewOptions: a.ViewOptions,
			})
		}
		return result, nil
	})
}

// MakeNamedConfGlobalOption 为服务器组保存新的全局选项，旧版本保留为历史
func (c *Core) MakeNamedConfGlobalOption(ctx context.Context, setName, options string) (uint64, error) {
	data := auditArgs{"dns_server_set_name": setName, "options": options}
	return run(ctx, c, "MakeNamedConfGlobalOption", data, func(tx *database.Tx) (uint64, error) {
		if err := namedconf.CheckGlobalOptions(options); err != nil {
			return 0, err
		}
		return tx.MakeRow("named_conf_global_options", database.Row{
			"dns_server_set_name": setName,
			"global_options":      options,
			"options_created":     c.store.Now(),
		})
	})
}

// ListNamedConfGlobalOptions 列出全局选项历史，按创建时间排序
func (c *Core) ListNamedConfGlobalOptions(ctx context.Context, setName string, optionID uint64) ([]GlobalOption, error) {
	data := auditArgs{"dns_server_set_name": setName, "option_id": optionID}
	return run(ctx, c, "ListNamedConfGlobalOptions", data, func(tx *database.Tx) ([]GlobalOption, error) {
		filter := database.Row{"dns_server_set_name": optional(setName)}
		if optionID > 0 {
			filter["id"] = optionID
		}
		options, err := tx.ListNamedConfGlobalOptions(filter)
		if err != nil {
			return nil, err
		}
		result := make([]GlobalOption, 0, len(options))
		for _, o := range options {
			result = append(result, GlobalOption{
				ID:               o.ID,
				DnsServerSetName: o.DnsServerSetName,
				Options:          o.GlobalOptions,
				Created:          o.OptionsCreated,
			})
		}
		return result, nil
	})
}
