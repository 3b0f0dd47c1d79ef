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

// core/dnscore/dispatch.go
// 按方法名调用 Core，参数来自 RPC 请求的位置参数和关键字参数

package dnscore

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"Roster/core/common"
)

// params 按参数名索引的原始 JSON 值
type params map[string]json.RawMessage

// decode 解码参数，参数缺失时保持零值
func (p params) decode(name string, out interface{}) error {
	raw, ok := p[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return common.WrapError(common.KindInvalidInput, err, "Invalid value for argument %s", name)
	}
	return nil
}

func (p params) str(name string) (string, error) {
	var s string
	err := p.decode(name, &s)
	return s, err
}

func (p params) boolean(name string) (bool, error) {
	var b bool
	err := p.decode(name, &b)
	return b, err
}

// strs 依次解码多个字符串参数
func (p params) strs(names ...string) ([]string, error) {
	values := make([]string, len(names))
	for i, name := range names {
		v, err := p.str(name)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (p params) recordSpec() (RecordSpec, error) {
	var spec RecordSpec
	v, err := p.strs("record_type", "target", "zone_name", "view_name")
	if err != nil {
		return spec, err
	}
	spec.RecordType, spec.Target, spec.ZoneName, spec.ViewName = v[0], v[1], v[2], v[3]
	if err := p.decode("ttl", &spec.TTL); err != nil {
		return spec, err
	}
	err = p.decode("record_args_dict", &spec.Args)
	return spec, err
}

// bindParams 把位置参数和关键字参数合并成按名字索引的参数表
func bindParams(method string, info MethodInfo, args []json.RawMessage, kwargs map[string]json.RawMessage) (params, error) {
	if len(args) > len(info.Params) {
		return nil, common.NewError(common.KindInvalidInput, "%s takes at most %d arguments (%d given)", method, len(info.Params), len(args))
	}
	p := make(params, len(args)+len(kwargs))
	for i, raw := range args {
		p[info.Params[i]] = raw
	}

	known := make(map[string]bool, len(info.Params))
	for _, name := range info.Params {
		known[name] = true
	}
	for name, raw := range kwargs {
		if !known[name] {
			return nil, common.NewError(common.KindInvalidInput, "%s got an unexpected keyword argument %s", method, name)
		}
		if _, dup := p[name]; dup {
			return nil, common.NewError(common.KindInvalidInput, "%s got multiple values for argument %s", method, name)
		}
		p[name] = raw
	}
	return p, nil
}

type handler func(ctx context.Context, c *Core, p params) (interface{}, error)

// Call 按方法名调用，下划线开头的名字和不在 SupportedMethods 中的名字一律拒绝
func (c *Core) Call(ctx context.Context, method string, args []json.RawMessage, kwargs map[string]json.RawMessage) (interface{}, error) {
	if strings.HasPrefix(method, "_") {
		return nil, common.NewError(common.KindInvalidInput, "Private method %s cannot be called", method)
	}
	info, ok := SupportedMethods[method]
	if !ok {
		return nil, common.NewError(common.KindInvalidInput, "Method %s is not supported", method)
	}
	h, ok := handlers[method]
	if !ok {
		return nil, common.NewError(common.KindInvalidInput, "Method %s is not supported", method)
	}
	p, err := bindParams(method, info, args, kwargs)
	if err != nil {
		return nil, err
	}
	return h(ctx, c, p)
}

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		// 视图
		"MakeView": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("view_name", "view_options")
			if err != nil {
				return nil, err
			}
			return nil, c.MakeView(ctx, v[0], v[1])
		},
		"RemoveView": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("view_name")
			if err != nil {
				return nil, err
			}
			return c.RemoveView(ctx, v)
		},
		"UpdateView": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("search_view_name", "update_view_options")
			if err != nil {
				return nil, err
			}
			return c.UpdateView(ctx, v[0], v[1])
		},
		"ListViews": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("view_name")
			if err != nil {
				return nil, err
			}
			return c.ListViews(ctx, v)
		},
		"MakeViewAssignment": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("view_superset", "view_subset")
			if err != nil {
				return nil, err
			}
			return nil, c.MakeViewAssignment(ctx, v[0], v[1])
		},
		"RemoveViewAssignment": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("view_superset", "view_subset")
			if err != nil {
				return nil, err
			}
			return c.RemoveViewAssignment(ctx, v[0], v[1])
		},
		"ListViewAssignments": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("view_superset")
			if err != nil {
				return nil, err
			}
			return c.ListViewAssignments(ctx, v)
		},
		"MakeViewToACLAssignments": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("view_name", "dns_server_set", "acl_name")
			if err != nil {
				return nil, err
			}
			allowed, err := p.boolean("acl_range_allowed")
			if err != nil {
				return nil, err
			}
			return nil, c.MakeViewToACLAssignments(ctx, v[0], v[1], v[2], allowed)
		},
		"RemoveViewToACLAssignments": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("view_name", "dns_server_set", "acl_name")
			if err != nil {
				return nil, err
			}
			return c.RemoveViewToACLAssignments(ctx, v[0], v[1], v[2])
		},
		"ListViewToACLAssignments": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("view_name", "dns_server_set", "acl_name")
			if err != nil {
				return nil, err
			}
			return c.ListViewToACLAssignments(ctx, v[0], v[1], v[2])
		},

		// 区域
		"MakeZone": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("zone_name", "zone_type", "zone_origin", "view_name", "zone_options")
			if err != nil {
				return nil, err
			}
			spec := ZoneSpec{ZoneName: v[0], ZoneType: v[1], ZoneOrigin: v[2], ViewName: v[3], ZoneOptions: v[4]}
			if err := p.decode("make_soa", &spec.MakeSOA); err != nil {
				return nil, err
			}
			return nil, c.MakeZone(ctx, spec)
		},
		"RemoveZone": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("zone_name", "view_name")
			if err != nil {
				return nil, err
			}
			return c.RemoveZone(ctx, v[0], v[1])
		},
		"ListZones": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("view_name")
			if err != nil {
				return nil, err
			}
			return c.ListZones(ctx, v)
		},
		"MakeReverseRangeZoneAssignment": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("zone_name", "cidr_block")
			if err != nil {
				return nil, err
			}
			return nil, c.MakeReverseRangeZoneAssignment(ctx, v[0], v[1])
		},
		"RemoveReverseRangeZoneAssignment": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("zone_name", "cidr_block")
			if err != nil {
				return nil, err
			}
			return c.RemoveReverseRangeZoneAssignment(ctx, v[0], v[1])
		},
		"ListReverseRangeZoneAssignments": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("zone_name")
			if err != nil {
				return nil, err
			}
			return c.ListReverseRangeZoneAssignments(ctx, v)
		},

		// 记录
		"MakeRecord": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			spec, err := p.recordSpec()
			if err != nil {
				return nil, err
			}
			return c.MakeRecord(ctx, spec)
		},
		"RemoveRecord": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			spec, err := p.recordSpec()
			if err != nil {
				return nil, err
			}
			return c.RemoveRecord(ctx, spec)
		},
		"UpdateRecord": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			var search RecordSpec
			var update RecordUpdate
			if err := p.decode("search", &search); err != nil {
				return nil, err
			}
			if err := p.decode("update", &update); err != nil {
				return nil, err
			}
			return c.UpdateRecord(ctx, search, update)
		},
		"ListRecords": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			spec, err := p.recordSpec()
			if err != nil {
				return nil, err
			}
			return c.ListRecords(ctx, RecordFilter{
				RecordType: spec.RecordType,
				Target:     spec.Target,
				ZoneName:   spec.ZoneName,
				ViewName:   spec.ViewName,
				TTL:        spec.TTL,
				Args:       spec.Args,
			})
		},
		"ListRecordsByCIDRBlock": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("cidr_block", "view_name")
			if err != nil {
				return nil, err
			}
			return c.ListRecordsByCIDRBlock(ctx, v[0], v[1])
		},
		"ProcessRecordsBatch": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			var deletes, adds []RecordSpec
			if err := p.decode("delete_records", &deletes); err != nil {
				return nil, err
			}
			if err := p.decode("add_records", &adds); err != nil {
				return nil, err
			}
			zoneImport, err := p.boolean("zone_import")
			if err != nil {
				return nil, err
			}
			return c.ProcessRecordsBatch(ctx, deletes, adds, zoneImport)
		},
		"GetPTRTarget": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("ip_address", "view_name")
			if err != nil {
				return nil, err
			}
			target, err := c.GetPTRTarget(ctx, v[0], v[1])
			if err != nil {
				return nil, err
			}
			return []string{target.Target, target.ZoneName}, nil
		},
		"ListRecordArgumentDefinitions": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("record_type")
			if err != nil {
				return nil, err
			}
			return c.ListRecordArgumentDefinitions(ctx, v)
		},
		"ListZoneTypes": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			return c.ListZoneTypes(ctx)
		},
		"ListRecordTypes": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			return c.ListRecordTypes(ctx)
		},

		// ACL
		"MakeACL": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("acl_name", "cidr_block")
			if err != nil {
				return nil, err
			}
			allowed, err := p.boolean("range_allowed")
			if err != nil {
				return nil, err
			}
			return nil, c.MakeACL(ctx, v[0], v[1], allowed)
		},
		"RemoveACL": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("acl_name")
			if err != nil {
				return nil, err
			}
			return c.RemoveACL(ctx, v)
		},
		"RemoveCIDRBlockFromACL": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("cidr_block", "acl_name")
			if err != nil {
				return nil, err
			}
			return c.RemoveCIDRBlockFromACL(ctx, v[0], v[1])
		},
		"ListACLs": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("acl_name", "cidr_block")
			if err != nil {
				return nil, err
			}
			return c.ListACLs(ctx, v[0], v[1])
		},

		// 服务器与服务器组
		"MakeDnsServer": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("dns_server_name", "ssh_user", "bind_dir", "test_dir")
			if err != nil {
				return nil, err
			}
			return nil, c.MakeDnsServer(ctx, v[0], DnsServerInfo{SSHUser: v[1], BindDir: v[2], TestDir: v[3]})
		},
		"RemoveDnsServer": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("dns_server_name")
			if err != nil {
				return nil, err
			}
			return c.RemoveDnsServer(ctx, v)
		},
		"UpdateDnsServer": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("search_dns_server_name", "ssh_user", "bind_dir", "test_dir")
			if err != nil {
				return nil, err
			}
			return c.UpdateDnsServer(ctx, v[0], DnsServerInfo{SSHUser: v[1], BindDir: v[2], TestDir: v[3]})
		},
		"ListDnsServers": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("dns_server_name")
			if err != nil {
				return nil, err
			}
			return c.ListDnsServers(ctx, v)
		},
		"MakeDnsServerSet": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("dns_server_set_name")
			if err != nil {
				return nil, err
			}
			return nil, c.MakeDnsServerSet(ctx, v)
		},
		"RemoveDnsServerSet": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("dns_server_set_name")
			if err != nil {
				return nil, err
			}
			return c.RemoveDnsServerSet(ctx, v)
		},
		"ListDnsServerSets": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("dns_server_set_name")
			if err != nil {
				return nil, err
			}
			return c.ListDnsServerSets(ctx, v)
		},
		"MakeDnsServerSetAssignments": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("dns_server_name", "dns_server_set_name")
			if err != nil {
				return nil, err
			}
			return nil, c.MakeDnsServerSetAssignments(ctx, v[0], v[1])
		},
		"RemoveDnsServerSetAssignments": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("dns_server_name", "dns_server_set_name")
			if err != nil {
				return nil, err
			}
			return c.RemoveDnsServerSetAssignments(ctx, v[0], v[1])
		},
		"ListDnsServerSetAssignments": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("dns_server_name", "dns_server_set_name")
			if err != nil {
				return nil, err
			}
			return c.ListDnsServerSetAssignments(ctx, v[0], v[1])
		},
		"MakeDnsServerSetViewAssignments": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("view_name", "dns_server_set_name", "view_options")
			if err != nil {
				return nil, err
			}
			var order uint32
			if err := p.decode("view_order", &order); err != nil {
				return nil, err
			}
			return nil, c.MakeDnsServerSetViewAssignments(ctx, v[0], order, v[1], v[2])
		},
		"RemoveDnsServerSetViewAssignments": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("view_name", "dns_server_set_name")
			if err != nil {
				return nil, err
			}
			return c.RemoveDnsServerSetViewAssignments(ctx, v[0], v[1])
		},
		"ListDnsServerSetViewAssignments": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("view_name", "dns_server_set_name")
			if err != nil {
				return nil, err
			}
			return c.ListDnsServerSetViewAssignments(ctx, v[0], v[1])
		},

		// named.conf 全局选项
		"MakeNamedConfGlobalOption": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("dns_server_set_name", "options")
			if err != nil {
				return nil, err
			}
			return c.MakeNamedConfGlobalOption(ctx, v[0], v[1])
		},
		"ListNamedConfGlobalOptions": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("dns_server_set_name")
			if err != nil {
				return nil, err
			}
			var id uint64
			if err := p.decode("option_id", &id); err != nil {
				return nil, err
			}
			return c.ListNamedConfGlobalOptions(ctx, v, id)
		},

		// 用户
		"MakeUser": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("user_name", "password")
			if err != nil {
				return nil, err
			}
			var level int
			if err := p.decode("access_level", &level); err != nil {
				return nil, err
			}
			return nil, c.MakeUser(ctx, v[0], level, v[1])
		},
		"RemoveUser": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("user_name")
			if err != nil {
				return nil, err
			}
			return c.RemoveUser(ctx, v)
		},
		"UpdateUser": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.strs("search_user_name", "update_password")
			if err != nil {
				return nil, err
			}
			var level *int
			if err := p.decode("update_access_level", &level); err != nil {
				return nil, err
			}
			return c.UpdateUser(ctx, v[0], level, v[1])
		},
		"ListUsers": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			v, err := p.str("user_name")
			if err != nil {
				return nil, err
			}
			return c.ListUsers(ctx, v)
		},

		// 审计与维护
		"ListAuditLog": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			var q AuditQuery
			v, err := p.strs("user_name", "action")
			if err != nil {
				return nil, err
			}
			q.UserName, q.Action = v[0], v[1]
			if err := p.decode("success", &q.Success); err != nil {
				return nil, err
			}
			if err := p.decode("begin_timestamp", &q.Begin); err != nil {
				return nil, err
			}
			if err := p.decode("end_timestamp", &q.End); err != nil {
				return nil, err
			}
			return c.ListAuditLog(ctx, q)
		},
		"SetMaintenanceFlag": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			on, err := p.boolean("flag")
			if err != nil {
				return nil, err
			}
			return nil, c.SetMaintenanceFlag(ctx, on)
		},
		"CheckMaintenanceFlag": func(ctx context.Context, c *Core, p params) (interface{}, error) {
			return c.CheckMaintenanceFlag(ctx)
		},
	}
}
