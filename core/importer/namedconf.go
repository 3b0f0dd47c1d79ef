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

// core/importer/namedconf.go
// 导入已有的 named.conf：ACL、视图、区域与全局选项

package importer

import (
	"context"
	"fmt"
	"strings"

	"Roster/core/bind/namedconf"
	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/dnscore"
	"Roster/core/record"
)

// ImportedZone 导入的区域实例，File 为 named.conf 中的文件路径
type ImportedZone struct {
	ZoneName   string `json:"zone_name" yaml:"zone_name"`
	ViewName   string `json:"view_name" yaml:"view_name"`
	ZoneType   string `json:"zone_type" yaml:"zone_type"`
	ZoneOrigin string `json:"zone_origin" yaml:"zone_origin"`
	File       string `json:"file" yaml:"file"`
}

// NamedImportResult named.conf 导入结果
type NamedImportResult struct {
	DnsServerSet  string         `json:"dns_server_set" yaml:"dns_server_set"`
	ACLs          []string       `json:"acls" yaml:"acls"`
	Views         []string       `json:"views" yaml:"views"`
	Zones         []ImportedZone `json:"zones" yaml:"zones"`
	GlobalOptions bool           `json:"global_options" yaml:"global_options"`
}

// 这些语句由 Roster 自行生成，不进入全局选项
var generatedStatements = map[string]bool{"acl": true, "view": true, "zone": true}

// BIND 9.14 以后的区域类型写法
var zoneTypeAliases = map[string]string{"primary": record.ZoneMaster, "secondary": record.ZoneSlave}

func firstWord(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return namedconf.Unquote(fields[0])
}

// ImportNamedConf 按服务器组导入 named.conf；区域只创建实例不生成 SOA，记录由区域文件导入
func (im *Importer) ImportNamedConf(ctx context.Context, content, setName string) (*NamedImportResult, error) {
	root, err := namedconf.ParseContent(content)
	if err != nil {
		return nil, common.NewError(common.KindUnexpectedData, "Could not parse named.conf: %v", err)
	}
	result := &NamedImportResult{DnsServerSet: setName, ACLs: []string{}, Views: []string{}, Zones: []ImportedZone{}}

	if err := im.ensureServerSet(ctx, setName); err != nil {
		return nil, err
	}

	for _, acl := range root.Find("acl") {
		name := namedconf.Unquote(acl.Value)
		if err := im.importACL(ctx, name, acl.ChildElements); err != nil {
			return nil, fmt.Errorf("导入 ACL %s 失败: %w", name, err)
		}
		result.ACLs = append(result.ACLs, name)
	}

	var global []namedconf.ConfigElement
	for _, e := range root.ChildElements {
		if !generatedStatements[e.Name] {
			global = append(global, e)
		}
	}
	if len(global) > 0 {
		options := namedconf.NewGenerator().GenerateElements(global)
		if _, err := im.core.MakeNamedConfGlobalOption(ctx, setName, options); err != nil {
			return nil, fmt.Errorf("导入全局选项失败: %w", err)
		}
		result.GlobalOptions = true
	}

	order, err := im.nextViewOrder(ctx, setName)
	if err != nil {
		return nil, err
	}
	for _, view := range root.Find("view") {
		name := firstWord(view.Value)
		if name == "" {
			return nil, common.NewError(common.KindUnexpectedData, "View statement without a name")
		}
		zones, err := im.importView(ctx, view, name, order, setName)
		if err != nil {
			return nil, fmt.Errorf("导入视图 %s 失败: %w", name, err)
		}
		order++
		result.Views = append(result.Views, name)
		result.Zones = append(result.Zones, zones...)
	}

	// 视图之外的区域属于所有视图
	for _, zone := range root.Find("zone") {
		imported, ok, err := im.importZone(ctx, zone, "")
		if err != nil {
			return nil, err
		}
		if ok {
			result.Zones = append(result.Zones, imported)
		}
	}

	im.logger.Info("服务器组 %s 导入完成: %d 个ACL, %d 个视图, %d 个区域",
		setName, len(result.ACLs), len(result.Views), len(result.Zones))
	return result, nil
}

func (im *Importer) ensureServerSet(ctx context.Context, setName string) error {
	sets, err := im.core.ListDnsServerSets(ctx, setName)
	if err != nil {
		return err
	}
	if len(sets) > 0 {
		return nil
	}
	return im.core.MakeDnsServerSet(ctx, setName)
}

// nextViewOrder 新视图排在服务器组已有视图之后
func (im *Importer) nextViewOrder(ctx context.Context, setName string) (uint32, error) {
	assignments, err := im.core.ListDnsServerSetViewAssignments(ctx, "", setName)
	if err != nil {
		return 0, err
	}
	var order uint32 = 1
	for _, v := range assignments[setName] {
		if v.ViewOrder >= order {
			order = v.ViewOrder + 1
		}
	}
	return order, nil
}

// addressEntry 判断 ACL 或 match-clients 中的条目是否为地址段
func addressEntry(entry string) (string, bool, bool) {
	allowed := !strings.HasPrefix(entry, "!")
	cidr := strings.TrimSpace(strings.TrimPrefix(entry, "!"))
	if _, err := record.NormalizeCIDR(cidr); err != nil {
		return cidr, allowed, false
	}
	return cidr, allowed, true
}

func (im *Importer) importACL(ctx context.Context, name string, entries []namedconf.ConfigElement) error {
	for _, entry := range entries {
		cidr, allowed, ok := addressEntry(entry.Name)
		if !ok {
			im.logger.Warn("ACL %s 中的条目 %s 不是地址段，已跳过", name, entry.Name)
			continue
		}
		if err := im.core.MakeACL(ctx, name, cidr, allowed); err != nil {
			return err
		}
	}
	return nil
}

func (im *Importer) importView(ctx context.Context, view namedconf.ConfigElement, name string, order uint32, setName string) ([]ImportedZone, error) {
	var options []namedconf.ConfigElement
	var matchClients []namedconf.ConfigElement
	for _, child := range view.ChildElements {
		switch child.Name {
		case "zone":
		case "match-clients":
			matchClients = append(matchClients, child.ChildElements...)
		default:
			options = append(options, child)
		}
	}

	existing, err := im.core.ListViews(ctx, name)
	if err != nil {
		return nil, err
	}
	viewOptions := namedconf.NewGenerator().GenerateElements(options)
	if _, ok := existing[name]; ok {
		if _, err := im.core.UpdateView(ctx, name, viewOptions); err != nil {
			return nil, err
		}
	} else if err := im.core.MakeView(ctx, name, viewOptions); err != nil {
		return nil, err
	}
	if err := im.core.MakeDnsServerSetViewAssignments(ctx, name, order, setName, ""); err != nil {
		return nil, err
	}

	// 直接写在 match-clients 中的地址段归入 <view>_clients
	inlineACL := name + "_clients"
	inlineAssigned := false
	for _, client := range matchClients {
		if cidr, allowed, ok := addressEntry(client.Name); ok {
			if err := im.core.MakeACL(ctx, inlineACL, cidr, allowed); err != nil {
				return nil, err
			}
			if !inlineAssigned {
				if err := im.core.MakeViewToACLAssignments(ctx, name, setName, inlineACL, true); err != nil {
					return nil, err
				}
				inlineAssigned = true
			}
			continue
		}
		aclName := strings.TrimPrefix(client.Name, "!")
		if aclName == database.AnyACL {
			continue
		}
		if record.IsReservedWord(aclName, nil) {
			im.logger.Warn("视图 %s 的 match-clients 使用内置 ACL %s，已跳过", name, aclName)
			continue
		}
		if err := im.core.MakeViewToACLAssignments(ctx, name, setName, aclName, !strings.HasPrefix(client.Name, "!")); err != nil {
			return nil, err
		}
	}

	var zones []ImportedZone
	for _, zone := range view.Find("zone") {
		imported, ok, err := im.importZone(ctx, zone, name)
		if err != nil {
			return nil, err
		}
		if ok {
			zones = append(zones, imported)
		}
	}
	return zones, nil
}

// importZone 根提示区域由导出配置中的根提示文件提供，不导入
func (im *Importer) importZone(ctx context.Context, zone namedconf.ConfigElement, viewName string) (ImportedZone, bool, error) {
	origin := strings.ToLower(firstWord(zone.Value))
	if origin == "" {
		return ImportedZone{}, false, common.NewError(common.KindUnexpectedData, "Zone statement without a name")
	}
	zoneType := record.ZoneMaster
	if t, ok := zone.First("type"); ok {
		zoneType = strings.ToLower(t.Value)
		if alias, ok := zoneTypeAliases[zoneType]; ok {
			zoneType = alias
		}
	}
	if origin == "." || zoneType == record.ZoneHint {
		im.logger.Debug("跳过根提示区域 %s", origin)
		return ImportedZone{}, false, nil
	}

	file := ""
	var options []namedconf.ConfigElement
	for _, child := range zone.ChildElements {
		switch child.Name {
		case "type":
		case "file":
			file = namedconf.Unquote(child.Value)
		default:
			options = append(options, child)
		}
	}

	makeSOA := false
	imported := ImportedZone{
		ZoneName:   strings.TrimSuffix(origin, "."),
		ViewName:   viewName,
		ZoneType:   zoneType,
		ZoneOrigin: strings.TrimSuffix(origin, ".") + ".",
		File:       file,
	}
	err := im.core.MakeZone(ctx, dnscore.ZoneSpec{
		ZoneName:    imported.ZoneName,
		ZoneType:    zoneType,
		ZoneOrigin:  imported.ZoneOrigin,
		ViewName:    viewName,
		ZoneOptions: namedconf.NewGenerator().GenerateElements(options),
		MakeSOA:     &makeSOA,
	})
	if err != nil {
		return ImportedZone{}, false, fmt.Errorf("导入区域 %s 失败: %w", imported.ZoneName, err)
	}
	return imported, true, nil
}
