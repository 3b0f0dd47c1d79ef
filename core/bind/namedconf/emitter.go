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

// core/bind/namedconf/emitter.go
// 为服务器组生成 named.conf

package namedconf

import (
	"strings"

	"Roster/core/bind"
	"Roster/core/common"
	"Roster/core/database"
)

// NamedConfHeader 生成的 named.conf 首行
const NamedConfHeader = "#This named.conf file is autogenerated. DO NOT EDIT"

// ZoneFilePath 区域文件相对于 named 目录的路径
func ZoneFilePath(viewName, zoneName string) string {
	return viewName + "/" + zoneName + ".db"
}

// MakeNamedConf 生成服务器组的 named.conf，组内所有服务器内容相同
func MakeNamedConf(cooked *bind.Cooked, setName string) (string, error) {
	set, ok := cooked.Sets[setName]
	if !ok {
		return "", common.NewError(common.KindCoreError, "DNS server set %s not found", setName)
	}

	sections := []string{NamedConfHeader}
	if options := strings.TrimSpace(cooked.GlobalOptions[setName]); options != "" {
		sections = append(sections, options)
	}
	for _, aclName := range cooked.ACLNames() {
		sections = append(sections, aclBlock(aclName, cooked.ACLs[aclName]))
	}
	for _, viewName := range set.ViewNames() {
		sections = append(sections, viewBlock(viewName, set.Views[viewName]))
	}
	return strings.Join(sections, "\n\n") + "\n", nil
}

// aclBlock 每个地址段一行，不允许的地址段加 !
func aclBlock(name string, ranges []database.ACLRange) string {
	var sb strings.Builder
	sb.WriteString("acl " + name + " {\n")
	for _, r := range ranges {
		sb.WriteString("\t")
		if !r.RangeAllowed {
			sb.WriteString("!")
		}
		sb.WriteString(r.CIDRBlock + ";\n")
	}
	sb.WriteString("};")
	return sb.String()
}

// matchClients 视图没有 any 以外的 ACL 时匹配 any
func matchClients(acls []bind.CookedACL) string {
	var clients []string
	for _, acl := range acls {
		if acl.ACLName == database.AnyACL {
			continue
		}
		name := acl.ACLName
		if !acl.RangeAllowed {
			name = "!" + name
		}
		clients = append(clients, name+";")
	}
	if len(clients) == 0 {
		clients = []string{database.AnyACL + ";"}
	}
	return "match-clients { " + strings.Join(clients, " ") + " };"
}

func viewBlock(viewName string, view *bind.CookedView) string {
	var sb strings.Builder
	sb.WriteString("view \"" + viewName + "\" {\n")
	sb.WriteString("\t" + matchClients(view.ACLs) + "\n")
	writeOptionLines(&sb, view.ViewOptions, "\t")

	for _, zoneName := range view.ZoneNames() {
		zone := view.Zones[zoneName]
		sb.WriteString("\tzone \"" + strings.TrimSuffix(zone.ZoneOrigin, ".") + "\" {\n")
		sb.WriteString("\t\ttype " + zone.ZoneType + ";\n")
		sb.WriteString("\t\tfile \"" + ZoneFilePath(viewName, zoneName) + "\";\n")
		writeOptionLines(&sb, zone.ZoneOptions, "\t\t")
		sb.WriteString("\t};\n")
	}
	sb.WriteString("};")
	return sb.String()
}

// writeOptionLines 逐行重新缩进选项文本，空行丢弃
func writeOptionLines(sb *strings.Builder, options, indent string) {
	for _, line := range strings.Split(options, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			sb.WriteString(indent + line + "\n")
		}
	}
}
