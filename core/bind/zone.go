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

// core/bind/zone.go
// 区域文件生成

package bind

import (
	"bytes"
	"fmt"
	"strings"

	"Roster/core/common"
	"Roster/core/record"
)

// ZoneFileHeader 生成的区域文件首行
const ZoneFileHeader = "; This zone file is autogenerated. DO NOT EDIT."

// MakeZoneString 生成区域文件内容，SOA 在最前，其余记录保持传入顺序
func MakeZoneString(records []CookedRecord, origin string, defs ArgumentDefs, zoneName, viewName string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(ZoneFileHeader + "\n")
	fmt.Fprintf(&buf, "$ORIGIN %s\n", strings.TrimSuffix(origin, ".")+".")

	soaCount := 0
	for _, r := range records {
		if r.RecordType != record.TypeSOA {
			continue
		}
		soaCount++
		if soaCount > 1 {
			return "", common.NewError(common.KindSchemaError,
				"Zone %s in view %s has more than one SOA record", zoneName, viewName)
		}
		line, err := zoneLine(r, defs, zoneName, viewName)
		if err != nil {
			return "", err
		}
		buf.WriteString(line + "\n")
	}

	for _, r := range records {
		if r.RecordType == record.TypeSOA {
			continue
		}
		line, err := zoneLine(r, defs, zoneName, viewName)
		if err != nil {
			return "", err
		}
		buf.WriteString(line + "\n")
	}
	return buf.String(), nil
}

// CheckZoneSOA 主区域必须恰好有一条 SOA 记录
func CheckZoneSOA(zone *CookedZone, zoneName, viewName string) error {
	if zone.ZoneType != record.ZoneMaster {
		return nil
	}
	soaCount := 0
	for _, r := range zone.Records {
		if r.RecordType == record.TypeSOA {
			soaCount++
		}
	}
	switch {
	case soaCount == 0:
		return common.NewError(common.KindSchemaError,
			"Master zone %s in view %s has no SOA record", zoneName, viewName)
	case soaCount > 1:
		return common.NewError(common.KindSchemaError,
			"Zone %s in view %s has more than one SOA record", zoneName, viewName)
	}
	return nil
}

// zoneLine 生成 "<target> <ttl> in <type> <args...>"，参数个数必须与定义一致
func zoneLine(r CookedRecord, defs ArgumentDefs, zoneName, viewName string) (string, error) {
	names, ok := defs[r.RecordType]
	if !ok {
		return "", common.NewError(common.KindSchemaError,
			"Record type %s has no argument definitions", r.RecordType)
	}
	if len(r.Args) != len(names) {
		return "", common.NewError(common.KindSchemaError,
			"%s record %s in zone %s view %s has %d arguments, expected %d",
			r.RecordType, r.Target, zoneName, viewName, len(r.Args), len(names))
	}

	values := make([]string, 0, len(names))
	for _, name := range names {
		value, ok := r.Args[name]
		if !ok {
			return "", common.NewError(common.KindSchemaError,
				"%s record %s in zone %s view %s is missing argument %s",
				r.RecordType, r.Target, zoneName, viewName, name)
		}
		values = append(values, record.FormatValue(value))
	}
	return fmt.Sprintf("%s %d in %s %s", r.Target, r.TTL, r.RecordType, strings.Join(values, " ")), nil
}
