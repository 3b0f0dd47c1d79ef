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

// core/importer/zonefile.go
// 导入区域文件

package importer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/miekg/dns"

	"Roster/core/common"
	"Roster/core/dnscore"
	"Roster/core/record"
)

// Importer 把已有的 BIND 配置导入数据库
type Importer struct {
	core   *dnscore.Core
	logger *common.Logger
}

// NewImporter 创建导入器，所有写入都以 core 的用户身份记录审计日志
func NewImporter(core *dnscore.Core) *Importer {
	return &Importer{
		core:   core,
		logger: common.NewComponentLogger("importer"),
	}
}

// ZoneImportResult 区域文件导入结果
type ZoneImportResult struct {
	ZoneName string   `json:"zone_name" yaml:"zone_name"`
	ViewName string   `json:"view_name" yaml:"view_name"`
	Imported int      `json:"imported" yaml:"imported"`
	Skipped  []string `json:"skipped" yaml:"skipped"`
}

// ImportZoneFile 解析区域文件并在一个批次中写入；SOA 序列号保持文件中的值，
// 文件带 SOA 时替换区域在该视图中已有的 SOA
func (im *Importer) ImportZoneFile(ctx context.Context, r io.Reader, zoneName, viewName, origin string) (*ZoneImportResult, error) {
	origin = dns.Fqdn(strings.ToLower(origin))
	result := &ZoneImportResult{ZoneName: zoneName, ViewName: viewName, Skipped: []string{}}

	zp := dns.NewZoneParser(r, origin, "")
	var adds []dnscore.RecordSpec
	hasSOA := false
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		spec, supported := specFromRR(rr, origin)
		if !supported {
			result.Skipped = append(result.Skipped, rr.String())
			im.logger.Warn("跳过不支持的记录: %s", rr.String())
			continue
		}
		spec.ZoneName = zoneName
		spec.ViewName = viewName
		if spec.RecordType == record.TypeSOA {
			if hasSOA {
				return nil, common.NewError(common.KindUnexpectedData, "Zone file for %s has more than one SOA record", zoneName)
			}
			hasSOA = true
		}
		adds = append(adds, spec)
	}
	if err := zp.Err(); err != nil {
		return nil, common.NewError(common.KindUnexpectedData, "Could not parse zone file for %s: %v", zoneName, err)
	}

	var deletes []dnscore.RecordSpec
	if hasSOA {
		existing, err := im.existingSOA(ctx, zoneName, viewName)
		if err != nil {
			return nil, err
		}
		deletes = existing
	}

	imported, err := im.core.ProcessRecordsBatch(ctx, deletes, adds, true)
	if err != nil {
		return nil, fmt.Errorf("导入区域 %s 失败: %w", zoneName, err)
	}
	result.Imported = imported - len(deletes)
	im.logger.Info("区域 %s 视图 %s 导入 %d 条记录，跳过 %d 条", zoneName, viewOrAny(viewName), result.Imported, len(result.Skipped))
	return result, nil
}

// existingSOA 区域在该视图依赖中已有的 SOA，转换为删除条件
func (im *Importer) existingSOA(ctx context.Context, zoneName, viewName string) ([]dnscore.RecordSpec, error) {
	records, err := im.core.ListRecords(ctx, dnscore.RecordFilter{
		RecordType: record.TypeSOA,
		ZoneName:   zoneName,
		ViewName:   viewName,
	})
	if err != nil {
		return nil, err
	}

	var specs []dnscore.RecordSpec
	for _, r := range records {
		if r.ViewName != viewOrAny(viewName) {
			continue
		}
		ttl := r.TTL
		specs = append(specs, dnscore.RecordSpec{
			RecordType: r.RecordType,
			Target:     r.Target,
			ZoneName:   r.ZoneName,
			ViewName:   viewName,
			TTL:        &ttl,
			Args:       r.Args,
		})
	}
	return specs, nil
}

func viewOrAny(viewName string) string {
	if viewName == "" {
		return "any"
	}
	return viewName
}

// relativeName 区域内的名称转换为相对名称，区域顶点为 @
func relativeName(name, origin string) string {
	name = strings.ToLower(name)
	if name == origin {
		return "@"
	}
	if origin != "." && strings.HasSuffix(name, "."+origin) {
		return strings.TrimSuffix(name, "."+origin)
	}
	return name
}

// specFromRR 把 miekg/dns 的资源记录转换为记录参数，不支持的类型返回 false
func specFromRR(rr dns.RR, origin string) (dnscore.RecordSpec, bool) {
	hdr := rr.Header()
	ttl := hdr.Ttl
	spec := dnscore.RecordSpec{
		Target: relativeName(hdr.Name, origin),
		TTL:    &ttl,
	}

	switch v := rr.(type) {
	case *dns.A:
		spec.RecordType = record.TypeA
		spec.Args = map[string]interface{}{"assignment_ip": v.A.String()}
	case *dns.AAAA:
		spec.RecordType = record.TypeAAAA
		spec.Args = map[string]interface{}{"assignment_ip": v.AAAA.String()}
	case *dns.CNAME:
		spec.RecordType = record.TypeCNAME
		spec.Args = map[string]interface{}{"assignment_host": strings.ToLower(v.Target)}
	case *dns.NS:
		spec.RecordType = record.TypeNS
		spec.Args = map[string]interface{}{"name_server": strings.ToLower(v.Ns)}
	case *dns.PTR:
		spec.RecordType = record.TypePTR
		spec.Args = map[string]interface{}{"assignment_host": strings.ToLower(v.Ptr)}
	case *dns.MX:
		spec.RecordType = record.TypeMX
		spec.Args = map[string]interface{}{
			"priority":    uint32(v.Preference),
			"mail_server": strings.ToLower(v.Mx),
		}
	case *dns.SRV:
		spec.RecordType = record.TypeSRV
		spec.Args = map[string]interface{}{
			"priority":        uint32(v.Priority),
			"weight":          uint32(v.Weight),
			"port":            uint32(v.Port),
			"assignment_host": strings.ToLower(v.Target),
		}
	case *dns.SOA:
		spec.RecordType = record.TypeSOA
		spec.Args = map[string]interface{}{
			"name_server":     strings.ToLower(v.Ns),
			"admin_email":     strings.ToLower(v.Mbox),
			"serial_number":   v.Serial,
			"refresh_seconds": v.Refresh,
			"retry_seconds":   v.Retry,
			"expiry_seconds":  v.Expire,
			"minimum_seconds": v.Minttl,
		}
	case *dns.TXT:
		spec.RecordType = record.TypeTXT
		spec.Args = map[string]interface{}{"quoted_text": `"` + strings.Join(v.Txt, `" "`) + `"`}
	case *dns.HINFO:
		spec.RecordType = record.TypeHINFO
		spec.Args = map[string]interface{}{
			"hardware": `"` + v.Cpu + `"`,
			"os":       `"` + v.Os + `"`,
		}
	default:
		return spec, false
	}
	return spec, true
}
