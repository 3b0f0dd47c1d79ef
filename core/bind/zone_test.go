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

// core/bind/zone_test.go

package bind

import (
	"errors"
	"strings"
	"testing"

	"github.com/miekg/dns"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/record"
)

func subZoneRecords() []database.RecordWithArgs {
	const zone, dep = "sub.university.lcl", "test_view_dep"
	return []database.RecordWithArgs{
		rec(1, record.TypeSOA, "@", zone, dep, map[string]string{
			"name_server": "ns.university.lcl.", "admin_email": "hostmaster.ns.university.lcl.",
			"serial_number": "796", "refresh_seconds": "10800", "retry_seconds": "3600",
			"expiry_seconds": "3600000", "minimum_seconds": "86400",
		}),
		rec(2, record.TypeNS, "@", zone, dep, map[string]string{"name_server": "ns.sub.university.lcl."}),
		rec(3, record.TypeNS, "@", zone, dep, map[string]string{"name_server": "ns2.sub.university.lcl."}),
		rec(4, record.TypeMX, "@", zone, dep, map[string]string{"priority": "10", "mail_server": "mail1.sub.university.lcl."}),
		rec(5, record.TypeMX, "@", zone, dep, map[string]string{"priority": "20", "mail_server": "mail2.sub.university.lcl."}),
		rec(6, record.TypeTXT, "@", zone, dep, map[string]string{"quoted_text": `"Contact 1:  Stephen Harrell (sharrell@university.lcl)"`}),
		rec(7, record.TypeA, "@", zone, dep, map[string]string{"assignment_ip": "192.168.0.1"}),
		rec(8, record.TypeA, "ns", zone, dep, map[string]string{"assignment_ip": "192.168.1.103"}),
		rec(9, record.TypeAAAA, "desktop-1", zone, dep, map[string]string{"assignment_ip": "3ffe:0800:0000:0000:0200:f8ff:fe21:67cf"}),
		rec(10, record.TypeA, "desktop-1", zone, dep, map[string]string{"assignment_ip": "192.168.1.100"}),
		rec(11, record.TypeAAAA, "ns2", zone, dep, map[string]string{"assignment_ip": "4321::1:2:3:4:567:89ab"}),
		rec(12, record.TypeA, "ns2", zone, dep, map[string]string{"assignment_ip": "192.168.1.104"}),
		rec(13, record.TypeHINFO, "ns2", zone, dep, map[string]string{"hardware": `"PC"`, "os": `"NT"`}),
		rec(14, record.TypeCNAME, "www", zone, dep, map[string]string{"assignment_host": "sub.university.lcl."}),
		rec(15, record.TypeCNAME, "localhost", zone, dep, map[string]string{"assignment_host": "www.sub.university.lcl."}),
		rec(16, record.TypeA, "www.data", zone, dep, map[string]string{"assignment_ip": "192.168.1.103"}),
		rec(17, record.TypeSRV, "_http._tcp", zone, dep, map[string]string{"priority": "0", "weight": "5", "port": "80", "assignment_host": "www.sub.university.lcl."}),
	}
}

func cookedSubZone(t *testing.T) ([]CookedRecord, ArgumentDefs) {
	t.Helper()
	defs := ArgumentDefsFrom(registryArguments())
	var records []CookedRecord
	for _, r := range subZoneRecords() {
		records = append(records, cookRecord(r, defs))
	}
	sortRecords(records, defs)
	return records, defs
}

func TestMakeZoneStringRoundTrip(t *testing.T) {
	records, defs := cookedSubZone(t)
	content, err := MakeZoneString(records, "sub.university.lcl.", defs, "sub.university.lcl", "test_view")
	if err != nil {
		t.Fatalf("MakeZoneString失败: %v", err)
	}

	lines := strings.Split(content, "\n")
	if lines[0] != ZoneFileHeader {
		t.Errorf("首行 = %q", lines[0])
	}
	if lines[1] != "$ORIGIN sub.university.lcl." {
		t.Errorf("第二行 = %q", lines[1])
	}
	if want := "@ 3600 in soa ns.university.lcl. hostmaster.ns.university.lcl. 796 10800 3600 3600000 86400"; lines[2] != want {
		t.Errorf("SOA行 = %q, 期望 %q", lines[2], want)
	}
	if !strings.HasSuffix(content, "\n") {
		t.Errorf("内容应以换行结尾")
	}

	zp := dns.NewZoneParser(strings.NewReader(content), "", "")
	counts := make(map[uint16]int)
	total := 0
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		counts[rr.Header().Rrtype]++
		total++
		if soa, isSOA := rr.(*dns.SOA); isSOA && soa.Serial != 796 {
			t.Errorf("SOA serial = %d", soa.Serial)
		}
		if mx, isMX := rr.(*dns.MX); isMX && mx.Hdr.Name != "sub.university.lcl." {
			t.Errorf("MX 名称 = %s", mx.Hdr.Name)
		}
	}
	if err := zp.Err(); err != nil {
		t.Fatalf("解析生成的区域文件失败: %v\n%s", err, content)
	}
	if total != 17 {
		t.Errorf("解析得到 %d 条记录, 期望 17", total)
	}

	want := map[uint16]int{
		dns.TypeSOA: 1, dns.TypeNS: 2, dns.TypeMX: 2, dns.TypeTXT: 1, dns.TypeA: 5,
		dns.TypeAAAA: 2, dns.TypeHINFO: 1, dns.TypeCNAME: 2, dns.TypeSRV: 1,
	}
	for typ, n := range want {
		if counts[typ] != n {
			t.Errorf("%s 记录 %d 条, 期望 %d", dns.TypeToString[typ], counts[typ], n)
		}
	}
}

func TestMakeZoneStringFormatting(t *testing.T) {
	records, defs := cookedSubZone(t)
	content, err := MakeZoneString(records, "sub.university.lcl", defs, "sub.university.lcl", "test_view")
	if err != nil {
		t.Fatalf("MakeZoneString失败: %v", err)
	}

	tests := []struct {
		name string
		line string
	}{
		{"ORIGIN补全结尾的点", "$ORIGIN sub.university.lcl.\n"},
		{"AAAA完整展开", "ns2 3600 in aaaa 4321:0000:0001:0002:0003:0004:0567:89ab\n"},
		{"HINFO原样输出", "ns2 3600 in hinfo \"PC\" \"NT\"\n"},
		{"TXT原样输出", "@ 3600 in txt \"Contact 1:  Stephen Harrell (sharrell@university.lcl)\"\n"},
		{"SRV数字参数", "_http._tcp 3600 in srv 0 5 80 www.sub.university.lcl.\n"},
		{"NS按名称排序", "@ 3600 in ns ns.sub.university.lcl.\n@ 3600 in ns ns2.sub.university.lcl.\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(content, tt.line) {
				t.Errorf("缺少行 %q\n%s", tt.line, content)
			}
		})
	}

	again, err := MakeZoneString(records, "sub.university.lcl.", defs, "sub.university.lcl", "test_view")
	if err != nil {
		t.Fatalf("MakeZoneString失败: %v", err)
	}
	if again != content {
		t.Errorf("两次生成结果不同")
	}
}

func TestMakeZoneStringSchemaError(t *testing.T) {
	defs := ArgumentDefsFrom(registryArguments())

	tests := []struct {
		name    string
		records []CookedRecord
	}{
		{
			name:    "参数缺失",
			records: []CookedRecord{{RecordType: record.TypeMX, Target: "@", TTL: 3600, Args: map[string]interface{}{"priority": uint32(10)}}},
		},
		{
			name: "参数多余",
			records: []CookedRecord{{RecordType: record.TypeA, Target: "www", TTL: 3600, Args: map[string]interface{}{
				"assignment_ip": "10.0.0.1", "extra": "x",
			}}},
		},
		{
			name:    "参数名不符",
			records: []CookedRecord{{RecordType: record.TypeA, Target: "www", TTL: 3600, Args: map[string]interface{}{"ip": "10.0.0.1"}}},
		},
		{
			name:    "未知类型",
			records: []CookedRecord{{RecordType: "loc", Target: "www", TTL: 3600, Args: map[string]interface{}{}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MakeZoneString(tt.records, "university.edu.", defs, "university.edu", "test_view")
			if !errors.Is(err, common.ErrSchema) {
				t.Errorf("期望 ErrSchema, 实际 %v", err)
			}
		})
	}
}

func TestCheckZoneSOA(t *testing.T) {
	soa := CookedRecord{RecordType: record.TypeSOA, Target: "@", TTL: 3600}
	a := CookedRecord{RecordType: record.TypeA, Target: "www", TTL: 3600}

	tests := []struct {
		name     string
		zoneType string
		records  []CookedRecord
		wantErr  bool
	}{
		{"主区域一条SOA", record.ZoneMaster, []CookedRecord{soa, a}, false},
		{"主区域没有SOA", record.ZoneMaster, []CookedRecord{a}, true},
		{"主区域为空", record.ZoneMaster, nil, true},
		{"主区域两条SOA", record.ZoneMaster, []CookedRecord{soa, a, soa}, true},
		{"从区域没有SOA", record.ZoneSlave, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zone := &CookedZone{ZoneOrigin: "university.edu.", ZoneType: tt.zoneType, Records: tt.records}
			err := CheckZoneSOA(zone, "university.edu", "test_view")
			if tt.wantErr {
				if !errors.Is(err, common.ErrSchema) {
					t.Errorf("期望 ErrSchema, 实际 %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("不应出错: %v", err)
			}
		})
	}
}
