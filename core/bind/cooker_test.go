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

// core/bind/cooker_test.go

package bind

import (
	"reflect"
	"testing"
	"time"

	"Roster/core/database"
	"Roster/core/record"
)

// registryArguments 内置记录参数定义
func registryArguments() []database.RecordArgument {
	var args []database.RecordArgument
	for _, t := range record.RecordTypes() {
		def, _ := record.LookupType(t)
		for _, a := range def.Args {
			args = append(args, database.RecordArgument{
				RecordType:       t,
				ArgumentName:     a.Name,
				ArgumentOrder:    a.Order,
				ArgumentDataType: a.DataType,
			})
		}
	}
	return args
}

func rec(id uint64, typ, target, zone, dep string, args map[string]string) database.RecordWithArgs {
	return database.RecordWithArgs{
		Record: database.Record{
			ID:             id,
			RecordType:     typ,
			Target:         target,
			TTL:            3600,
			ZoneName:       zone,
			ViewDependency: dep,
		},
		Arguments: args,
	}
}

func soaArgs(serial string) map[string]string {
	return map[string]string{
		"name_server":     "ns1.university.edu.",
		"admin_email":     "hostmaster.university.edu.",
		"serial_number":   serial,
		"refresh_seconds": "3600",
		"retry_seconds":   "600",
		"expiry_seconds":  "86400",
		"minimum_seconds": "3600",
	}
}

// fixtureRawData 服务器组 internal_dns 包含 external、internal 两个视图
func fixtureRawData() *database.RawData {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &database.RawData{
		AuditID: 42,
		GlobalOptions: []database.NamedConfGlobalOption{
			{ID: 1, DnsServerSetName: "internal_dns", GlobalOptions: "options {\n\tdirectory \"/old\";\n};", OptionsCreated: now.Add(-time.Hour)},
			{ID: 2, DnsServerSetName: "internal_dns", GlobalOptions: "options {\n\tdirectory \"/var/named\";\n};", OptionsCreated: now},
		},
		ServerSets: []database.DnsServerSet{{DnsServerSetName: "internal_dns"}},
		Servers: []database.DnsServer{
			{DnsServerName: "dns2.university.edu", SSHUser: "root", BindDir: "/etc/named/", TestDir: "/tmp/test/"},
			{DnsServerName: "dns1.university.edu", SSHUser: "root", BindDir: "/etc/named/", TestDir: "/tmp/test/"},
		},
		ServerSetAssignments: []database.DnsServerSetAssignment{
			{ID: 1, DnsServerName: "dns2.university.edu", DnsServerSetName: "internal_dns"},
			{ID: 2, DnsServerName: "dns1.university.edu", DnsServerSetName: "internal_dns"},
		},
		ServerSetViewAssignments: []database.DnsServerSetViewAssignment{
			{ID: 1, DnsServerSetName: "internal_dns", ViewName: "internal", ViewOrder: 2, ViewOptions: "recursion yes;"},
			{ID: 2, DnsServerSetName: "internal_dns", ViewName: "external", ViewOrder: 1},
		},
		Views: []database.View{
			{ViewName: "external", ViewOptions: "recursion no;"},
			{ViewName: "internal"},
		},
		ViewDependencies: []database.ViewDependencyAssignment{
			{ID: 1, ViewName: "external", ViewDependency: "external_dep"},
			{ID: 2, ViewName: "external", ViewDependency: "any"},
			{ID: 3, ViewName: "internal", ViewDependency: "internal_dep"},
			{ID: 4, ViewName: "internal", ViewDependency: "any"},
		},
		ACLRanges: []database.ACLRange{
			{ID: 1, ACLName: "secret", CIDRBlock: "10.10.0.0/16", RangeAllowed: true},
			{ID: 2, ACLName: "public", CIDRBlock: "192.168.1.4/30", RangeAllowed: true},
			{ID: 3, ACLName: "public", CIDRBlock: "10.10.0.0/32", RangeAllowed: false},
		},
		ViewACLAssignments: []database.ViewACLAssignment{
			{ID: 1, ViewName: "external", ACLName: "public", DnsServerSetName: "internal_dns", RangeAllowed: true},
			{ID: 2, ViewName: "internal", ACLName: "secret", DnsServerSetName: "internal_dns", RangeAllowed: true},
			{ID: 3, ViewName: "internal", ACLName: "public", DnsServerSetName: "internal_dns", RangeAllowed: true},
		},
		ZoneViewAssignments: []database.ZoneViewAssignment{
			{ID: 1, ZoneName: "university.edu", ViewDependency: "any", ZoneType: "master", ZoneOrigin: "university.edu.", ZoneOptions: "allow-update { none; };"},
			{ID: 2, ZoneName: "university.edu", ViewDependency: "internal_dep", ZoneType: "master", ZoneOrigin: "university.edu.", ZoneOptions: "allow-transfer { any; };"},
			{ID: 3, ZoneName: "empty.edu", ViewDependency: "any", ZoneType: "master", ZoneOrigin: "empty.edu."},
		},
		Records: []database.RecordWithArgs{
			rec(1, record.TypeSOA, "@", "university.edu", "any", soaArgs("4")),
			rec(2, record.TypeA, "www", "university.edu", "any", map[string]string{"assignment_ip": "192.168.1.10"}),
			rec(3, record.TypeNS, "@", "university.edu", "any", map[string]string{"name_server": "ns2.university.edu."}),
			rec(4, record.TypeNS, "@", "university.edu", "any", map[string]string{"name_server": "ns1.university.edu."}),
			rec(5, record.TypeSOA, "@", "university.edu", "internal_dep", soaArgs("9")),
			rec(6, record.TypeMX, "@", "university.edu", "internal_dep", map[string]string{"priority": "10", "mail_server": "mail2.university.edu."}),
			rec(7, record.TypeMX, "@", "university.edu", "any", map[string]string{"priority": "5", "mail_server": "mail1.university.edu."}),
			rec(8, record.TypeAAAA, "v6", "university.edu", "internal_dep", map[string]string{"assignment_ip": "2001:db8::1"}),
			rec(9, record.TypeA, "app", "university.edu", "internal_dep", map[string]string{"assignment_ip": "10.10.0.5"}),
		},
		RecordArguments: registryArguments(),
	}
}

func TestCookStructure(t *testing.T) {
	cooked, err := Cook(fixtureRawData())
	if err != nil {
		t.Fatalf("Cook失败: %v", err)
	}

	if cooked.AuditID != 42 {
		t.Errorf("AuditID = %d, 期望 42", cooked.AuditID)
	}
	set, ok := cooked.Sets["internal_dns"]
	if !ok {
		t.Fatalf("缺少服务器组 internal_dns")
	}
	if want := []string{"dns2.university.edu", "dns1.university.edu"}; !reflect.DeepEqual(set.DnsServers, want) {
		t.Errorf("DnsServers = %v, 期望 %v", set.DnsServers, want)
	}
	if want := []string{"external", "internal"}; !reflect.DeepEqual(set.ViewNames(), want) {
		t.Errorf("ViewNames = %v, 期望 %v", set.ViewNames(), want)
	}
	if got := cooked.GlobalOptions["internal_dns"]; got != "options {\n\tdirectory \"/var/named\";\n};" {
		t.Errorf("全局选项未取最新版本: %q", got)
	}
	if want := []string{"public", "secret"}; !reflect.DeepEqual(cooked.ACLNames(), want) {
		t.Errorf("ACLNames = %v, 期望 %v", cooked.ACLNames(), want)
	}

	internal := set.Views["internal"]
	if want := []CookedACL{{"secret", true}, {"public", true}}; !reflect.DeepEqual(internal.ACLs, want) {
		t.Errorf("internal ACLs = %v, 期望 %v", internal.ACLs, want)
	}
	if _, ok := internal.Zones["empty.edu"]; ok {
		t.Errorf("没有记录的区域不应出现")
	}
	if internal.ViewOptions != "recursion yes;" {
		t.Errorf("internal 视图选项 = %q", internal.ViewOptions)
	}
	if set.Views["external"].ViewOptions != "recursion no;" {
		t.Errorf("external 视图选项 = %q", set.Views["external"].ViewOptions)
	}
}

func TestCookZoneMerge(t *testing.T) {
	cooked, err := Cook(fixtureRawData())
	if err != nil {
		t.Fatalf("Cook失败: %v", err)
	}
	set := cooked.Sets["internal_dns"]

	tests := []struct {
		name        string
		view        string
		wantOptions string
		wantSerial  uint32
		wantIDs     []uint64
	}{
		{
			name:        "external只继承any",
			view:        "external",
			wantOptions: "allow-update { none; };",
			wantSerial:  4,
			wantIDs:     []uint64{1, 4, 3, 2, 7},
		},
		{
			name:        "internal优先使用自身依赖",
			view:        "internal",
			wantOptions: "allow-transfer { any; };",
			wantSerial:  9,
			wantIDs:     []uint64{5, 4, 3, 9, 2, 8, 7, 6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zone, ok := set.Views[tt.view].Zones["university.edu"]
			if !ok {
				t.Fatalf("视图 %s 缺少区域", tt.view)
			}
			if zone.ZoneOptions != tt.wantOptions {
				t.Errorf("ZoneOptions = %q, 期望 %q", zone.ZoneOptions, tt.wantOptions)
			}
			if zone.Records[0].RecordType != record.TypeSOA {
				t.Fatalf("第一条记录应为SOA")
			}
			if serial := zone.Records[0].Args["serial_number"]; serial != tt.wantSerial {
				t.Errorf("SOA serial = %v, 期望 %d", serial, tt.wantSerial)
			}
			var ids []uint64
			for _, r := range zone.Records {
				ids = append(ids, r.ID)
			}
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Errorf("记录顺序 = %v, 期望 %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestCookNormalizesArguments(t *testing.T) {
	cooked, err := Cook(fixtureRawData())
	if err != nil {
		t.Fatalf("Cook失败: %v", err)
	}
	zone := cooked.Sets["internal_dns"].Views["internal"].Zones["university.edu"]

	for _, r := range zone.Records {
		switch r.RecordType {
		case record.TypeMX:
			if _, ok := r.Args["priority"].(uint32); !ok {
				t.Errorf("MX priority 应为 uint32, 实际 %T", r.Args["priority"])
			}
			if _, ok := r.Args["mail_server"].(string); !ok {
				t.Errorf("MX mail_server 应保持字符串")
			}
		case record.TypeAAAA:
			if got := r.Args["assignment_ip"]; got != "2001:0db8:0000:0000:0000:0000:0000:0001" {
				t.Errorf("AAAA 未展开: %v", got)
			}
		}
	}
}

func TestCookDeterministic(t *testing.T) {
	first, err := Cook(fixtureRawData())
	if err != nil {
		t.Fatalf("Cook失败: %v", err)
	}
	raw := fixtureRawData()
	// 打乱快照中的记录顺序，排序结果不应改变
	for i, j := 0, len(raw.Records)-1; i < j; i, j = i+1, j-1 {
		raw.Records[i], raw.Records[j] = raw.Records[j], raw.Records[i]
	}
	second, err := Cook(raw)
	if err != nil {
		t.Fatalf("Cook失败: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("相同数据两次整理结果不同")
	}
}
