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

// core/bind/namedconf/emitter_test.go

package namedconf

import (
	"errors"
	"strings"
	"testing"
	"time"

	"Roster/core/bind"
	"Roster/core/common"
	"Roster/core/database"
)

func record(id uint64, typ, target, zone, dep string, args map[string]string) database.RecordWithArgs {
	return database.RecordWithArgs{
		Record:    database.Record{ID: id, RecordType: typ, Target: target, TTL: 3600, ZoneName: zone, ViewDependency: dep},
		Arguments: args,
	}
}

func internalDNSRawData() *database.RawData {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &database.RawData{
		AuditID: 7,
		GlobalOptions: []database.NamedConfGlobalOption{
			{ID: 1, DnsServerSetName: "internal_dns", GlobalOptions: "options {\n\tdirectory \"/old\";\n};", OptionsCreated: created.Add(-time.Minute)},
			{ID: 2, DnsServerSetName: "internal_dns", GlobalOptions: "options {\n\tdirectory \"/var/domain\";\n\trecursion no;\n};", OptionsCreated: created},
		},
		ServerSets:           []database.DnsServerSet{{DnsServerSetName: "internal_dns"}, {DnsServerSetName: "external_dns"}},
		Servers:              []database.DnsServer{{DnsServerName: "dns1.university.edu"}},
		ServerSetAssignments: []database.DnsServerSetAssignment{{ID: 1, DnsServerName: "dns1.university.edu", DnsServerSetName: "internal_dns"}},
		ServerSetViewAssignments: []database.DnsServerSetViewAssignment{
			{ID: 1, DnsServerSetName: "internal_dns", ViewName: "internal", ViewOrder: 2},
			{ID: 2, DnsServerSetName: "internal_dns", ViewName: "external", ViewOrder: 1, ViewOptions: "recursion no;"},
			{ID: 3, DnsServerSetName: "external_dns", ViewName: "external", ViewOrder: 1},
		},
		Views: []database.View{{ViewName: "external"}, {ViewName: "internal"}},
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
			{ID: 1, ZoneName: "university.edu", ViewDependency: "any", ZoneType: "master", ZoneOrigin: "university.edu.",
				ZoneOptions: "allow-update { none; };\n\n"},
			{ID: 2, ZoneName: "168.192.in-addr", ViewDependency: "internal_dep", ZoneType: "master", ZoneOrigin: "168.192.in-addr.arpa.",
				ZoneOptions: "allow-update { none; };\nnotify yes;"},
		},
		Records: []database.RecordWithArgs{
			record(1, "soa", "@", "university.edu", "any", map[string]string{
				"name_server": "ns1.university.edu.", "admin_email": "hostmaster.university.edu.", "serial_number": "5",
				"refresh_seconds": "3600", "retry_seconds": "600", "expiry_seconds": "86400", "minimum_seconds": "3600",
			}),
			record(2, "a", "www", "university.edu", "any", map[string]string{"assignment_ip": "192.168.1.10"}),
			record(3, "ptr", "10.1", "168.192.in-addr", "internal_dep", map[string]string{"assignment_host": "www.university.edu."}),
		},
	}
}

func TestMakeNamedConf(t *testing.T) {
	cooked, err := bind.Cook(internalDNSRawData())
	if err != nil {
		t.Fatalf("Cook失败: %v", err)
	}
	conf, err := MakeNamedConf(cooked, "internal_dns")
	if err != nil {
		t.Fatalf("MakeNamedConf失败: %v", err)
	}

	want := `#This named.conf file is autogenerated. DO NOT EDIT

options {
	directory "/var/domain";
	recursion no;
};

acl public {
	192.168.1.4/30;
	!10.10.0.0/32;
};

acl secret {
	10.10.0.0/16;
};

view "external" {
	match-clients { public; };
	recursion no;
	zone "university.edu" {
		type master;
		file "external/university.edu.db";
		allow-update { none; };
	};
};

view "internal" {
	match-clients { secret; public; };
	zone "168.192.in-addr.arpa" {
		type master;
		file "internal/168.192.in-addr.db";
		allow-update { none; };
		notify yes;
	};
	zone "university.edu" {
		type master;
		file "internal/university.edu.db";
		allow-update { none; };
	};
};
`
	if conf != want {
		t.Errorf("named.conf 不符合预期:\n%s\n期望:\n%s", conf, want)
	}

	again, err := MakeNamedConf(cooked, "internal_dns")
	if err != nil || again != conf {
		t.Errorf("两次生成结果不同")
	}

	parsed, err := ParseContent(conf)
	if err != nil {
		t.Fatalf("生成的 named.conf 无法解析: %v", err)
	}
	if views := parsed.Find("view"); len(views) != 2 {
		t.Errorf("解析得到 %d 个视图, 期望 2", len(views))
	}
}

func TestMakeNamedConfMatchClientsDefault(t *testing.T) {
	cooked, err := bind.Cook(internalDNSRawData())
	if err != nil {
		t.Fatalf("Cook失败: %v", err)
	}
	conf, err := MakeNamedConf(cooked, "external_dns")
	if err != nil {
		t.Fatalf("MakeNamedConf失败: %v", err)
	}
	if !strings.Contains(conf, "\tmatch-clients { any; };\n") {
		t.Errorf("没有 ACL 的视图应匹配 any:\n%s", conf)
	}
	if strings.Contains(conf, "options {") {
		t.Errorf("没有全局选项的服务器组不应输出 options")
	}
}

func TestMakeNamedConfUnknownSet(t *testing.T) {
	cooked, err := bind.Cook(internalDNSRawData())
	if err != nil {
		t.Fatalf("Cook失败: %v", err)
	}
	if _, err := MakeNamedConf(cooked, "missing"); !errors.Is(err, common.ErrCore) {
		t.Errorf("期望 CoreError, 实际 %v", err)
	}
}
