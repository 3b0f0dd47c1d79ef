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

// core/record/record_test.go
// 记录类型解析测试

package record

import (
	"errors"
	"testing"

	"Roster/core/common"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		recordType string
		args       map[string]interface{}
		wantValues []string
		wantErr    error
	}{
		{
			name:       "A记录",
			recordType: "a",
			args:       map[string]interface{}{"assignment_ip": "10.10.10.0"},
			wantValues: []string{"10.10.10.0"},
		},
		{
			name:       "AAAA记录展开",
			recordType: "aaaa",
			args:       map[string]interface{}{"assignment_ip": "2001:DB8::1"},
			wantValues: []string{"2001:0db8:0000:0000:0000:0000:0000:0001"},
		},
		{
			name:       "MX记录数字参数",
			recordType: "MX",
			args:       map[string]interface{}{"priority": float64(10), "mail_server": "mail.university.edu."},
			wantValues: []string{"10", "mail.university.edu."},
		},
		{
			name:       "SOA记录字符串数字",
			recordType: "soa",
			args: map[string]interface{}{
				"name_server": "ns.university.edu.", "admin_email": "admin.university.edu.",
				"serial_number": "4", "refresh_seconds": 10, "retry_seconds": 20,
				"expiry_seconds": 30, "minimum_seconds": uint32(40),
			},
			wantValues: []string{"ns.university.edu.", "admin.university.edu.", "4", "10", "20", "30", "40"},
		},
		{
			name:       "TXT原样保存",
			recordType: "txt",
			args:       map[string]interface{}{"quoted_text": `"ab cd" "ef"`},
			wantValues: []string{`"ab cd" "ef"`},
		},
		{
			name:       "缺少参数",
			recordType: "srv",
			args:       map[string]interface{}{"priority": 1, "weight": 2, "port": 3},
			wantErr:    common.ErrInvalidInput,
		},
		{
			name:       "多余参数",
			recordType: "cname",
			args:       map[string]interface{}{"assignment_host": "a.b.", "ttl": 3},
			wantErr:    common.ErrInvalidInput,
		},
		{
			name:       "IPv4格式错误",
			recordType: "a",
			args:       map[string]interface{}{"assignment_ip": "10.10.10"},
			wantErr:    common.ErrUnexpectedData,
		},
		{
			name:       "主机名缺少结尾点",
			recordType: "ns",
			args:       map[string]interface{}{"name_server": "ns1.university.edu"},
			wantErr:    common.ErrUnexpectedData,
		},
		{
			name:       "负数优先级",
			recordType: "mx",
			args:       map[string]interface{}{"priority": -1, "mail_server": "mail.university.edu."},
			wantErr:    common.ErrUnexpectedData,
		},
		{
			name:       "未知类型",
			recordType: "naptr",
			args:       map[string]interface{}{},
			wantErr:    common.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Parse(tt.recordType, tt.args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() 返回错误: %v", err)
			}
			got := data.Values()
			if len(got) != len(tt.wantValues) {
				t.Fatalf("Values() = %v, want %v", got, tt.wantValues)
			}
			for i := range got {
				if got[i] != tt.wantValues[i] {
					t.Errorf("Values()[%d] = %q, want %q", i, got[i], tt.wantValues[i])
				}
			}
		})
	}
}

func TestRegistryOrder(t *testing.T) {
	def, ok := LookupType("soa")
	if !ok {
		t.Fatalf("缺少 soa 定义")
	}
	want := []string{"name_server", "admin_email", "serial_number", "refresh_seconds", "retry_seconds", "expiry_seconds", "minimum_seconds"}
	for i, name := range def.ArgumentNames() {
		if name != want[i] {
			t.Errorf("参数[%d] = %s, want %s", i, name, want[i])
		}
		if def.Args[i].Order != i {
			t.Errorf("参数 %s 的顺序 = %d, want %d", name, def.Args[i].Order, i)
		}
	}
	if got := len(RecordTypes()); got != 10 {
		t.Errorf("记录类型数量 = %d, want 10", got)
	}
}

func TestWireArguments(t *testing.T) {
	data, err := ParseStrings("srv", map[string]string{
		"priority": "0", "weight": "5", "port": "5060", "assignment_host": "sip.university.edu.",
	})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	wire := WireArguments(data)
	if wire["port"] != uint32(5060) {
		t.Errorf("port = %#v, want uint32(5060)", wire["port"])
	}
	if wire["assignment_host"] != "sip.university.edu." {
		t.Errorf("assignment_host = %#v", wire["assignment_host"])
	}
	if !SameArguments(ArgumentMap(data), map[string]string{
		"priority": "0", "weight": "5", "port": "5060", "assignment_host": "sip.university.edu.",
	}) {
		t.Errorf("ArgumentMap 与输入不一致: %v", ArgumentMap(data))
	}
}
