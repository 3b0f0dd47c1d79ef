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

// core/record/reverse_test.go
// 反向解析名称测试

package record

import (
	"errors"
	"net/netip"
	"testing"

	"Roster/core/common"
)

func TestReverseRoundTrip(t *testing.T) {
	ips := []string{
		"192.168.0.5",
		"10.0.0.1",
		"255.255.255.255",
		"2001:db8::1",
		"fe80::1:2:3:4",
		"::1",
	}

	for _, ip := range ips {
		t.Run(ip, func(t *testing.T) {
			name, err := ReverseIP(ip)
			if err != nil {
				t.Fatalf("ReverseIP(%s) 失败: %v", ip, err)
			}
			back, err := UnReverseIP(name)
			if err != nil {
				t.Fatalf("UnReverseIP(%s) 失败: %v", name, err)
			}
			if back != ip {
				t.Errorf("UnReverseIP(ReverseIP(%s)) = %s", ip, back)
			}
		})
	}
}

func TestUnReversePartial(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"0.168.192.in-addr.arpa.", "192.168.0.0/24"},
		{"10.in-addr.arpa", "10.0.0.0/8"},
		{"8.b.d.0.1.0.0.2.ip6.arpa.", "2001:db8::/32"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnReverseIP(tt.name)
			if err != nil {
				t.Fatalf("UnReverseIP 失败: %v", err)
			}
			if got != tt.want {
				t.Errorf("UnReverseIP(%s) = %s, want %s", tt.name, got, tt.want)
			}
		})
	}
}

func TestReverseOriginFromCIDR(t *testing.T) {
	tests := []struct {
		cidr    string
		want    string
		wantErr bool
	}{
		{"192.168.0/24", "0.168.192.in-addr.arpa.", false},
		{"192.168.0.0/24", "0.168.192.in-addr.arpa.", false},
		{"10/8", "10.in-addr.arpa.", false},
		{"172.16.0.0/16", "16.172.in-addr.arpa.", false},
		{"192.168.1.64/26", "64-127.1.168.192.in-addr.arpa.", false},
		{"2001:db8::/32", "8.b.d.0.1.0.0.2.ip6.arpa.", false},
		{"2001:db8::/33", "", true},
		{"172.16.0.0/20", "", true},
		{"not-a-cidr", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.cidr, func(t *testing.T) {
			got, err := ReverseOriginFromCIDR(tt.cidr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReverseOriginFromCIDR(%s) error = %v, wantErr %v", tt.cidr, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ReverseOriginFromCIDR(%s) = %s, want %s", tt.cidr, got, tt.want)
			}
		})
	}
}

func TestReverseTarget(t *testing.T) {
	tests := []struct {
		ip     string
		origin string
		want   string
	}{
		{"192.168.0.5", "0.168.192.in-addr.arpa.", "5"},
		{"192.168.0.5", "168.192.in-addr.arpa.", "5.0"},
		{"192.168.1.70", "64-127.1.168.192.in-addr.arpa.", "70"},
	}

	for _, tt := range tests {
		t.Run(tt.ip+"@"+tt.origin, func(t *testing.T) {
			got, err := ReverseTarget(tt.ip, tt.origin)
			if err != nil {
				t.Fatalf("ReverseTarget 失败: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReverseTarget(%s, %s) = %s, want %s", tt.ip, tt.origin, got, tt.want)
			}
		})
	}

	if _, err := ReverseTarget("10.0.0.1", "0.168.192.in-addr.arpa."); err == nil {
		t.Errorf("范围外的地址应该返回错误")
	}
}

func TestExpandIPv6String(t *testing.T) {
	got, err := ExpandIPv6String("fe80::A:1")
	if err != nil {
		t.Fatalf("展开失败: %v", err)
	}
	if want := "fe80:0000:0000:0000:0000:0000:000a:0001"; got != want {
		t.Errorf("ExpandIPv6String = %s, want %s", got, want)
	}
	if _, err := ExpandIPv6String("10.0.0.1"); err == nil {
		t.Errorf("IPv4 地址应该返回错误")
	}
	if _, err := ExpandIPv6String("::ffff:1.2.3.4"); err == nil {
		t.Errorf("IPv4映射地址应该返回错误")
	}
	if got, want := ExpandIPv6(netip.MustParseAddr("::ffff:1.2.3.4")), "0000:0000:0000:0000:0000:ffff:0102:0304"; got != want {
		t.Errorf("ExpandIPv6 = %s, want %s", got, want)
	}
}

func TestReverseIPv4Mapped(t *testing.T) {
	for _, ip := range []string{"::ffff:1.2.3.4", "::ffff:c0a8:1"} {
		t.Run(ip, func(t *testing.T) {
			if _, err := ReverseIP(ip); !errors.Is(err, common.ErrUnexpectedData) {
				t.Errorf("ReverseIP(%s) 期望 UnexpectedData, got %v", ip, err)
			}
		})
	}
	if _, err := ReverseOriginFromCIDR("::ffff:192.168.0.0/120"); err == nil {
		t.Errorf("IPv4映射地址段应该返回错误")
	}
}
