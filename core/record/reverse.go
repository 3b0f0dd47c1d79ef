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

// core/record/reverse.go
// 反向解析名称与CIDR处理

package record

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/miekg/dns"

	"Roster/core/common"
)

const (
	ipv4ReverseSuffix = "in-addr.arpa."
	ipv6ReverseSuffix = "ip6.arpa."
)

// ExpandIPv6 返回八组四位小写十六进制的完整IPv6地址，IPv4映射地址同样展开
func ExpandIPv6(ip netip.Addr) string {
	if !ip.Is6() {
		return ip.String()
	}
	raw := ip.As16()
	groups := make([]string, 8)
	for i := 0; i < 8; i++ {
		groups[i] = fmt.Sprintf("%02x%02x", raw[2*i], raw[2*i+1])
	}
	return strings.Join(groups, ":")
}

// ExpandIPv6String 展开字符串形式的IPv6地址
func ExpandIPv6String(value string) (string, error) {
	ip, err := netip.ParseAddr(value)
	if err != nil || !ip.Is6() || ip.Is4In6() {
		return "", common.NewError(common.KindUnexpectedData, "Invalid IPv6 address: %s", value)
	}
	return ExpandIPv6(ip), nil
}

// NormalizeCIDR 解析CIDR，接受 "192.168.0/24" 这类省略的IPv4写法以及不带前缀的单个地址
func NormalizeCIDR(value string) (netip.Prefix, error) {
	value = strings.TrimSpace(value)
	address, bits, hasBits := strings.Cut(value, "/")

	if !strings.Contains(address, ":") {
		octets := strings.Split(address, ".")
		if len(octets) < 1 || len(octets) > 4 {
			return netip.Prefix{}, common.NewError(common.KindUnexpectedData, "Invalid CIDR block: %s", value)
		}
		for len(octets) < 4 {
			if !hasBits {
				return netip.Prefix{}, common.NewError(common.KindUnexpectedData, "Invalid CIDR block: %s", value)
			}
			octets = append(octets, "0")
		}
		address = strings.Join(octets, ".")
	}

	ip, err := netip.ParseAddr(address)
	if err != nil {
		return netip.Prefix{}, common.NewError(common.KindUnexpectedData, "Invalid CIDR block: %s", value)
	}

	prefixLen := ip.BitLen()
	if hasBits {
		prefixLen, err = strconv.Atoi(bits)
		if err != nil || prefixLen < 0 || prefixLen > ip.BitLen() {
			return netip.Prefix{}, common.NewError(common.KindUnexpectedData, "Invalid CIDR block: %s", value)
		}
	}

	return netip.PrefixFrom(ip, prefixLen).Masked(), nil
}

// ReverseIP 返回地址的反向解析名称，不接受IPv4映射的IPv6地址
func ReverseIP(ip string) (string, error) {
	if addr, err := netip.ParseAddr(ip); err == nil && addr.Is4In6() {
		return "", common.NewError(common.KindUnexpectedData, "IPv4-mapped address has no reverse name: %s", ip)
	}
	name, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", common.NewError(common.KindUnexpectedData, "Invalid IP address: %s", ip)
	}
	return name, nil
}

// UnReverseIP 将反向解析名称还原为地址，不完整的名称还原为CIDR
func UnReverseIP(name string) (string, error) {
	name = dns.Fqdn(strings.ToLower(name))

	switch {
	case strings.HasSuffix(name, "."+ipv4ReverseSuffix):
		labels := strings.Split(strings.TrimSuffix(name, "."+ipv4ReverseSuffix), ".")
		if len(labels) > 4 {
			return "", common.NewError(common.KindUnexpectedData, "Invalid reverse name: %s", name)
		}
		octets := make([]string, 0, 4)
		for i := len(labels) - 1; i >= 0; i-- {
			n, err := strconv.Atoi(labels[i])
			if err != nil || n < 0 || n > 255 {
				return "", common.NewError(common.KindUnexpectedData, "Invalid reverse name: %s", name)
			}
			octets = append(octets, strconv.Itoa(n))
		}
		if len(octets) == 4 {
			return strings.Join(octets, "."), nil
		}
		bits := len(octets) * 8
		for len(octets) < 4 {
			octets = append(octets, "0")
		}
		return fmt.Sprintf("%s/%d", strings.Join(octets, "."), bits), nil

	case strings.HasSuffix(name, "."+ipv6ReverseSuffix):
		nibbles := strings.Split(strings.TrimSuffix(name, "."+ipv6ReverseSuffix), ".")
		if len(nibbles) > 32 {
			return "", common.NewError(common.KindUnexpectedData, "Invalid reverse name: %s", name)
		}
		var raw [16]byte
		for i := 0; i < len(nibbles); i++ {
			nibble := nibbles[len(nibbles)-1-i]
			v, err := strconv.ParseUint(nibble, 16, 8)
			if err != nil || len(nibble) != 1 {
				return "", common.NewError(common.KindUnexpectedData, "Invalid reverse name: %s", name)
			}
			if i%2 == 0 {
				raw[i/2] |= byte(v) << 4
			} else {
				raw[i/2] |= byte(v)
			}
		}
		ip := netip.AddrFrom16(raw)
		if len(nibbles) == 32 {
			return ip.String(), nil
		}
		return netip.PrefixFrom(ip, len(nibbles)*4).String(), nil
	}

	return "", common.NewError(common.KindUnexpectedData, "Invalid reverse name: %s", name)
}

// ReverseOriginFromCIDR 返回CIDR对应的反向区域名称
// IPv4 前缀不足八位对齐且长于 /24 时使用 RFC 2317 形式 "<first>-<last>.c.b.a.in-addr.arpa."
func ReverseOriginFromCIDR(cidr string) (string, error) {
	prefix, err := NormalizeCIDR(cidr)
	if err != nil {
		return "", err
	}
	ip := prefix.Addr()
	bits := prefix.Bits()

	if ip.Is4() {
		octets := ip.As4()
		switch {
		case bits%8 == 0 && bits > 0:
			labels := make([]string, 0, 4)
			for i := bits/8 - 1; i >= 0; i-- {
				labels = append(labels, strconv.Itoa(int(octets[i])))
			}
			return strings.Join(labels, ".") + "." + ipv4ReverseSuffix, nil
		case bits > 24:
			first := int(octets[3])
			last := first + (1 << (32 - bits)) - 1
			return fmt.Sprintf("%d-%d.%d.%d.%d.%s", first, last, octets[2], octets[1], octets[0], ipv4ReverseSuffix), nil
		}
		return "", common.NewError(common.KindUnexpectedData, "CIDR block %s has no reverse zone form", cidr)
	}

	if bits%4 != 0 || bits == 0 {
		return "", common.NewError(common.KindUnexpectedData, "CIDR block %s is not nibble aligned", cidr)
	}
	full, err := ReverseIP(ip.String())
	if err != nil {
		return "", err
	}
	labels := strings.Split(strings.TrimSuffix(full, "."+ipv6ReverseSuffix), ".")
	keep := labels[len(labels)-bits/4:]
	return strings.Join(keep, ".") + "." + ipv6ReverseSuffix, nil
}

// CIDRContains 判断地址是否落在CIDR范围内
func CIDRContains(cidr, ip string) bool {
	prefix, err := NormalizeCIDR(cidr)
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return prefix.Contains(addr)
}

// ReverseTarget 返回地址在反向区域中的相对名称
func ReverseTarget(ip, origin string) (string, error) {
	name, err := ReverseIP(ip)
	if err != nil {
		return "", err
	}
	origin = dns.Fqdn(strings.ToLower(origin))

	if strings.HasSuffix(name, "."+origin) {
		return strings.TrimSuffix(name, "."+origin), nil
	}

	// RFC 2317 区域中只保留最后一个八位组
	firstLabel := strings.SplitN(origin, ".", 2)[0]
	if strings.Contains(firstLabel, "-") && strings.HasSuffix(origin, "."+ipv4ReverseSuffix) {
		return strings.SplitN(name, ".", 2)[0], nil
	}

	return "", common.NewError(common.KindCoreError, "IP %s is not inside reverse zone %s", ip, origin)
}
