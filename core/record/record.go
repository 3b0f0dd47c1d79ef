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

// core/record/record.go
// 按记录类型区分的强类型记录数据

package record

import (
	"net/netip"
	"strconv"
	"strings"

	"Roster/core/common"
)

// Data 记录数据，Values 按参数定义顺序返回存储用字符串
type Data interface {
	Type() string
	Values() []string
}

// A IPv4地址记录
type A struct {
	IP netip.Addr
}

// AAAA IPv6地址记录
type AAAA struct {
	IP netip.Addr
}

// CNAME 别名记录
type CNAME struct {
	Host string
}

// NS 名称服务器记录
type NS struct {
	NameServer string
}

// MX 邮件交换记录
type MX struct {
	Priority   uint32
	MailServer string
}

// PTR 反向解析记录
type PTR struct {
	Host string
}

// SOA 起始授权记录
type SOA struct {
	NameServer string
	AdminEmail string
	Serial     uint32
	Refresh    uint32
	Retry      uint32
	Expiry     uint32
	Minimum    uint32
}

// SRV 服务定位记录
type SRV struct {
	Priority uint32
	Weight   uint32
	Port     uint32
	Host     string
}

// TXT 文本记录，QuotedText 保存带引号的原文
type TXT struct {
	QuotedText string
}

// HINFO 主机信息记录
type HINFO struct {
	Hardware string
	OS       string
}

func (A) Type() string     { return TypeA }
func (AAAA) Type() string  { return TypeAAAA }
func (CNAME) Type() string { return TypeCNAME }
func (NS) Type() string    { return TypeNS }
func (MX) Type() string    { return TypeMX }
func (PTR) Type() string   { return TypePTR }
func (SOA) Type() string   { return TypeSOA }
func (SRV) Type() string   { return TypeSRV }
func (TXT) Type() string   { return TypeTXT }
func (HINFO) Type() string { return TypeHINFO }

func u32(v uint32) string { return strconv.FormatUint(uint64(v), 10) }

func (r A) Values() []string     { return []string{r.IP.String()} }
func (r AAAA) Values() []string  { return []string{ExpandIPv6(r.IP)} }
func (r CNAME) Values() []string { return []string{r.Host} }
func (r NS) Values() []string    { return []string{r.NameServer} }
func (r MX) Values() []string    { return []string{u32(r.Priority), r.MailServer} }
func (r PTR) Values() []string   { return []string{r.Host} }
func (r TXT) Values() []string   { return []string{r.QuotedText} }
func (r HINFO) Values() []string { return []string{r.Hardware, r.OS} }

func (r SOA) Values() []string {
	return []string{
		r.NameServer, r.AdminEmail, u32(r.Serial),
		u32(r.Refresh), u32(r.Retry), u32(r.Expiry), u32(r.Minimum),
	}
}

func (r SRV) Values() []string {
	return []string{u32(r.Priority), u32(r.Weight), u32(r.Port), r.Host}
}

// Parse 按记录类型校验参数集合及取值，返回强类型记录
// 参数集合必须与定义完全一致，缺失或多余的参数返回 ErrInvalidInput
func Parse(recordType string, args map[string]interface{}) (Data, error) {
	def, ok := LookupType(recordType)
	if !ok {
		return nil, common.NewError(common.KindInvalidInput, "Unknown record type: %s", recordType)
	}

	for name := range args {
		if _, ok := def.Argument(name); !ok {
			return nil, common.NewError(common.KindInvalidInput, "Unknown argument %s for record type %s", name, def.Type)
		}
	}

	values := make(map[string]string, len(def.Args))
	for _, arg := range def.Args {
		value, ok := args[arg.Name]
		if !ok || value == nil {
			return nil, common.NewError(common.KindInvalidInput, "Missing argument %s for record type %s", arg.Name, def.Type)
		}
		if err := CheckDataType(arg.DataType, value); err != nil {
			return nil, common.NewError(common.KindUnexpectedData, "Invalid value for %s %s: %v", def.Type, arg.Name, value)
		}
		values[arg.Name] = strings.TrimSpace(FormatValue(value))
	}

	return build(def.Type, values)
}

// ParseStrings 解析以字符串存储的参数
func ParseStrings(recordType string, args map[string]string) (Data, error) {
	generic := make(map[string]interface{}, len(args))
	for name, value := range args {
		generic[name] = value
	}
	return Parse(recordType, generic)
}

func build(recordType string, v map[string]string) (Data, error) {
	num := func(name string) uint32 {
		n, _ := ToUnsigned(v[name])
		return n
	}

	switch recordType {
	case TypeA:
		ip, err := netip.ParseAddr(v["assignment_ip"])
		if err != nil {
			return nil, common.NewError(common.KindUnexpectedData, "Invalid IPv4 address: %s", v["assignment_ip"])
		}
		return A{IP: ip}, nil
	case TypeAAAA:
		ip, err := netip.ParseAddr(v["assignment_ip"])
		if err != nil {
			return nil, common.NewError(common.KindUnexpectedData, "Invalid IPv6 address: %s", v["assignment_ip"])
		}
		return AAAA{IP: ip}, nil
	case TypeCNAME:
		return CNAME{Host: v["assignment_host"]}, nil
	case TypeNS:
		return NS{NameServer: v["name_server"]}, nil
	case TypeMX:
		return MX{Priority: num("priority"), MailServer: v["mail_server"]}, nil
	case TypePTR:
		return PTR{Host: v["assignment_host"]}, nil
	case TypeSOA:
		return SOA{
			NameServer: v["name_server"],
			AdminEmail: v["admin_email"],
			Serial:     num("serial_number"),
			Refresh:    num("refresh_seconds"),
			Retry:      num("retry_seconds"),
			Expiry:     num("expiry_seconds"),
			Minimum:    num("minimum_seconds"),
		}, nil
	case TypeSRV:
		return SRV{
			Priority: num("priority"),
			Weight:   num("weight"),
			Port:     num("port"),
			Host:     v["assignment_host"],
		}, nil
	case TypeTXT:
		return TXT{QuotedText: v["quoted_text"]}, nil
	case TypeHINFO:
		return HINFO{Hardware: v["hardware"], OS: v["os"]}, nil
	}
	return nil, common.NewError(common.KindInvalidInput, "Unknown record type: %s", recordType)
}

// ArgumentMap 按名称返回存储用的参数值
func ArgumentMap(d Data) map[string]string {
	def := Registry[d.Type()]
	values := d.Values()
	result := make(map[string]string, len(values))
	for i, arg := range def.Args {
		result[arg.Name] = values[i]
	}
	return result
}

// WireArguments 返回用于RPC传输的参数，无符号整数参数以数字表示
func WireArguments(d Data) map[string]interface{} {
	def := Registry[d.Type()]
	values := d.Values()
	result := make(map[string]interface{}, len(values))
	for i, arg := range def.Args {
		if arg.DataType == UnsignedInt {
			n, _ := ToUnsigned(values[i])
			result[arg.Name] = n
			continue
		}
		result[arg.Name] = values[i]
	}
	return result
}

// SameArguments 比较两组参数是否逐项相同
func SameArguments(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for key, value := range a {
		if other, ok := b[key]; !ok || other != value {
			return false
		}
	}
	return true
}
