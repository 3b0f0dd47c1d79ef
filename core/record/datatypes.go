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

// core/record/datatypes.go
// 数据类型定义与取值校验

package record

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"time"

	"Roster/core/common"
)

// 数据类型名称，与 data_types 表中的种子数据一致
const (
	UnsignedInt           = "UnsignedInt"
	IntBool               = "IntBool"
	Hostname              = "Hostname"
	Target                = "Target"
	IPv4IPAddress         = "IPv4IPAddress"
	IPv6IPAddress         = "IPv6IPAddress"
	CIDRBlock             = "CIDRBlock"
	UnicodeString         = "UnicodeString"
	UnicodeStringNotEmpty = "UnicodeStringNotEmpty"
	AccessLevel           = "AccessLevel"
	DateTime              = "DateTime"
)

// DataTypes 所有数据类型，按名称排序
var DataTypes = []string{
	AccessLevel,
	CIDRBlock,
	DateTime,
	Hostname,
	IPv4IPAddress,
	IPv6IPAddress,
	IntBool,
	Target,
	UnicodeString,
	UnicodeStringNotEmpty,
	UnsignedInt,
}

// MaxUnsignedInt 32位无符号整数上限
const MaxUnsignedInt = math.MaxUint32

// 访问级别
const (
	AccessNoop        = 0
	AccessUser        = 32
	AccessDomainAdmin = 64
	AccessDNSAdmin    = 128
)

// ValidAccessLevels 合法的访问级别
var ValidAccessLevels = map[int]string{
	AccessNoop:        "noop",
	AccessUser:        "user",
	AccessDomainAdmin: "domain_admin",
	AccessDNSAdmin:    "dns_admin",
}

// CheckDataType 检查取值是否符合数据类型，失败返回 ErrUnexpectedData
func CheckDataType(dataType string, value interface{}) error {
	switch dataType {
	case UnsignedInt:
		if _, err := ToUnsigned(value); err != nil {
			return err
		}
		return nil
	case IntBool:
		if _, ok := value.(bool); !ok {
			return unexpected(dataType, value)
		}
		return nil
	case AccessLevel:
		level, err := ToUnsigned(value)
		if err != nil {
			return err
		}
		if _, ok := ValidAccessLevels[int(level)]; !ok {
			return unexpected(dataType, value)
		}
		return nil
	case DateTime:
		if _, ok := value.(time.Time); !ok {
			return unexpected(dataType, value)
		}
		return nil
	}

	str, ok := value.(string)
	if !ok {
		return unexpected(dataType, value)
	}

	switch dataType {
	case UnicodeString:
		return nil
	case UnicodeStringNotEmpty:
		if str == "" {
			return unexpected(dataType, value)
		}
	case Hostname:
		if !IsHostname(str) {
			return unexpected(dataType, value)
		}
	case Target:
		if !IsTarget(str) {
			return unexpected(dataType, value)
		}
	case IPv4IPAddress:
		if !IsIPv4(str) {
			return unexpected(dataType, value)
		}
	case IPv6IPAddress:
		if !IsIPv6(str) {
			return unexpected(dataType, value)
		}
	case CIDRBlock:
		if _, err := NormalizeCIDR(str); err != nil {
			return unexpected(dataType, value)
		}
	default:
		return common.NewError(common.KindInvalidInput, "Unknown data type: %s", dataType)
	}
	return nil
}

func unexpected(dataType string, value interface{}) error {
	return common.NewError(common.KindUnexpectedData, "Invalid data type %s: %v", dataType, value)
}

// ToUnsigned 将整数、整数值浮点数或数字字符串转换为32位无符号整数
func ToUnsigned(value interface{}) (uint32, error) {
	var n float64
	switch v := value.(type) {
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return 0, unexpected(UnsignedInt, value)
		}
		return uint32(parsed), nil
	case json.Number:
		parsed, err := strconv.ParseUint(v.String(), 10, 32)
		if err != nil {
			return 0, unexpected(UnsignedInt, value)
		}
		return uint32(parsed), nil
	case float64:
		n = v
	case float32:
		n = float64(v)
	default:
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if rv.Uint() > MaxUnsignedInt {
				return 0, unexpected(UnsignedInt, value)
			}
			return uint32(rv.Uint()), nil
		default:
			return 0, unexpected(UnsignedInt, value)
		}
	}

	if n < 0 || n > MaxUnsignedInt || n != math.Trunc(n) {
		return 0, unexpected(UnsignedInt, value)
	}
	return uint32(n), nil
}

// IsIPv4 是否为点分十进制IPv4地址
func IsIPv4(value string) bool {
	ip := net.ParseIP(value)
	return ip != nil && ip.To4() != nil && !strings.Contains(value, ":")
}

// IsIPv6 是否为IPv6地址，IPv4映射地址和带 zone 的地址不算
func IsIPv6(value string) bool {
	ip, err := netip.ParseAddr(value)
	return err == nil && ip.Is6() && !ip.Is4In6() && ip.Zone() == ""
}

// FormatValue 将取值格式化为存储用字符串
func FormatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
