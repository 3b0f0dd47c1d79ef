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

// core/record/names.go
// 域名与标签校验

package record

import (
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"

	"Roster/core/common"
)

const (
	// MaxNameLength 域名（punycode形式）最大字节数
	MaxNameLength = 255
	// MaxLabelLength 单个标签（punycode形式）最大字节数
	MaxLabelLength = 63
)

// ReservedWords 内置保留字，不可用作视图、ACL、区域等名称
var ReservedWords = []string{
	"any",
	"none",
	"localhost",
	"localnets",
	"default",
}

// ToPunycode 将名称转换为punycode形式
func ToPunycode(name string) (string, error) {
	ascii, err := idna.Punycode.ToASCII(name)
	if err != nil {
		return "", common.NewError(common.KindUnexpectedData, "Invalid name %q: %v", name, err)
	}
	return ascii, nil
}

// CheckNameLength 检查名称punycode后的总长度和标签长度
func CheckNameLength(name string) error {
	ascii, err := ToPunycode(name)
	if err != nil {
		return err
	}
	if len(strings.TrimSuffix(ascii, ".")) > MaxNameLength {
		return common.NewError(common.KindUnexpectedData, "Name %q is longer than %d bytes", name, MaxNameLength)
	}
	for _, label := range strings.Split(strings.TrimSuffix(ascii, "."), ".") {
		if len(label) > MaxLabelLength {
			return common.NewError(common.KindUnexpectedData, "Label %q is longer than %d bytes", label, MaxLabelLength)
		}
	}
	return nil
}

// validLabel 字母、数字、连字符、下划线，或单独的通配符
func validLabel(label string) bool {
	if label == "" {
		return false
	}
	if label == "*" {
		return true
	}
	for _, ch := range label {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_':
		default:
			return false
		}
	}
	return true
}

func validName(name string) bool {
	if CheckNameLength(name) != nil {
		return false
	}
	ascii, _ := ToPunycode(name)
	if _, ok := dns.IsDomainName(ascii); !ok {
		return false
	}
	for _, label := range strings.Split(strings.TrimSuffix(ascii, "."), ".") {
		if !validLabel(label) {
			return false
		}
	}
	return true
}

// IsHostname 是否为以 "." 结尾的完整域名
func IsHostname(name string) bool {
	if name == "." {
		return true
	}
	return strings.HasSuffix(name, ".") && validName(name)
}

// IsTarget 是否为合法的记录目标：@、相对名称或完整域名
func IsTarget(name string) bool {
	if name == "@" {
		return true
	}
	return validName(name)
}

// IsReservedWord 是否与内置保留字冲突（不区分大小写）
func IsReservedWord(value string, extra map[string]bool) bool {
	lower := strings.ToLower(strings.TrimSpace(value))
	for _, word := range ReservedWords {
		if lower == word {
			return true
		}
	}
	return extra[lower]
}
