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

// core/servercheck/querycheck.go
// 对比导出的区域文件与服务器实际应答

package servercheck

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/miekg/dns"

	"Roster/core/common"
)

// QueryMismatch 一组记录在服务器上的应答与区域文件不一致
type QueryMismatch struct {
	Name     string   `json:"name" yaml:"name"`
	Type     string   `json:"type" yaml:"type"`
	Expected []string `json:"expected" yaml:"expected"`
	Got      []string `json:"got" yaml:"got"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
}

type rrKey struct {
	name  string
	rtype uint16
}

// rdata 去掉记录头后的数据部分，TTL 不参与比较
func rdata(rr dns.RR) string {
	return strings.TrimPrefix(rr.String(), rr.Header().String())
}

// QueryCheck 逐个 (名称, 类型) 向服务器查询区域文件中的记录，返回不一致的集合
func (c *Checker) QueryCheck(ctx context.Context, server string, zoneFile io.Reader, origin string) ([]QueryMismatch, error) {
	origin = dns.Fqdn(strings.ToLower(origin))
	expected := make(map[rrKey][]string)
	var order []rrKey

	zp := dns.NewZoneParser(zoneFile, origin, "")
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		key := rrKey{name: strings.ToLower(rr.Header().Name), rtype: rr.Header().Rrtype}
		if _, seen := expected[key]; !seen {
			order = append(order, key)
		}
		expected[key] = append(expected[key], rdata(rr))
	}
	if err := zp.Err(); err != nil {
		return nil, common.NewError(common.KindUnexpectedData, "Could not parse zone file for %s: %v", origin, err)
	}

	addr := c.address(server)
	mismatches := []QueryMismatch{}
	for _, key := range order {
		want := expected[key]
		sort.Strings(want)

		query := new(dns.Msg)
		query.SetQuestion(key.name, key.rtype)
		query.RecursionDesired = false
		resp, _, err := c.exchange(ctx, query, addr)
		if err != nil {
			return nil, common.WrapError(common.KindServerCheckError, err, "Query for %s failed on %s", key.name, server)
		}

		var got []string
		for _, rr := range resp.Answer {
			if rr.Header().Rrtype == key.rtype && strings.EqualFold(rr.Header().Name, key.name) {
				got = append(got, rdata(rr))
			}
		}
		sort.Strings(got)

		if !equalStrings(want, got) {
			mismatch := QueryMismatch{
				Name:     key.name,
				Type:     dns.TypeToString[key.rtype],
				Expected: want,
				Got:      got,
			}
			if resp.Rcode != dns.RcodeSuccess {
				mismatch.Error = dns.RcodeToString[resp.Rcode]
			}
			mismatches = append(mismatches, mismatch)
		}
	}
	c.logger.Info("服务器 %s 区域 %s 查询检查完成: %d 组记录, %d 组不一致", server, origin, len(order), len(mismatches))
	return mismatches, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
