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

// core/servercheck/servercheck_test.go

package servercheck

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"

	"Roster/core/common"
	"Roster/core/database"
)

type fakeProber map[string]bool

func (f fakeProber) HasTool(_ context.Context, _ database.DnsServer, tool string) bool {
	return f[tool]
}

// startTestServer 启动一个只应答固定记录的本地 UDP DNS 服务器，返回端口
func startTestServer(t *testing.T, answers map[string][]string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("监听UDP失败: %v", err)
	}

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		if q.Qclass == dns.ClassCHAOS && strings.EqualFold(q.Name, "version.bind.") {
			m.Answer = append(m.Answer, &dns.TXT{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeTXT, Class: dns.ClassCHAOS},
				Txt: []string{"9.18.24"},
			})
		}
		key := strings.ToLower(q.Name) + " " + dns.TypeToString[q.Qtype]
		for _, s := range answers[key] {
			rr, err := dns.NewRR(s)
			if err == nil {
				m.Answer = append(m.Answer, rr)
			}
		}
		if len(m.Answer) == 0 && q.Qtype != dns.TypeSOA {
			m.Rcode = dns.RcodeNameError
		}
		w.WriteMsg(m)
	})

	started := make(chan struct{})
	server := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go server.ActivateAndServe()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("DNS服务器启动超时")
	}
	t.Cleanup(func() { server.Shutdown() })

	_, port, _ := net.SplitHostPort(pc.LocalAddr().String())
	return port
}

func TestCheckServer(t *testing.T) {
	port := startTestServer(t, nil)
	checker := NewChecker(fakeProber{"named-checkzone": true, "tar": true})
	checker.SetPort(port)
	checker.SetTimeout(time.Second)

	status, err := checker.CheckServer(context.Background(), database.DnsServer{DnsServerName: "127.0.0.1"})
	if err != nil {
		t.Fatalf("检查服务器失败: %v", err)
	}
	if !status.Reachable || status.BindVersion != "9.18.24" {
		t.Errorf("检查结果 = %+v", status)
	}

	tests := []struct {
		tool string
		want bool
	}{
		{"named-checkzone", true},
		{"named-checkconf", false},
		{"named-compilezone", false},
		{"tar", true},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			if status.Tools[tt.tool] != tt.want {
				t.Errorf("工具 %s = %v, 期望 %v", tt.tool, status.Tools[tt.tool], tt.want)
			}
		})
	}
}

func TestCheckServerUnreachable(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("监听UDP失败: %v", err)
	}
	_, port, _ := net.SplitHostPort(pc.LocalAddr().String())
	pc.Close()

	checker := NewChecker(fakeProber{})
	checker.SetPort(port)
	checker.SetTimeout(300 * time.Millisecond)

	status, err := checker.CheckServer(context.Background(), database.DnsServer{DnsServerName: "127.0.0.1"})
	if !errors.Is(err, common.ErrServerCheck) {
		t.Fatalf("期望 ServerCheckError, 实际 %v", err)
	}
	if status.Reachable || status.BindVersion != UnknownVersion {
		t.Errorf("不可达服务器的结果 = %+v", status)
	}

	results := checker.CheckServers(context.Background(), []database.DnsServer{{DnsServerName: "127.0.0.1"}})
	if len(results) != 1 || results[0].Reachable || results[0].Error == "" {
		t.Errorf("CheckServers 结果 = %+v", results)
	}
}

const checkZone = `$ORIGIN university.lcl.
@ 3600 in soa ns.university.lcl. hostmaster.university.lcl. 5 3600 600 86400 3600
@ 3600 in ns ns.university.lcl.
www 3600 in a 192.168.1.10
www 3600 in a 192.168.1.11
mail 3600 in a 192.168.1.20
`

func TestQueryCheck(t *testing.T) {
	port := startTestServer(t, map[string][]string{
		"university.lcl. SOA": {"university.lcl. 3600 IN SOA ns.university.lcl. hostmaster.university.lcl. 5 3600 600 86400 3600"},
		"university.lcl. NS":  {"university.lcl. 3600 IN NS ns.university.lcl."},
		"www.university.lcl. A": {
			"www.university.lcl. 300 IN A 192.168.1.11",
			"www.university.lcl. 300 IN A 192.168.1.10",
		},
		"mail.university.lcl. A": {"mail.university.lcl. 3600 IN A 192.168.1.99"},
	})
	checker := NewChecker(fakeProber{})
	checker.SetPort(port)
	checker.SetTimeout(time.Second)

	mismatches, err := checker.QueryCheck(context.Background(), "127.0.0.1", strings.NewReader(checkZone), "university.lcl")
	if err != nil {
		t.Fatalf("查询检查失败: %v", err)
	}
	if len(mismatches) != 1 {
		t.Fatalf("不一致 %d 组, 期望 1: %+v", len(mismatches), mismatches)
	}
	m := mismatches[0]
	if m.Name != "mail.university.lcl." || m.Type != "A" || len(m.Got) != 1 || m.Got[0] != "192.168.1.99" {
		t.Errorf("不一致记录 = %+v", m)
	}
}

func TestQueryCheckBadZone(t *testing.T) {
	checker := NewChecker(fakeProber{})
	_, err := checker.QueryCheck(context.Background(), "127.0.0.1", strings.NewReader("www 3600 in a not-an-ip\n"), "university.lcl")
	if !errors.Is(err, common.ErrUnexpectedData) {
		t.Errorf("期望 UnexpectedData, 实际 %v", err)
	}
}
