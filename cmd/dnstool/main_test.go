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
// cmd/dnstool/main_test.go

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/record"
	"Roster/core/rpcclient"
	"Roster/core/webapi/api"
)

func startRosterd(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := common.NewConfig()
	cfg.Set("database", "driver", "sqlite")
	cfg.Set("database", "database", ":memory:")
	cfg.Set("credentials", "secret", "dnstool-test-secret-key-0123456789abcdef")
	cfg.Set("server", "get_credentials_wait_increment", "0")
	cfg.Set("server", "rate_limit", "0")

	store, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("创建测试数据库失败: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InitSchema(); err != nil {
		t.Fatalf("初始化数据库失败: %v", err)
	}
	err = store.WithTx(context.Background(), func(tx *database.Tx) error {
		return tx.MakeUser("admin", record.AccessDNSAdmin, "admin-password")
	})
	if err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}

	s, err := api.NewServer(store, cfg)
	if err != nil {
		t.Fatalf("创建RPC服务器失败: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

// runTool 执行一次 dnstool 命令，返回标准输出
func runTool(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	opts = globalOptions{}
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRPCCommands(t *testing.T) {
	url := startRosterd(t)
	dir := t.TempDir()
	credFile := filepath.Join(dir, "dnscred")
	base := []string{"--config", filepath.Join(dir, "missing.conf"), "--credfile", credFile}
	run := func(stdin string, args ...string) (string, error) {
		return runTool(t, stdin, append(append([]string{}, base...), args...)...)
	}

	if _, err := run("wrong\n", "--server", url, "credentials", "-u", "admin"); err == nil {
		t.Fatalf("密码错误时应失败")
	}
	if _, err := run("admin-password\n", "--server", url, "credentials", "-u", "admin"); err != nil {
		t.Fatalf("获取凭证失败: %v", err)
	}
	cf, err := rpcclient.LoadCredentialFile(credFile)
	if err != nil || cf.Credential == "" || cf.Server != url || cf.UserName != "admin" {
		t.Fatalf("凭证文件 = %+v, %v", cf, err)
	}

	// 服务器地址此后从凭证文件读取
	out, err := run("", "-o", "json", "credentials", "--check")
	if err != nil || !strings.Contains(out, `"authenticated": true`) {
		t.Fatalf("检查凭证: %s %v", out, err)
	}

	steps := [][]string{
		{"view", "make", "internal"},
		{"zone", "make", "example.com", "--view", "internal", "--origin", "example.com."},
		{"record", "make", "A", "www", "--zone", "example.com", "--view", "internal", "--arg", "assignment_ip=192.0.2.10"},
	}
	for _, step := range steps {
		if out, err := run("", step...); err != nil {
			t.Fatalf("%v 失败: %v\n%s", step, err, out)
		}
	}

	out, err = run("", "-o", "json", "view", "list")
	if err != nil {
		t.Fatalf("view list 失败: %v", err)
	}
	var views map[string]string
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("解析输出失败: %v\n%s", err, out)
	}
	if _, ok := views["internal"]; !ok {
		t.Errorf("view list = %v", views)
	}

	out, err = run("", "-o", "yaml", "record", "list", "--zone", "example.com", "--type", "a")
	if err != nil {
		t.Fatalf("record list 失败: %v", err)
	}
	var records []map[string]interface{}
	if err := yaml.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("解析输出失败: %v\n%s", err, out)
	}
	if len(records) != 1 || records[0]["target"] != "www" {
		t.Errorf("record list = %v", records)
	}

	out, err = run("", "call", "ListAuditLog", "--kwargs", `{"action":"MakeRecord"}`)
	if err != nil || !strings.Contains(out, "MakeRecord") {
		t.Errorf("call ListAuditLog: %v\n%s", err, out)
	}

	_, err = run("", "record", "make", "A", "www", "--zone", "example.com", "--arg", "assignment_ip")
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("参数格式错误应返回 InvalidInput, 实际 %v", err)
	}
}

func TestTreeExportEmptyAuditLog(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "roster.conf")
	content := "[database]\ndriver = sqlite\ndatabase = " + filepath.Join(dir, "roster.db") + "\n\n" +
		"[exporter]\nroot_config_dir = " + filepath.Join(dir, "root_config") + "\n" +
		"backup_dir = " + filepath.Join(dir, "backup") + "\n"
	if err := os.WriteFile(conf, []byte(content), 0600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	_, err := runTool(t, "", "--config", conf, "treeexport")
	if !errors.Is(err, common.ErrExporterAuditID) {
		t.Errorf("审计日志为空时应返回 ExporterAuditIdError, 实际 %v", err)
	}
}

func TestRecordKwargs(t *testing.T) {
	rf := recordFlags{zoneName: "example.com", viewName: "any", ttl: 300, args: []string{"priority=10", "mail_server=mail.example.com."}}
	kwargs, err := rf.kwargs("MX", "@")
	if err != nil {
		t.Fatalf("kwargs 失败: %v", err)
	}
	if kwargs["record_type"] != "mx" || kwargs["ttl"] != 300 {
		t.Errorf("kwargs = %v", kwargs)
	}
	args := kwargs["record_args_dict"].(map[string]interface{})
	if args["priority"] != "10" || args["mail_server"] != "mail.example.com." {
		t.Errorf("record_args_dict = %v", args)
	}

	rf.args = []string{"=x"}
	if _, err := rf.kwargs("MX", "@"); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("空键应返回 InvalidInput, 实际 %v", err)
	}
}
