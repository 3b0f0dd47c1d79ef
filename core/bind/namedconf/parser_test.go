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

// core/bind/namedconf/parser_test.go

package namedconf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"Roster/core/common"
)

const sampleNamedConf = `// 全局配置
options {
	directory "/var/named"; // 工作目录
	allow-query { any; };
	listen-on port 53 {
		127.0.0.1;
		10.0.0.1;
	};
};

acl secret { 10.10/16; !10.10.1.0/24; };

/* 内部视图 */
view "internal" {
	match-clients { secret; };
	zone "university.edu" IN {
		type master; file "internal/university.edu.db";
		also-notify { 10.0.0.2; };
	};
};
`

func TestParseContent(t *testing.T) {
	root, err := ParseContent(sampleNamedConf)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(root.ChildElements) != 3 {
		t.Fatalf("顶层元素 %d 个, 期望 3", len(root.ChildElements))
	}

	options, ok := root.First("options")
	if !ok || options.Type != ElementBlock {
		t.Fatalf("缺少 options 块")
	}
	if want := []string{"全局配置"}; len(options.Comments) != 1 || options.Comments[0] != want[0] {
		t.Errorf("options 注释 = %v", options.Comments)
	}

	tests := []struct {
		name      string
		element   string
		wantType  string
		wantValue string
	}{
		{"引号值保留原文", "directory", ElementSimple, `"/var/named"`},
		{"单行块", "allow-query", ElementBlock, ""},
		{"块名后的参数", "listen-on", ElementBlock, "port 53"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := options.First(tt.element)
			if !ok {
				t.Fatalf("缺少 %s", tt.element)
			}
			if e.Type != tt.wantType || e.Value != tt.wantValue {
				t.Errorf("%s = (%s, %q), 期望 (%s, %q)", tt.element, e.Type, e.Value, tt.wantType, tt.wantValue)
			}
		})
	}

	directory, _ := options.First("directory")
	if directory.LineComment != "工作目录" {
		t.Errorf("行尾注释 = %q", directory.LineComment)
	}
	listen, _ := options.First("listen-on")
	if len(listen.ChildElements) != 2 || listen.ChildElements[1].Name != "10.0.0.1" {
		t.Errorf("listen-on 子元素 = %v", listen.ChildElements)
	}

	acl, _ := root.First("acl")
	if acl.Value != "secret" || len(acl.ChildElements) != 2 || acl.ChildElements[1].Name != "!10.10.1.0/24" {
		t.Errorf("acl 解析结果 = %+v", acl)
	}

	view, _ := root.First("view")
	if Unquote(view.Value) != "internal" || len(view.Comments) != 1 || view.Comments[0] != "内部视图" {
		t.Errorf("view 解析结果 = %+v", view)
	}
	zone, ok := view.First("zone")
	if !ok || zone.Value != `"university.edu" IN` {
		t.Fatalf("zone 解析结果 = %+v", zone)
	}
	file, _ := zone.First("file")
	if Unquote(file.Value) != "internal/university.edu.db" {
		t.Errorf("同一行的多条语句未拆开: %+v", zone.ChildElements)
	}
}

func TestParseContentErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"块未闭合", "options {\n\tdirectory \"/var\";\n"},
		{"多余的右括号", "};"},
		{"缺少分号", "options { directory \"/var\" };"},
		{"引号未闭合", "options { directory \"/var; };"},
		{"注释未闭合", "/* options"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseContent(tt.content); err == nil {
				t.Errorf("期望解析失败")
			}
		})
	}
}

func TestParserInclude(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "acls.conf"), []byte("acl public { 192.168.1.0/24; };\n"), 0644); err != nil {
		t.Fatalf("写入文件失败: %v", err)
	}
	main := filepath.Join(dir, "named.conf")
	if err := os.WriteFile(main, []byte("include \"acls.conf\";\noptions { directory \"/var\"; };\n"), 0644); err != nil {
		t.Fatalf("写入文件失败: %v", err)
	}

	root, err := NewParser(main).Parse()
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	include, ok := root.First(ElementInclude)
	if !ok {
		t.Fatalf("缺少 include 元素")
	}
	if len(include.ChildElements) != 1 || include.ChildElements[0].Name != "acl" {
		t.Errorf("include 未展开: %+v", include)
	}
}

func TestGeneratorRoundTrip(t *testing.T) {
	root, err := ParseContent(sampleNamedConf)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	text, err := NewGenerator().Generate(root)
	if err != nil {
		t.Fatalf("生成失败: %v", err)
	}
	again, err := ParseContent(text)
	if err != nil {
		t.Fatalf("重新解析失败: %v\n%s", err, text)
	}
	if len(again.ChildElements) != len(root.ChildElements) {
		t.Errorf("重新解析后顶层元素 %d 个, 期望 %d", len(again.ChildElements), len(root.ChildElements))
	}

	options, _ := root.First("options")
	body := NewGenerator().GenerateElements(options.ChildElements[1:2])
	if body != "allow-query {\n\tany;\n};" {
		t.Errorf("GenerateElements = %q", body)
	}
}

func TestCheckGlobalOptions(t *testing.T) {
	tests := []struct {
		name    string
		options string
		wantErr bool
	}{
		{"合法选项", "options {\n\tdirectory \"/var/named\";\n};", false},
		{"引号内的括号不计数", "options { directory \"/var/{named\"; };", false},
		{"缺少右括号", "options {", true},
		{"多出右括号", "options { }; };", true},
		{"语法错误", "options { directory \"/var\" };", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckGlobalOptions(tt.options)
			if tt.wantErr && !errors.Is(err, common.ErrUnexpectedData) {
				t.Errorf("期望 UnexpectedData, 实际 %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("不应出错: %v", err)
			}
		})
	}
}
