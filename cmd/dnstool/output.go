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
// cmd/dnstool/output.go
// 命令结果的 table/json/yaml 输出

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// OutputFormat 输出格式
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat 解析 --format 取值
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case FormatTable, "":
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("不支持的输出格式: %s (table, json, yaml)", s)
}

// Formatter 把任意结果写到 writer
type Formatter struct {
	format OutputFormat
}

// NewFormatter 创建格式化器
func NewFormatter(format OutputFormat) *Formatter {
	return &Formatter{format: format}
}

// Format 按格式输出 v
func (f *Formatter) Format(v interface{}, w io.Writer) error {
	switch f.format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		generic, err := toGeneric(v)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return f.formatTable(v, w)
	}
}

// toGeneric 经 JSON 转成 map/slice，使 yaml 与 table 使用 JSON 字段名
func toGeneric(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

func (f *Formatter) formatTable(v interface{}, w io.Writer) error {
	generic, err := toGeneric(v)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	switch value := generic.(type) {
	case []interface{}:
		writeRows(tw, value)
	case map[string]interface{}:
		writeMap(tw, value)
	case nil:
		fmt.Fprintln(tw, "OK")
	default:
		fmt.Fprintln(tw, cell(value))
	}
	return tw.Flush()
}

// writeRows 对象数组按列输出，列为所有对象字段的并集
func writeRows(w io.Writer, rows []interface{}) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(无结果)")
		return
	}
	columnSet := make(map[string]bool)
	for _, row := range rows {
		if m, ok := row.(map[string]interface{}); ok {
			for k := range m {
				columnSet[k] = true
			}
		}
	}
	if len(columnSet) == 0 {
		for _, row := range rows {
			fmt.Fprintln(w, cell(row))
		}
		return
	}
	columns := sortedKeys(columnSet)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(columns, "\t")))
	for _, row := range rows {
		m, _ := row.(map[string]interface{})
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = cell(m[c])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

// writeMap 键值结果输出两列；值为对象的 map 展开成以键为首列的表
func writeMap(w io.Writer, m map[string]interface{}) {
	if len(m) == 0 {
		fmt.Fprintln(w, "(无结果)")
		return
	}
	keys := make([]string, 0, len(m))
	allObjects := true
	columnSet := make(map[string]bool)
	for k, v := range m {
		keys = append(keys, k)
		obj, ok := v.(map[string]interface{})
		if !ok {
			allObjects = false
			continue
		}
		for c := range obj {
			columnSet[c] = true
		}
	}
	sort.Strings(keys)

	if !allObjects || len(columnSet) == 0 {
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\n", k, cell(m[k]))
		}
		return
	}
	columns := sortedKeys(columnSet)
	fmt.Fprintln(w, strings.ToUpper("name\t"+strings.Join(columns, "\t")))
	for _, k := range keys {
		obj := m[k].(map[string]interface{})
		cells := []string{k}
		for _, c := range columns {
			cells = append(cells, cell(obj[c]))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// cell 单元格文本；嵌套结构输出紧凑 JSON，多行文本压成一行
func cell(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return "-"
	case string:
		if value == "" {
			return "-"
		}
		return strings.Join(strings.Fields(value), " ")
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return fmt.Sprintf("%t", value)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(data)
	}
}
