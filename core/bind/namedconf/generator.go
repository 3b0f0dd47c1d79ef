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

// core/bind/namedconf/generator.go
// 把解析后的配置元素重新生成为文本

package namedconf

import (
	"fmt"
	"strings"
)

// Generator 配置生成器
type Generator struct {
	indent string
}

// NewGenerator 创建新的生成器实例，使用制表符缩进
func NewGenerator() *Generator {
	return &Generator{
		indent: "\t",
	}
}

// Generate 生成完整的配置内容
func (g *Generator) Generate(root *ConfigElement) (string, error) {
	if root == nil {
		return "", fmt.Errorf("根元素不能为空")
	}

	var sb strings.Builder
	g.generateElement(&sb, root, 0)
	return sb.String(), nil
}

// GenerateElements 生成一组元素，用于保存视图、区域和全局选项文本
func (g *Generator) GenerateElements(elements []ConfigElement) string {
	var sb strings.Builder
	for i := range elements {
		g.generateElement(&sb, &elements[i], 0)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// generateElement 生成单个配置元素
func (g *Generator) generateElement(sb *strings.Builder, element *ConfigElement, depth int) {
	for _, comment := range element.Comments {
		g.writeIndent(sb, depth)
		sb.WriteString(fmt.Sprintf("# %s\n", comment))
	}

	switch element.Type {
	case ElementRoot:
		for i := range element.ChildElements {
			g.generateElement(sb, &element.ChildElements[i], depth)
		}

	case ElementBlock:
		g.writeIndent(sb, depth)
		sb.WriteString(joinWords(element.Name, element.Value) + " {")
		g.writeLineComment(sb, element.LineComment)
		sb.WriteString("\n")

		for i := range element.ChildElements {
			g.generateElement(sb, &element.ChildElements[i], depth+1)
		}

		g.writeIndent(sb, depth)
		sb.WriteString("};\n")

	case ElementSimple:
		g.writeIndent(sb, depth)
		sb.WriteString(joinWords(element.Name, element.Value) + ";")
		g.writeLineComment(sb, element.LineComment)
		sb.WriteString("\n")

	case ElementInclude:
		// 子元素在解析时已经展开，这里只保留指令本身
		g.writeIndent(sb, depth)
		sb.WriteString(fmt.Sprintf("include \"%s\";", element.Value))
		g.writeLineComment(sb, element.LineComment)
		sb.WriteString("\n")
	}
}

func joinWords(name, value string) string {
	if value == "" {
		return name
	}
	return name + " " + value
}

func (g *Generator) writeLineComment(sb *strings.Builder, comment string) {
	if comment != "" {
		sb.WriteString(fmt.Sprintf(" # %s", comment))
	}
}

// writeIndent 写入缩进
func (g *Generator) writeIndent(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat(g.indent, depth))
}
