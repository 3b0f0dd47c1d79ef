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

// core/bind/namedconf/parser.go
// named.conf 文件解析模块

package namedconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// 元素类型
const (
	ElementRoot    = "root"
	ElementBlock   = "block"
	ElementSimple  = "simple"
	ElementInclude = "include"
)

// ConfigElement 配置元素结构，Value 保留原始文本（含引号）
type ConfigElement struct {
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	Value         string          `json:"value"`
	Comments      []string        `json:"comments"`      // 元素级注释
	ChildElements []ConfigElement `json:"childElements"` // 子元素
	LineComment   string          `json:"lineComment"`   // 行尾注释
}

// Find 返回名称匹配的直接子元素
func (e *ConfigElement) Find(name string) []ConfigElement {
	var result []ConfigElement
	for _, child := range e.ChildElements {
		if child.Name == name {
			result = append(result, child)
		}
	}
	return result
}

// First 返回第一个名称匹配的直接子元素
func (e *ConfigElement) First(name string) (ConfigElement, bool) {
	for _, child := range e.ChildElements {
		if child.Name == name {
			return child, true
		}
	}
	return ConfigElement{}, false
}

// Unquote 去掉值两端的双引号
func Unquote(value string) string {
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	return value
}

// Parser 配置解析器
type Parser struct {
	filePath string
	basePath string
}

// NewParser 创建新的解析器实例
func NewParser(filePath string) *Parser {
	return &Parser{
		filePath: filePath,
		basePath: filepath.Dir(filePath),
	}
}

// Parse 解析 named.conf 文件，include 相对于文件所在目录
func (p *Parser) Parse() (*ConfigElement, error) {
	content, err := os.ReadFile(p.filePath)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %v", err)
	}

	return p.parseContent(string(content), p.basePath)
}

// ParseContent 解析配置文本，include 保留为不展开的元素
func ParseContent(content string) (*ConfigElement, error) {
	return (&Parser{}).parseContent(content, "")
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokOpen
	tokClose
	tokSemicolon
	tokComment
)

type token struct {
	kind     tokenKind
	text     string
	line     int
	trailing bool // 注释与前一个语法记号在同一行
}

// tokenize 切分记号，引号内的括号、分号和注释符不生效
func tokenize(content string) ([]token, error) {
	var tokens []token
	line, lastLine := 1, 0
	n := len(content)

	for i := 0; i < n; {
		c := content[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#' || (c == '/' && i+1 < n && content[i+1] == '/'):
			end := strings.IndexByte(content[i:], '\n')
			if end < 0 {
				end = n - i
			}
			text := strings.TrimSpace(strings.TrimLeft(content[i:i+end], "#/"))
			tokens = append(tokens, token{kind: tokComment, text: text, line: line, trailing: lastLine == line})
			i += end
		case c == '/' && i+1 < n && content[i+1] == '*':
			end := strings.Index(content[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("第 %d 行注释未闭合", line)
			}
			text := content[i+2 : i+2+end]
			tokens = append(tokens, token{kind: tokComment, text: strings.TrimSpace(text), line: line, trailing: lastLine == line})
			line += strings.Count(text, "\n")
			i += end + 4
		case c == '{':
			tokens = append(tokens, token{kind: tokOpen, text: "{", line: line})
			lastLine = line
			i++
		case c == '}':
			tokens = append(tokens, token{kind: tokClose, text: "}", line: line})
			lastLine = line
			i++
		case c == ';':
			tokens = append(tokens, token{kind: tokSemicolon, text: ";", line: line})
			lastLine = line
			i++
		case c == '"':
			start := line
			j := i + 1
			for j < n && content[j] != '"' {
				if content[j] == '\\' && j+1 < n {
					j++
				}
				if content[j] == '\n' {
					line++
				}
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("第 %d 行引号未闭合", start)
			}
			tokens = append(tokens, token{kind: tokWord, text: content[i : j+1], line: start})
			lastLine = line
			i = j + 1
		default:
			j := i
			for j < n && !strings.ContainsRune(" \t\r\n{};\"#", rune(content[j])) {
				if content[j] == '/' && j+1 < n && (content[j+1] == '/' || content[j+1] == '*') {
					break
				}
				j++
			}
			tokens = append(tokens, token{kind: tokWord, text: content[i:j], line: line})
			lastLine = line
			i = j
		}
	}
	return tokens, nil
}

type tokenStream struct {
	tokens []token
	pos    int
}

func (ts *tokenStream) done() bool { return ts.pos >= len(ts.tokens) }

func (ts *tokenStream) peek() token { return ts.tokens[ts.pos] }

// parseContent 解析配置内容
func (p *Parser) parseContent(content string, basePath string) (*ConfigElement, error) {
	tokens, err := tokenize(content)
	if err != nil {
		return nil, err
	}

	// 根元素
	root := &ConfigElement{
		Name:          ElementRoot,
		Type:          ElementRoot,
		ChildElements: make([]ConfigElement, 0),
		Comments:      make([]string, 0),
	}
	ts := &tokenStream{tokens: tokens}
	if err := p.parseStatements(ts, root, basePath, false); err != nil {
		return nil, err
	}
	return root, nil
}

// parseStatements 解析语句序列，nested 为真时遇到 } 返回
func (p *Parser) parseStatements(ts *tokenStream, parent *ConfigElement, basePath string, nested bool) error {
	comments := make([]string, 0)
	for !ts.done() {
		tok := ts.peek()
		switch tok.kind {
		case tokComment:
			ts.pos++
			if tok.trailing && len(parent.ChildElements) > 0 {
				last := &parent.ChildElements[len(parent.ChildElements)-1]
				if last.LineComment == "" {
					last.LineComment = tok.text
					continue
				}
			}
			comments = append(comments, tok.text)
			continue
		case tokSemicolon:
			ts.pos++
			continue
		case tokClose:
			if !nested {
				return fmt.Errorf("第 %d 行多余的 }", tok.line)
			}
			ts.pos++
			if !ts.done() && ts.peek().kind == tokSemicolon {
				ts.pos++
			}
			return nil
		}

		element, err := p.parseStatement(ts, basePath)
		if err != nil {
			return err
		}
		element.Comments = comments
		comments = make([]string, 0)
		parent.ChildElements = append(parent.ChildElements, *element)
	}

	if nested {
		return fmt.Errorf("配置块 %s 未闭合", parent.Name)
	}
	return nil
}

// parseStatement 解析一条语句：以分号结束的简单配置项或以花括号开始的配置块
func (p *Parser) parseStatement(ts *tokenStream, basePath string) (*ConfigElement, error) {
	start := ts.peek()
	words := make([]string, 0, 4)

	for !ts.done() {
		tok := ts.peek()
		switch tok.kind {
		case tokWord:
			words = append(words, tok.text)
			ts.pos++
		case tokComment:
			ts.pos++
		case tokSemicolon:
			ts.pos++
			return p.parseSimple(words, basePath)
		case tokOpen:
			if len(words) == 0 {
				return nil, fmt.Errorf("第 %d 行配置块缺少名称", tok.line)
			}
			ts.pos++
			element := &ConfigElement{
				Name:          words[0],
				Type:          ElementBlock,
				Value:         strings.Join(words[1:], " "),
				ChildElements: make([]ConfigElement, 0),
			}
			if err := p.parseStatements(ts, element, basePath, true); err != nil {
				return nil, err
			}
			return element, nil
		case tokClose:
			return nil, fmt.Errorf("第 %d 行语句缺少分号", tok.line)
		}
	}
	return nil, fmt.Errorf("第 %d 行语句缺少分号", start.line)
}

// parseSimple 解析简单配置项
func (p *Parser) parseSimple(words []string, basePath string) (*ConfigElement, error) {
	if words[0] == "include" && basePath != "" {
		return p.parseInclude(words, basePath)
	}
	return &ConfigElement{
		Name:  words[0],
		Type:  ElementSimple,
		Value: strings.Join(words[1:], " "),
	}, nil
}

// parseInclude 解析 include 指令并展开被包含的文件
func (p *Parser) parseInclude(words []string, basePath string) (*ConfigElement, error) {
	if len(words) != 2 {
		return nil, fmt.Errorf("无效的 include 指令: %s", strings.Join(words, " "))
	}

	includePath := Unquote(words[1])
	// 处理相对路径
	if !filepath.IsAbs(includePath) {
		includePath = filepath.Join(basePath, includePath)
	}

	includeContent, err := os.ReadFile(includePath)
	if err != nil {
		return nil, fmt.Errorf("读取包含文件失败: %v", err)
	}

	includeRoot, err := p.parseContent(string(includeContent), filepath.Dir(includePath))
	if err != nil {
		return nil, fmt.Errorf("解析包含文件 %s 失败: %v", includePath, err)
	}

	return &ConfigElement{
		Name:          ElementInclude,
		Type:          ElementInclude,
		Value:         includePath,
		ChildElements: includeRoot.ChildElements,
	}, nil
}

// countUnquotedBraces 计算字符串中未被引号包围的括号数量
func countUnquotedBraces(s string) (int, int) {
	leftCount := 0
	rightCount := 0
	inSingleQuote := false
	inDoubleQuote := false

	for i := 0; i < len(s); i++ {
		char := s[i]

		// 处理转义字符
		if i > 0 && s[i-1] == '\\' {
			continue
		}

		if char == '\'' && !inDoubleQuote {
			inSingleQuote = !inSingleQuote
		}
		if char == '"' && !inSingleQuote {
			inDoubleQuote = !inDoubleQuote
		}

		if char == '{' && !inSingleQuote && !inDoubleQuote {
			leftCount++
		}
		if char == '}' && !inSingleQuote && !inDoubleQuote {
			rightCount++
		}
	}

	return leftCount, rightCount
}
