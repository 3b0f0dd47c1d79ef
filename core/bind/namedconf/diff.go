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

// core/bind/namedconf/diff.go
// 导出前后配置树的差异比较

package namedconf

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// 中间差异区域超过该规模时不再求最长公共子序列，整体视为删除加新增
const maxDiffCells = 4 << 20

// DiffOp 差异行类型
type DiffOp string

const (
	OpEqual  DiffOp = "equal"
	OpAdd    DiffOp = "add"
	OpRemove DiffOp = "remove"
)

// DiffResult 差异结果
type DiffResult struct {
	Lines []DiffLine `json:"lines"`
	Stats DiffStats  `json:"stats"`
}

// DiffLine 差异行，OldLine/NewLine 为 1 起的行号，不存在时为 0
type DiffLine struct {
	Op      DiffOp `json:"op"`
	OldLine int    `json:"old_line"`
	NewLine int    `json:"new_line"`
	Content string `json:"content"`
}

// DiffStats 差异统计
type DiffStats struct {
	Unchanged int `json:"unchanged"`
	Added     int `json:"added"`
	Removed   int `json:"removed"`
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

// Diff 按行比较，插入和删除不会让后面的行全部错位
func Diff(oldContent, newContent string) *DiffResult {
	a, b := splitLines(oldContent), splitLines(newContent)
	r := &DiffResult{Lines: make([]DiffLine, 0, len(a)+len(b))}

	// 相同的前缀和后缀不参与计算
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	for i := 0; i < prefix; i++ {
		r.equal(i, i, a[i])
	}
	r.middle(a[prefix:len(a)-suffix], b[prefix:len(b)-suffix], prefix, prefix)
	for i := suffix; i > 0; i-- {
		r.equal(len(a)-i, len(b)-i, a[len(a)-i])
	}
	return r
}

func (r *DiffResult) equal(i, j int, line string) {
	r.Lines = append(r.Lines, DiffLine{Op: OpEqual, OldLine: i + 1, NewLine: j + 1, Content: line})
	r.Stats.Unchanged++
}

func (r *DiffResult) remove(i int, line string) {
	r.Lines = append(r.Lines, DiffLine{Op: OpRemove, OldLine: i + 1, Content: line})
	r.Stats.Removed++
}

func (r *DiffResult) add(j int, line string) {
	r.Lines = append(r.Lines, DiffLine{Op: OpAdd, NewLine: j + 1, Content: line})
	r.Stats.Added++
}

// middle 用最长公共子序列比较中间部分，offA/offB 为该部分在原文件中的起始行
func (r *DiffResult) middle(a, b []string, offA, offB int) {
	n, m := len(a), len(b)
	if n*m > maxDiffCells || n == 0 || m == 0 {
		for i, line := range a {
			r.remove(offA+i, line)
		}
		for j, line := range b {
			r.add(offB+j, line)
		}
		return
	}

	// lcs[i][j] 为 a[i:] 与 b[j:] 的最长公共子序列长度
	lcs := make([][]int32, n+1)
	for i := range lcs {
		lcs[i] = make([]int32, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			r.equal(offA+i, offB+j, a[i])
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			r.remove(offA+i, a[i])
			i++
		default:
			r.add(offB+j, b[j])
			j++
		}
	}
	for ; i < n; i++ {
		r.remove(offA+i, a[i])
	}
	for ; j < m; j++ {
		r.add(offB+j, b[j])
	}
}

// Changed 是否有新增或删除的行
func (r *DiffResult) Changed() bool {
	return r.Stats.Added > 0 || r.Stats.Removed > 0
}

// Summary 差异统计的一行摘要
func (r *DiffResult) Summary() string {
	return fmt.Sprintf("+%d -%d =%d", r.Stats.Added, r.Stats.Removed, r.Stats.Unchanged)
}

// DiffFiles 比较两个文件的差异，不存在的文件视为空文件
func DiffFiles(oldFile, newFile string) (*DiffResult, error) {
	oldContent, err := readOptional(oldFile)
	if err != nil {
		return nil, err
	}
	newContent, err := readOptional(newFile)
	if err != nil {
		return nil, err
	}
	return Diff(oldContent, newContent), nil
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("读取文件 %s 失败: %v", path, err)
	}
	return string(data), nil
}

// FileChange 配置树中一个文件的变化
type FileChange struct {
	Path   string    `json:"path" yaml:"path"`
	Status string    `json:"status" yaml:"status"` // added, removed, modified
	Stats  DiffStats `json:"stats" yaml:"stats"`
}

// DiffTrees 比较两个目录下的所有普通文件，按相对路径排序返回有变化的文件
func DiffTrees(oldDir, newDir string) ([]FileChange, error) {
	oldFiles, err := listFiles(oldDir)
	if err != nil {
		return nil, err
	}
	newFiles, err := listFiles(newDir)
	if err != nil {
		return nil, err
	}

	paths := make(map[string]bool, len(oldFiles)+len(newFiles))
	for p := range oldFiles {
		paths[p] = true
	}
	for p := range newFiles {
		paths[p] = true
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	var changes []FileChange
	for _, p := range sorted {
		diff, err := DiffFiles(filepath.Join(oldDir, p), filepath.Join(newDir, p))
		if err != nil {
			return nil, err
		}
		status := "modified"
		switch {
		case !oldFiles[p]:
			status = "added"
		case !newFiles[p]:
			status = "removed"
		case !diff.Changed():
			continue
		}
		changes = append(changes, FileChange{Path: p, Status: status, Stats: diff.Stats})
	}
	return changes, nil
}

// listFiles 目录下普通文件的相对路径，目录不存在时为空
func listFiles(dir string) (map[string]bool, error) {
	files := make(map[string]bool)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("遍历目录 %s 失败: %v", dir, err)
	}
	return files, nil
}
