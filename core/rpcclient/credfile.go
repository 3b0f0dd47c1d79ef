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

// core/rpcclient/credfile.go
// 本地凭证文件 (~/.dnscred)

package rpcclient

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultCredentialFile 默认凭证文件名，位于用户主目录
const DefaultCredentialFile = ".dnscred"

// CredentialFile 凭证文件内容
type CredentialFile struct {
	Server     string `yaml:"server"`
	UserName   string `yaml:"user_name"`
	Credential string `yaml:"credential"`
}

// DefaultCredentialPath 返回 ~/.dnscred
func DefaultCredentialPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultCredentialFile
	}
	return filepath.Join(home, DefaultCredentialFile)
}

// LoadCredentialFile 读取凭证文件，文件不存在时返回空内容
func LoadCredentialFile(path string) (*CredentialFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &CredentialFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取凭证文件失败: %w", err)
	}
	var cf CredentialFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("解析凭证文件 %s 失败: %w", path, err)
	}
	return &cf, nil
}

// Save 写入凭证文件，只允许所有者读写
func (cf *CredentialFile) Save(path string) error {
	data, err := yaml.Marshal(cf)
	if err != nil {
		return fmt.Errorf("编码凭证文件失败: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("写入凭证文件失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("写入凭证文件失败: %w", err)
	}
	return nil
}
