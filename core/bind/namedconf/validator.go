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

// core/bind/namedconf/validator.go
// named.conf 文件验证模块

package namedconf

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"Roster/core/common"
)

// CheckGlobalOptions 保存全局选项前检查括号配对和语法
func CheckGlobalOptions(options string) error {
	left, right := countUnquotedBraces(options)
	if left != right {
		return common.NewError(common.KindUnexpectedData,
			"Global options have unbalanced braces: %d opening, %d closing", left, right)
	}
	if _, err := ParseContent(options); err != nil {
		return common.NewError(common.KindUnexpectedData, "Global options could not be parsed: %v", err)
	}
	return nil
}

// Validator 调用 named-checkconf 验证配置
type Validator struct {
	namedCheckConfPath string
	timeout            time.Duration
	logger             *common.Logger
}

// NewValidator 创建新的验证器实例，路径为空时使用 named-checkconf
func NewValidator(namedCheckConfPath string) *Validator {
	if namedCheckConfPath == "" {
		namedCheckConfPath = "named-checkconf"
	}
	return &Validator{
		namedCheckConfPath: namedCheckConfPath,
		timeout:            5 * time.Second,
		logger:             common.NewComponentLogger("namedconf"),
	}
}

// PrintConf 用 named-checkconf -p 输出展开后的配置，作为导出前的预检产物
func (v *Validator) PrintConf(ctx context.Context, filePath string) (string, error) {
	output, err := v.run(ctx, "-p", filePath)
	if err != nil {
		v.logger.Error("named-checkconf -p 执行失败: %v, 输出: %s", err, output)
		return "", common.NewError(common.KindExporterFileError,
			"named-checkconf rejected %s: %s", filePath, strings.TrimSpace(output))
	}
	return output, nil
}

func (v *Validator) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	v.logger.Debug("执行命令: %s %s", v.namedCheckConfPath, strings.Join(args, " "))
	output, err := exec.CommandContext(ctx, v.namedCheckConfPath, args...).CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(output), fmt.Errorf("配置验证超时（%s）", v.timeout)
	}
	return string(output), err
}
