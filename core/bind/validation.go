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

// core/bind/validation.go
// 区域文件验证

package bind

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"Roster/core/common"
)

// DefaultCheckZoneCommand 未配置时使用的命令
const DefaultCheckZoneCommand = "named-checkzone"

// ZoneChecker 调用 named-checkzone 验证生成的区域文件
type ZoneChecker struct {
	command string
	timeout time.Duration
	logger  *common.Logger
}

// NewZoneChecker 创建验证器，command 为空时使用 named-checkzone
func NewZoneChecker(command string) *ZoneChecker {
	if command == "" {
		command = DefaultCheckZoneCommand
	}
	return &ZoneChecker{
		command: command,
		timeout: 10 * time.Second,
		logger:  common.NewComponentLogger("validation"),
	}
}

// Command 返回配置的命令
func (zc *ZoneChecker) Command() string {
	return zc.command
}

// buildCommand 包含空格时作为 shell 命令执行并替换 $DOMAIN、$ZONE_FILE，否则直接执行
func (zc *ZoneChecker) buildCommand(ctx context.Context, origin, zoneFile string) *exec.Cmd {
	domain := strings.TrimSuffix(origin, ".")
	if strings.Contains(zc.command, " ") {
		cmdStr := zc.command
		cmdStr = strings.ReplaceAll(cmdStr, "${DOMAIN}", domain)
		cmdStr = strings.ReplaceAll(cmdStr, "$DOMAIN", domain)
		cmdStr = strings.ReplaceAll(cmdStr, "${ZONE_FILE}", zoneFile)
		cmdStr = strings.ReplaceAll(cmdStr, "$ZONE_FILE", zoneFile)
		zc.logger.Debug("执行命令: /bin/sh -c %s", cmdStr)
		return exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
	}
	zc.logger.Debug("执行命令: %s %s %s", zc.command, domain, zoneFile)
	return exec.CommandContext(ctx, zc.command, domain, zoneFile)
}

// CheckZone 验证区域文件
func (zc *ZoneChecker) CheckZone(ctx context.Context, origin, zoneFile string) error {
	ctx, cancel := context.WithTimeout(ctx, zc.timeout)
	defer cancel()

	output, err := zc.buildCommand(ctx, origin, zoneFile).CombinedOutput()
	if err != nil {
		zc.logger.Error("执行named-checkzone命令失败: %v, 输出: %s", err, string(output))
		return common.NewError(common.KindExporterFileError,
			"Zone file %s failed validation: %s", zoneFile, strings.TrimSpace(string(output)))
	}
	return nil
}
