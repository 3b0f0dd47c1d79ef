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

// core/exporter/tree.go
// 单台服务器的配置树

package exporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"Roster/core/bind/namedconf"
	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/servercheck"
)

// InfoFileName 服务器信息文件名
func InfoFileName(serverName string) string {
	return serverName + ".info"
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not create directory for %s", path)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not write %s", path)
	}
	return nil
}

// writeServerTree 写入 <server>/named.conf、<server>/<named_dir>/<view>/<zone>.db、根提示文件与 .info
func (e *Exporter) writeServerTree(ctx context.Context, dir string, server database.DnsServer, conf string, zones []zoneFile) error {
	serverDir := filepath.Join(dir, server.DnsServerName)
	confPath := filepath.Join(serverDir, "named.conf")
	if err := writeFile(confPath, conf); err != nil {
		return err
	}

	namedDir := filepath.Join(serverDir, e.namedDir)
	for _, z := range zones {
		path := filepath.Join(namedDir, namedconf.ZoneFilePath(z.view, z.zone))
		if err := writeFile(path, z.content); err != nil {
			return err
		}
		if e.zoneChecker != nil {
			if err := e.zoneChecker.CheckZone(ctx, z.origin, path); err != nil {
				return err
			}
		}
	}

	if e.rootHintFile != "" {
		if err := copyFile(e.rootHintFile, filepath.Join(namedDir, "named.ca")); err != nil {
			return err
		}
	}

	if e.validator != nil {
		printed, err := e.validator.PrintConf(ctx, confPath)
		if err != nil {
			return err
		}
		if err := writeFile(confPath+".a", printed); err != nil {
			return err
		}
	}

	return writeFile(filepath.Join(serverDir, InfoFileName(server.DnsServerName)), e.serverInfo(ctx, server))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not open root hint file %s", src)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not create directory for %s", dst)
	}
	out, err := os.Create(dst)
	if err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return common.WrapError(common.KindExporterFileError, err, "Could not copy %s", src)
	}
	if err := out.Close(); err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not close %s", dst)
	}
	return nil
}

// serverInfo 生成 .info 文件，部署工具据此连接服务器
func (e *Exporter) serverInfo(ctx context.Context, server database.DnsServer) string {
	version := servercheck.UnknownVersion
	tools := make(map[string]bool, len(servercheck.Tools))
	if e.checker != nil {
		status, err := e.checker.CheckServer(ctx, server)
		if err != nil {
			e.logger.Warn("检查服务器 %s 失败，.info 使用默认值: %v", server.DnsServerName, err)
		} else {
			version = status.BindVersion
			tools = status.Tools
		}
	}

	var sb strings.Builder
	sb.WriteString("[server_info]\n")
	fmt.Fprintf(&sb, "server_name = %s\n", server.DnsServerName)
	fmt.Fprintf(&sb, "server_user = %s\n", server.SSHUser)
	fmt.Fprintf(&sb, "ssh_host = %s@%s:22\n", server.SSHUser, server.DnsServerName)
	fmt.Fprintf(&sb, "bind_dir = %s\n", server.BindDir)
	fmt.Fprintf(&sb, "test_dir = %s\n", server.TestDir)
	fmt.Fprintf(&sb, "bind_version = %s\n", version)
	sb.WriteString("\n[tools]\n")
	for _, tool := range servercheck.Tools {
		fmt.Fprintf(&sb, "%s = %s\n", tool, strconv.FormatBool(tools[tool]))
	}
	return sb.String()
}
