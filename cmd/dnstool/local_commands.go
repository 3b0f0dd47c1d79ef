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
// cmd/dnstool/local_commands.go
// 直接访问数据库的命令

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/dnscore"
	"Roster/core/exporter"
	"Roster/core/importer"
	"Roster/core/servercheck"
)

// commandContext Ctrl-C 取消的上下文
func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// NewTreeExportCommand 导出所有服务器的 BIND 配置树
func NewTreeExportCommand() *cobra.Command {
	var (
		force        bool
		checkServers bool
	)

	cmd := &cobra.Command{
		Use:   "treeexport",
		Short: "Export BIND configuration trees for every DNS server",
		Long: `按服务器组生成 named.conf 和区域文件，写入 root_config_dir 并打包到 backup_dir。
最新的包已对应当前审计ID时跳过，--force 强制导出。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := commandContext(0)
			defer cancel()

			e := exporter.NewExporter(store, cfg)
			if checkServers {
				e.SetServerChecker(servercheck.NewChecker(nil))
			}
			result, err := e.ExportAllBindTrees(ctx, force)
			if err != nil {
				return err
			}
			return opts.output(cmd, result)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "即使审计ID未变也导出")
	cmd.Flags().BoolVar(&checkServers, "check-servers", false, "查询服务器的 BIND 版本和工具写入 .info")
	return cmd
}

// localCore 以指定用户身份在本地数据库上创建 Core
func localCore(ctx context.Context, store *database.Store, userName string) (*dnscore.Core, error) {
	if userName == "" {
		return nil, common.NewError(common.KindInvalidInput, "--user is required")
	}
	return dnscore.NewCore(ctx, store, userName)
}

// NewZoneImportCommand 导入区域文件
func NewZoneImportCommand() *cobra.Command {
	var (
		file     string
		zoneName string
		viewName string
		origin   string
		userName string
	)

	cmd := &cobra.Command{
		Use:   "zoneimport",
		Short: "Import a BIND zone file into an existing zone",
		Long: `解析区域文件并在一个批次中写入记录，SOA 序列号保持文件中的值。
区域必须已经存在于指定视图中。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := commandContext(0)
			defer cancel()

			core, err := localCore(ctx, store, userName)
			if err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("打开区域文件失败: %w", err)
			}
			defer f.Close()

			if origin == "" {
				origin = zoneName
			}
			result, err := importer.NewImporter(core).ImportZoneFile(ctx, f, zoneName, viewName, origin)
			if err != nil {
				return err
			}
			return opts.output(cmd, result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "区域文件")
	cmd.Flags().StringVarP(&zoneName, "zone", "z", "", "区域名")
	cmd.Flags().StringVarP(&viewName, "view", "v", "any", "视图名")
	cmd.Flags().StringVar(&origin, "origin", "", "区域文件的 $ORIGIN (默认为区域名)")
	cmd.Flags().StringVarP(&userName, "user", "u", "", "记录审计日志的用户")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("zone")
	return cmd
}

// NewNamedImportCommand 导入已有的 named.conf
func NewNamedImportCommand() *cobra.Command {
	var (
		file     string
		setName  string
		userName string
	)

	cmd := &cobra.Command{
		Use:   "namedimport",
		Short: "Import views, ACLs, zones and global options from a named.conf",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("读取 named.conf 失败: %w", err)
			}

			store, _, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := commandContext(0)
			defer cancel()

			core, err := localCore(ctx, store, userName)
			if err != nil {
				return err
			}
			result, err := importer.NewImporter(core).ImportNamedConf(ctx, string(content), setName)
			if err != nil {
				return err
			}
			return opts.output(cmd, result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "named.conf 文件")
	cmd.Flags().StringVar(&setName, "set", "", "导入到的服务器组")
	cmd.Flags().StringVarP(&userName, "user", "u", "", "记录审计日志的用户")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("set")
	return cmd
}

// NewServerCheckCommand 检查服务器可达性、BIND 版本和部署工具
func NewServerCheckCommand() *cobra.Command {
	var (
		port    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "servercheck [server...]",
		Short: "Check DNS servers before a tree push",
		Long:  `不指定服务器时检查数据库中的所有服务器；任何一台不可达时以错误退出。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(0)
			defer cancel()

			var servers []database.DnsServer
			if len(args) > 0 {
				for _, name := range args {
					servers = append(servers, database.DnsServer{DnsServerName: name})
				}
			} else {
				store, _, err := opts.openStore()
				if err != nil {
					return err
				}
				err = store.WithTx(ctx, func(tx *database.Tx) error {
					var err error
					servers, err = tx.ListDnsServers(nil)
					return err
				})
				store.Close()
				if err != nil {
					return err
				}
			}
			if len(servers) == 0 {
				return common.NewError(common.KindServerCheckError, "No DNS servers to check")
			}

			checker := servercheck.NewChecker(nil)
			checker.SetPort(port)
			checker.SetTimeout(timeout)
			statuses := checker.CheckServers(ctx, servers)
			if err := opts.output(cmd, statuses); err != nil {
				return err
			}

			unreachable := 0
			for _, st := range statuses {
				if !st.Reachable {
					unreachable++
				}
			}
			if unreachable > 0 {
				return common.NewError(common.KindServerCheckError, "%d of %d servers unreachable", unreachable, len(statuses))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", servercheck.DefaultPort, "DNS 端口")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", servercheck.DefaultQueryTimeout, "单次查询超时")
	return cmd
}

// NewQueryCheckCommand 对比服务器应答与区域文件
func NewQueryCheckCommand() *cobra.Command {
	var (
		server  string
		file    string
		origin  string
		port    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "querycheck",
		Short: "Compare a server's answers with an exported zone file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("打开区域文件失败: %w", err)
			}
			defer f.Close()

			ctx, cancel := commandContext(0)
			defer cancel()

			checker := servercheck.NewChecker(nil)
			checker.SetPort(port)
			checker.SetTimeout(timeout)
			mismatches, err := checker.QueryCheck(ctx, server, f, origin)
			if err != nil {
				return err
			}
			if err := opts.output(cmd, mismatches); err != nil {
				return err
			}
			if len(mismatches) > 0 {
				return common.NewError(common.KindServerCheckError, "%d record sets differ on %s", len(mismatches), server)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "dns-server", "", "要查询的服务器")
	cmd.Flags().StringVarP(&file, "file", "f", "", "区域文件")
	cmd.Flags().StringVar(&origin, "origin", "", "区域的 origin")
	cmd.Flags().StringVarP(&port, "port", "p", servercheck.DefaultPort, "DNS 端口")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", servercheck.DefaultQueryTimeout, "单次查询超时")
	cmd.MarkFlagRequired("dns-server")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("origin")
	return cmd
}
