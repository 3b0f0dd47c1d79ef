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
// cmd/rosterd/main.go

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/webapi/api"
)

// Version 应用程序版本
const Version = "1.0.0"

var (
	opts   options
	logger common.LoggerInterface = common.NewLogger()

	store  *database.Store
	server *api.Server
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand 不带子命令时等同于 start
func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rosterd",
		Short: "Roster RPC server",
		Long: `rosterd 为 dnstool 和其他客户端提供 RPC 接口。
SIGHUP 重新读取日志级别、重新打开日志文件并丢弃缓存的 Core；SIGINT/SIGTERM 停止服务。`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdStart(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", common.ConfigPathFromEnv(), "配置文件路径")
	flags.StringVarP(&opts.lockFile, "pidfile", "p", "", "锁文件路径 (默认取 [server] lock_file)")
	flags.StringVarP(&opts.logDir, "log-dir", "l", "", "日志目录 (默认取 [server] log_dir)")
	flags.BoolVarP(&opts.daemon, "daemon", "d", false, "后台运行模式")
	flags.BoolVar(&opts.logStdout, "log-stdout", false, "日志输出到标准输出")
	flags.BoolVar(&opts.logFile, "log-file", false, "日志输出到文件")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start the server (default)",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return cmdStart(cmd) },
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the running server",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return cmdStop(cmd) },
		},
		&cobra.Command{
			Use:   "restart",
			Short: "Restart the server as a daemon with the saved start arguments",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return cmdRestart(cmd) },
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show whether the server is running",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return cmdStatus(cmd) },
		},
	)
	return rootCmd
}
