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
// cmd/dnstool/main.go

package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/rpcclient"
)

var version = "1.0.0"

// globalOptions 所有子命令共用的选项
type globalOptions struct {
	configPath string
	serverURL  string
	credFile   string
	format     string
}

var opts globalOptions

func main() {
	// 标准输出只用于命令结果
	common.SetLogOutput(os.Stderr)
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCommand 创建 dnstool 根命令
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dnstool",
		Short: "Roster operator tool",
		Long: `Roster 运维工具。
treeexport、zoneimport、namedimport、servercheck、querycheck 直接访问数据库；
credentials、call、view、zone、record、auditlog 通过 rosterd 的 RPC 接口工作。`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", common.ConfigPathFromEnv(), "配置文件路径")
	flags.StringVarP(&opts.serverURL, "server", "s", "", "rosterd 地址，如 https://roster:8000")
	flags.StringVar(&opts.credFile, "credfile", rpcclient.DefaultCredentialPath(), "凭证文件路径")
	flags.StringVarP(&opts.format, "format", "o", "table", "输出格式 (table, json, yaml)")

	// 本地命令
	rootCmd.AddCommand(NewTreeExportCommand())
	rootCmd.AddCommand(NewZoneImportCommand())
	rootCmd.AddCommand(NewNamedImportCommand())
	rootCmd.AddCommand(NewServerCheckCommand())
	rootCmd.AddCommand(NewQueryCheckCommand())

	// RPC 命令
	rootCmd.AddCommand(NewCredentialsCommand())
	rootCmd.AddCommand(NewCallCommand())
	rootCmd.AddCommand(NewViewCommand())
	rootCmd.AddCommand(NewZoneCommand())
	rootCmd.AddCommand(NewRecordCommand())
	rootCmd.AddCommand(NewAuditLogCommand())

	return rootCmd
}

// loadConfig 读取配置文件，文件不存在时使用默认值
func (o *globalOptions) loadConfig() (*common.Config, error) {
	if _, err := os.Stat(o.configPath); os.IsNotExist(err) {
		return common.NewConfig(), nil
	}
	cfg, err := common.LoadConfigFile(o.configPath)
	if err != nil {
		return nil, err
	}
	common.SetGlobalConfig(cfg)
	return cfg, nil
}

// openStore 打开配置中的数据库并确保表结构存在
func (o *globalOptions) openStore() (*database.Store, *common.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, cfg, nil
}

// output 按 --format 输出结果
func (o *globalOptions) output(cmd *cobra.Command, v interface{}) error {
	format, err := ParseOutputFormat(o.format)
	if err != nil {
		return err
	}
	return NewFormatter(format).Format(v, cmd.OutOrStdout())
}

// serverAddress 依次取 --server、凭证文件中的地址、配置文件中的 [server] host/port
func (o *globalOptions) serverAddress(cf *rpcclient.CredentialFile) (string, error) {
	if o.serverURL != "" {
		return o.serverURL, nil
	}
	if cf.Server != "" {
		return cf.Server, nil
	}
	cfg, err := o.loadConfig()
	if err != nil {
		return "", err
	}
	scheme := "http"
	if cfg.Get("server", "ssl_cert_file") != "" {
		scheme = "https"
	}
	host := net.JoinHostPort(cfg.Get("server", "host"), strconv.Itoa(cfg.GetInt("server", "port", 8000)))
	return scheme + "://" + host, nil
}

// client 使用凭证文件创建 RPC 客户端；服务器续签的凭证写回凭证文件
func (o *globalOptions) client() (*rpcclient.Client, *rpcclient.CredentialFile, error) {
	cf, err := rpcclient.LoadCredentialFile(o.credFile)
	if err != nil {
		return nil, nil, err
	}
	server, err := o.serverAddress(cf)
	if err != nil {
		return nil, nil, err
	}
	cf.Server = server

	c := rpcclient.New(server,
		rpcclient.WithCredential(cf.UserName, cf.Credential),
		rpcclient.OnNewCredential(func(userName, credential string) {
			cf.UserName, cf.Credential = userName, credential
			if err := cf.Save(o.credFile); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}),
	)
	return c, cf, nil
}
