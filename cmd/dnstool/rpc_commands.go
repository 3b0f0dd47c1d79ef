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
// cmd/dnstool/rpc_commands.go
// 通过 rosterd RPC 接口工作的命令

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"Roster/core/common"
)

const rpcTimeout = 5 * time.Minute

// runRPC 调用 Core 方法并输出结果
func runRPC(cmd *cobra.Command, function string, args []interface{}, kwargs map[string]interface{}) error {
	c, _, err := opts.client()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(rpcTimeout)
	defer cancel()

	var result interface{}
	if err := c.CoreRunArgs(ctx, function, args, kwargs, &result); err != nil {
		return err
	}
	return opts.output(cmd, result)
}

// readPassword 从输入读取一行密码
func readPassword(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// NewCredentialsCommand 获取凭证并保存到凭证文件
func NewCredentialsCommand() *cobra.Command {
	var (
		userName string
		password string
		infinite bool
		check    bool
	)

	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Get a credential from rosterd and store it in the credential file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cf, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(rpcTimeout)
			defer cancel()

			if check {
				ok, err := c.IsAuthenticated(ctx)
				if err != nil {
					return err
				}
				return opts.output(cmd, map[string]interface{}{"user_name": cf.UserName, "authenticated": ok})
			}

			if userName == "" {
				return common.NewError(common.KindInvalidInput, "--user is required")
			}
			if password == "" {
				if password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			// 回调已把新凭证写入凭证文件
			if _, err := c.GetCredentials(ctx, userName, password, infinite); err != nil {
				return err
			}
			return opts.output(cmd, map[string]interface{}{"user_name": userName, "server": cf.Server, "credfile": opts.credFile})
		},
	}

	cmd.Flags().StringVarP(&userName, "user", "u", "", "用户名")
	cmd.Flags().StringVarP(&password, "password", "p", "", "密码 (不指定时从标准输入读取)")
	cmd.Flags().BoolVar(&infinite, "infinite", false, "申请不过期的凭证")
	cmd.Flags().BoolVar(&check, "check", false, "只检查已保存的凭证是否有效")
	return cmd
}

// parseArgValue 能解析为 JSON 的参数按 JSON 传递，否则作为字符串
func parseArgValue(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// parseKeyValues 解析 key=value 列表
func parseKeyValues(pairs []string) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, common.NewError(common.KindInvalidInput, "Expected key=value, got %q", pair)
		}
		result[key] = value
	}
	return result, nil
}

// NewCallCommand 调用任意 Core 方法
func NewCallCommand() *cobra.Command {
	var kwargsJSON string

	cmd := &cobra.Command{
		Use:   "call FUNCTION [ARG...]",
		Short: "Call any Core method through core_run",
		Long: `位置参数能解析为 JSON 时按 JSON 传递，否则作为字符串。
例: dnstool call ListRecords --kwargs '{"zone_name":"example.com","record_type":"A"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kwargs map[string]interface{}
			if kwargsJSON != "" {
				if err := json.Unmarshal([]byte(kwargsJSON), &kwargs); err != nil {
					return common.WrapError(common.KindInvalidInput, err, "--kwargs is not a JSON object")
				}
			}
			positional := make([]interface{}, 0, len(args)-1)
			for _, a := range args[1:] {
				positional = append(positional, parseArgValue(a))
			}
			return runRPC(cmd, args[0], positional, kwargs)
		},
	}

	cmd.Flags().StringVar(&kwargsJSON, "kwargs", "", "关键字参数 (JSON 对象)")
	return cmd
}

// NewViewCommand 视图管理
func NewViewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Manage views",
	}

	var options string
	makeCmd := &cobra.Command{
		Use:   "make VIEW",
		Short: "Create a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRPC(cmd, "MakeView", nil, map[string]interface{}{"view_name": args[0], "view_options": options})
		},
	}
	makeCmd.Flags().StringVar(&options, "options", "", "视图选项")

	removeCmd := &cobra.Command{
		Use:   "remove VIEW",
		Short: "Remove a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRPC(cmd, "RemoveView", nil, map[string]interface{}{"view_name": args[0]})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list [VIEW]",
		Short: "List views",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kwargs := map[string]interface{}{}
			if len(args) == 1 {
				kwargs["view_name"] = args[0]
			}
			return runRPC(cmd, "ListViews", nil, kwargs)
		},
	}

	cmd.AddCommand(makeCmd, removeCmd, listCmd)
	return cmd
}

// NewZoneCommand 区域管理
func NewZoneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zone",
		Short: "Manage zones",
	}

	var (
		zoneType string
		origin   string
		viewName string
		options  string
		noSOA    bool
	)
	makeCmd := &cobra.Command{
		Use:   "make ZONE",
		Short: "Create a zone in a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if origin == "" {
				origin = args[0]
			}
			return runRPC(cmd, "MakeZone", nil, map[string]interface{}{
				"zone_name":    args[0],
				"zone_type":    zoneType,
				"zone_origin":  origin,
				"view_name":    viewName,
				"zone_options": options,
				"make_soa":     !noSOA,
			})
		},
	}
	makeCmd.Flags().StringVarP(&zoneType, "type", "t", "master", "区域类型")
	makeCmd.Flags().StringVar(&origin, "origin", "", "区域 origin (默认为区域名)")
	makeCmd.Flags().StringVarP(&viewName, "view", "v", "any", "视图名")
	makeCmd.Flags().StringVar(&options, "options", "", "区域选项")
	makeCmd.Flags().BoolVar(&noSOA, "no-soa", false, "不生成占位 SOA")

	var removeView string
	removeCmd := &cobra.Command{
		Use:   "remove ZONE",
		Short: "Remove a zone from a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRPC(cmd, "RemoveZone", nil, map[string]interface{}{"zone_name": args[0], "view_name": removeView})
		},
	}
	removeCmd.Flags().StringVarP(&removeView, "view", "v", "", "视图名 (为空时删除所有视图中的实例)")

	var listView string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List zones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRPC(cmd, "ListZones", nil, map[string]interface{}{"view_name": listView})
		},
	}
	listCmd.Flags().StringVarP(&listView, "view", "v", "", "视图名")

	cmd.AddCommand(makeCmd, removeCmd, listCmd)
	return cmd
}

// recordFlags 记录命令共用的选项
type recordFlags struct {
	zoneName string
	viewName string
	ttl      int
	args     []string
}

func (rf *recordFlags) register(cmd *cobra.Command, defaultView string) {
	cmd.Flags().StringVarP(&rf.zoneName, "zone", "z", "", "区域名")
	cmd.Flags().StringVarP(&rf.viewName, "view", "v", defaultView, "视图名")
	cmd.Flags().IntVar(&rf.ttl, "ttl", 0, "TTL (0 表示使用默认值)")
	cmd.Flags().StringArrayVarP(&rf.args, "arg", "a", nil, "记录参数 key=value，可重复")
}

func (rf *recordFlags) kwargs(recordType, target string) (map[string]interface{}, error) {
	recordArgs, err := parseKeyValues(rf.args)
	if err != nil {
		return nil, err
	}
	kwargs := map[string]interface{}{
		"record_type":      strings.ToLower(recordType),
		"target":           target,
		"zone_name":        rf.zoneName,
		"view_name":        rf.viewName,
		"record_args_dict": recordArgs,
	}
	if rf.ttl > 0 {
		kwargs["ttl"] = rf.ttl
	}
	return kwargs, nil
}

// NewRecordCommand 记录管理
func NewRecordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Manage records",
		Long: `记录参数用 --arg 指定，例:
  dnstool record make a www --zone example.com --arg assignment_ip=192.0.2.10
  dnstool record make mx @ --zone example.com --arg priority=10 --arg mail_server=mail.example.com.`,
	}

	var makeFlags recordFlags
	makeCmd := &cobra.Command{
		Use:   "make TYPE TARGET",
		Short: "Create a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kwargs, err := makeFlags.kwargs(args[0], args[1])
			if err != nil {
				return err
			}
			return runRPC(cmd, "MakeRecord", nil, kwargs)
		},
	}
	makeFlags.register(makeCmd, "any")

	var removeFlags recordFlags
	removeCmd := &cobra.Command{
		Use:   "remove TYPE TARGET",
		Short: "Remove a record that matches exactly",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kwargs, err := removeFlags.kwargs(args[0], args[1])
			if err != nil {
				return err
			}
			return runRPC(cmd, "RemoveRecord", nil, kwargs)
		},
	}
	removeFlags.register(removeCmd, "any")

	var (
		listFlags recordFlags
		listType  string
		target    string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kwargs, err := listFlags.kwargs(listType, target)
			if err != nil {
				return err
			}
			if len(listFlags.args) == 0 {
				delete(kwargs, "record_args_dict")
			}
			return runRPC(cmd, "ListRecords", nil, kwargs)
		},
	}
	listFlags.register(listCmd, "")
	listCmd.Flags().StringVarP(&listType, "type", "t", "", "记录类型")
	listCmd.Flags().StringVar(&target, "target", "", "记录名")

	cmd.AddCommand(makeCmd, removeCmd, listCmd)
	return cmd
}

// parseTimestamp 接受 RFC3339 或 2006-01-02
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, common.NewError(common.KindInvalidInput, "Invalid timestamp %q, use RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

// NewAuditLogCommand 查询审计日志
func NewAuditLogCommand() *cobra.Command {
	var (
		userName string
		action   string
		success  string
		begin    string
		end      string
	)

	cmd := &cobra.Command{
		Use:   "auditlog",
		Short: "Search the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kwargs := map[string]interface{}{
				"user_name": userName,
				"action":    action,
			}
			if success != "" {
				b, err := strconv.ParseBool(success)
				if err != nil {
					return common.NewError(common.KindInvalidInput, "--success must be true or false")
				}
				kwargs["success"] = b
			}
			for key, value := range map[string]string{"begin_timestamp": begin, "end_timestamp": end} {
				if value == "" {
					continue
				}
				t, err := parseTimestamp(value)
				if err != nil {
					return err
				}
				kwargs[key] = t
			}
			return runRPC(cmd, "ListAuditLog", nil, kwargs)
		},
	}

	cmd.Flags().StringVarP(&userName, "user", "u", "", "用户名")
	cmd.Flags().StringVar(&action, "action", "", "方法名")
	cmd.Flags().StringVar(&success, "success", "", "true 或 false")
	cmd.Flags().StringVar(&begin, "begin", "", "开始时间")
	cmd.Flags().StringVar(&end, "end", "", "结束时间")
	return cmd
}
