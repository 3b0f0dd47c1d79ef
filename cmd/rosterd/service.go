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
// cmd/rosterd/service.go
// 启停命令与服务生命周期

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/webapi/api"
)

const (
	// StartArgsFile 保存在日志目录中的启动参数，restart 使用
	StartArgsFile = "rosterd.startargs"
	// stopTimeout 停止服务时等待进程退出的时间
	stopTimeout = 40 * time.Second
	// startTimeout 等待守护进程取得锁文件的时间
	startTimeout = 10 * time.Second
)

// options 命令行选项，未指定的路径取自配置文件
type options struct {
	configPath string
	lockFile   string
	logDir     string
	daemon     bool
	logStdout  bool
	logFile    bool
}

// logTargets 前台默认输出到标准输出，后台默认写日志文件
func (o options) logTargets() (stdout, file bool) {
	stdout, file = o.logStdout, o.logFile
	if !stdout && !file {
		if o.daemon {
			file = true
		} else {
			stdout = true
		}
	}
	return stdout, file
}

// loadConfig 读取配置并补全锁文件与日志目录
func (o *options) loadConfig() (*common.Config, error) {
	cfg, err := common.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %v", err)
	}
	if o.lockFile == "" {
		o.lockFile = cfg.Get("server", "lock_file")
	}
	if o.logDir == "" {
		o.logDir = cfg.Get("server", "log_dir")
	}
	return cfg, nil
}

// startArgs 守护进程子进程的参数，路径均已解析
func (o options) startArgs() []string {
	args := []string{"-d", "-c", o.configPath, "-p", o.lockFile, "-l", o.logDir}
	if o.logStdout {
		args = append(args, "--log-stdout")
	}
	if o.logFile {
		args = append(args, "--log-file")
	}
	return args
}

func (o options) startArgsPath() string {
	return filepath.Join(o.logDir, StartArgsFile)
}

func (o options) saveStartArgs() error {
	if err := os.MkdirAll(o.logDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(o.startArgsPath(), []byte(strings.Join(o.startArgs(), "\n")+"\n"), 0644)
}

func (o options) loadStartArgs() ([]string, error) {
	data, err := os.ReadFile(o.startArgsPath())
	if err != nil {
		return nil, err
	}
	return strings.Fields(string(data)), nil
}

func cmdStart(cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	daemonManager := common.NewDaemonManager(opts.lockFile)

	// 守护进程模式派生的子进程
	if common.GetEnvBool(common.DaemonEnvKey, false) {
		return runService(cfg, daemonManager)
	}

	if status, pid := daemonManager.GetStatus(); pid > 0 {
		return fmt.Errorf("服务已经在运行中 (状态: %s, PID: %d)", status, pid)
	}
	if opts.daemon {
		if err := daemonManager.StartDaemon(opts.startArgs(), startTimeout); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "守护进程启动成功")
		return nil
	}
	return runService(cfg, daemonManager)
}

func cmdStop(cmd *cobra.Command) error {
	if _, err := opts.loadConfig(); err != nil {
		return err
	}
	daemonManager := common.NewDaemonManager(opts.lockFile)

	status, pid := daemonManager.GetStatus()
	if pid == 0 {
		return fmt.Errorf("服务未运行 (%s)", status)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "正在停止服务 (PID: %d)...\n", pid)
	if err := daemonManager.StopDaemon(stopTimeout); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "服务已停止")
	return nil
}

// cmdRestart 停止后按上次保存的启动参数以守护进程启动，未保存时使用当前参数
func cmdRestart(cmd *cobra.Command) error {
	if _, err := opts.loadConfig(); err != nil {
		return err
	}
	daemonManager := common.NewDaemonManager(opts.lockFile)

	args, err := opts.loadStartArgs()
	if err != nil || len(args) == 0 {
		opts.daemon = true
		args = opts.startArgs()
	}

	if daemonManager.IsRunning() {
		if err := daemonManager.StopDaemon(stopTimeout); err != nil {
			return err
		}
	}
	if err := daemonManager.StartDaemon(args, startTimeout); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "服务重启成功")
	return nil
}

func cmdStatus(cmd *cobra.Command) error {
	if _, err := opts.loadConfig(); err != nil {
		return err
	}
	status, pid := common.NewDaemonManager(opts.lockFile).GetStatus()
	fmt.Fprintf(cmd.OutOrStdout(), "服务状态: %s\n", status)
	if pid > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "进程ID: %d\n", pid)
	}
	return nil
}

// runService 前台和后台共用：取得锁文件、打开数据库、启动 RPC 服务器后阻塞
func runService(cfg *common.Config, daemonManager *common.DaemonManager) error {
	if err := initLogger(cfg); err != nil {
		return fmt.Errorf("初始化日志失败: %v", err)
	}
	if err := daemonManager.AcquireLock(); err != nil {
		return err
	}
	if opts.daemon {
		if err := opts.saveStartArgs(); err != nil {
			logger.Warn("保存启动参数失败: %v", err)
		}
	}

	logger.Info("Roster %s 启动中，配置文件: %s", Version, opts.configPath)
	if overridden := common.EnvOverrides(cfg); len(overridden) > 0 {
		logger.Info("环境变量覆盖的配置项: %s", strings.Join(overridden, ", "))
	}

	var err error
	store, err = database.Open(cfg)
	if err == nil {
		err = store.InitSchema()
	}
	if err == nil {
		server, err = api.NewServer(store, cfg)
	}
	if err == nil {
		err = server.Start()
	}
	if err != nil {
		cleanup()
		daemonManager.ReleaseLock()
		return err
	}

	daemonManager.SetupSignalHandlers(cleanup, reload)
	logger.Info("Roster 服务启动完成，监听地址: %s", server.Addr())
	select {}
}

// initLogger 按 [server] log_* 配置日志输出
func initLogger(cfg *common.Config) error {
	gin.SetMode(gin.ReleaseMode)
	stdout, file := opts.logTargets()
	if !file {
		return nil
	}

	maxSize, err := common.ParseSize(cfg.Get("server", "log_max_size"))
	if err != nil {
		return err
	}
	rotateLogger, err := common.NewRotateLogger(opts.logDir, common.DefaultLogFile,
		maxSize, cfg.GetInt("server", "log_max_files", common.DefaultMaxFiles))
	if err != nil {
		return err
	}
	rotateLogger.SetStdout(stdout)
	rotateLogger.SetCompress(cfg.GetBool("server", "log_compress", false))

	// 所有 Logger 实例与 gin 的访问日志写同一个文件
	common.SetGlobalLogger(rotateLogger)
	gin.DefaultWriter = rotateLogger
	gin.DisableConsoleColor()
	logger = rotateLogger
	return nil
}

// reload 收到 SIGHUP 时更新日志级别、重新打开日志文件并丢弃缓存的 Core
func reload() {
	cfg, err := common.LoadConfigFile(opts.configPath)
	if err != nil {
		logger.Error("重新读取配置失败: %v", err)
		return
	}
	level := common.ParseLogLevel(cfg.Get("server", "log_level"))
	common.SetGlobalLevel(level)
	if rotateLogger, ok := logger.(*common.RotateLogger); ok {
		if err := rotateLogger.Reopen(); err != nil {
			fmt.Fprintf(os.Stderr, "重新打开日志文件失败: %v\n", err)
		}
	}
	if server != nil {
		server.Cores().Reset()
	}
	logger.Info("配置已重新加载，日志级别: %s", level)
}

// cleanup 停止服务器并关闭数据库
func cleanup() {
	logger.Info("正在关闭服务...")
	if server != nil {
		if err := server.Stop(); err != nil {
			logger.Error("停止RPC服务器失败: %v", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("关闭数据库失败: %v", err)
		}
	}
	logger.Info("服务已关闭")

	if rotateLogger, ok := logger.(*common.RotateLogger); ok {
		rotateLogger.Close()
	}
}
