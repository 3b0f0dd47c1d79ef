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

// core/common/daemon.go
// rosterd 守护进程与锁文件管理

package common

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// DaemonManager 守护进程管理器。lockFile 即 [server] lock_file，
// 运行中的 rosterd 对其持有排他 flock 并写入自己的 PID
type DaemonManager struct {
	lockFile string
	lock     *os.File
	logger   *Logger
}

// NewDaemonManager 创建新的守护进程管理器
func NewDaemonManager(lockFile string) *DaemonManager {
	return &DaemonManager{
		lockFile: lockFile,
		logger:   NewComponentLogger("daemon"),
	}
}

// StartDaemon 以新会话启动子进程并等待它取得锁文件，子进程通过 ROSTER_DAEMON 识别自己
func (d *DaemonManager) StartDaemon(startArgs []string, timeout time.Duration) error {
	if d.IsRunning() {
		return fmt.Errorf("服务已经在运行中")
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("获取可执行文件路径失败: %v", err)
	}
	args := append([]string{os.Args[0], "start"}, startArgs...)
	env := append(os.Environ(), DaemonEnvKey+"=1")

	process, err := os.StartProcess(executable, args, &os.ProcAttr{
		Dir:   ".",
		Env:   env,
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	})
	if err != nil {
		return fmt.Errorf("启动守护进程失败: %v", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, pid := d.GetStatus(); pid == process.Pid {
			d.logger.Info("守护进程已启动，PID: %d", process.Pid)
			process.Release()
			return nil
		}
		if process.Signal(syscall.Signal(0)) != nil {
			return fmt.Errorf("守护进程启动后退出，请查看日志")
		}
		time.Sleep(100 * time.Millisecond)
	}
	process.Kill()
	return fmt.Errorf("守护进程未能在 %v 内取得锁文件 %s", timeout, d.lockFile)
}

// StopDaemon 发送 SIGTERM 并等待锁释放，超时后强制终止
func (d *DaemonManager) StopDaemon(timeout time.Duration) error {
	status, pid := d.GetStatus()
	if pid <= 0 {
		return fmt.Errorf("服务未运行 (%s)", status)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("找不到进程 %d", pid)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("向进程 %d 发送信号失败: %v", pid, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !d.IsRunning() {
			d.logger.Info("服务已停止，PID: %d", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := process.Kill(); err != nil {
		return fmt.Errorf("终止进程失败: %v", err)
	}
	// 被强制终止的进程不会删除锁文件，flock 随进程退出释放
	os.Remove(d.lockFile)
	d.logger.Warn("服务未在 %v 内退出，已强制终止，PID: %d", timeout, pid)
	return nil
}

// IsRunning 锁文件是否被某个进程持有
func (d *DaemonManager) IsRunning() bool {
	_, pid := d.GetStatus()
	return pid > 0
}

// GetStatus 获取服务状态描述和进程ID，未运行时进程ID为0
func (d *DaemonManager) GetStatus() (string, int) {
	pid, err := d.ReadLockFile()
	if err != nil || pid <= 0 {
		return "未运行", 0
	}
	if d.lock != nil {
		return "运行中", pid
	}

	held, err := lockHeld(d.lockFile)
	if err != nil {
		return fmt.Sprintf("未知 (%v)", err), 0
	}
	if !held {
		return "未运行（锁文件已过期）", 0
	}
	return "运行中", pid
}

// lockHeld 尝试对锁文件加锁，失败说明另一个进程持有
func lockHeld(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == syscall.EWOULDBLOCK {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return false, nil
}

// AcquireLock 对锁文件加排他锁并写入当前进程的 PID，已有进程持有时返回错误
func (d *DaemonManager) AcquireLock() error {
	if d.lock != nil {
		return nil
	}
	dir := filepath.Dir(d.lockFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(d.lockFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("打开锁文件失败: %v", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			pid, _ := d.ReadLockFile()
			return fmt.Errorf("锁文件 %s 已被进程 %d 持有", d.lockFile, pid)
		}
		return fmt.Errorf("锁定 %s 失败: %v", d.lockFile, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		f.Close()
		return err
	}
	d.lock = f
	return nil
}

// ReleaseLock 删除锁文件并释放锁
func (d *DaemonManager) ReleaseLock() {
	if d.lock == nil {
		return
	}
	os.Remove(d.lockFile)
	syscall.Flock(int(d.lock.Fd()), syscall.LOCK_UN)
	d.lock.Close()
	d.lock = nil
}

// ReadLockFile 读取锁文件中的PID，文件不存在或为空时返回0
func (d *DaemonManager) ReadLockFile() (int, error) {
	data, err := os.ReadFile(d.lockFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	return strconv.Atoi(text)
}

// SetupSignalHandlers 收到 SIGINT/SIGTERM 时执行清理并退出，SIGHUP 调用 reload
func (d *DaemonManager) SetupSignalHandlers(cleanup func(), reload func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for sig := range sigChan {
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				d.logger.Info("收到终止信号: %v", sig)
				if cleanup != nil {
					cleanup()
				}
				d.ReleaseLock()
				os.Exit(0)
			case syscall.SIGHUP:
				d.logger.Info("收到重载信号: %v", sig)
				if reload != nil {
					reload()
				}
			}
		}
	}()
}
