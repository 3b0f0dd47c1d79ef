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

// core/common/daemon_test.go

package common

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestDaemonLockFile(t *testing.T) {
	lockFile := filepath.Join(t.TempDir(), "run", "rosterd.pid")

	first := NewDaemonManager(lockFile)
	if first.IsRunning() {
		t.Fatalf("锁文件不存在时不应处于运行状态")
	}
	if err := first.AcquireLock(); err != nil {
		t.Fatalf("AcquireLock 失败: %v", err)
	}

	second := NewDaemonManager(lockFile)
	status, pid := second.GetStatus()
	if pid != os.Getpid() {
		t.Errorf("GetStatus() = %s, %d, 期望 PID %d", status, pid, os.Getpid())
	}
	if err := second.AcquireLock(); err == nil {
		t.Errorf("锁已被持有时 AcquireLock 应失败")
	}

	first.ReleaseLock()
	if _, err := os.Stat(lockFile); !os.IsNotExist(err) {
		t.Errorf("ReleaseLock 后锁文件应被删除")
	}
	if second.IsRunning() {
		t.Errorf("锁释放后不应处于运行状态")
	}
	if err := second.AcquireLock(); err != nil {
		t.Errorf("锁释放后应能重新加锁: %v", err)
	}
	second.ReleaseLock()
}

func TestDaemonStaleLockFile(t *testing.T) {
	lockFile := filepath.Join(t.TempDir(), "rosterd.pid")
	if err := os.WriteFile(lockFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		t.Fatalf("写入锁文件失败: %v", err)
	}

	d := NewDaemonManager(lockFile)
	status, pid := d.GetStatus()
	if pid != 0 || status != "未运行（锁文件已过期）" {
		t.Errorf("GetStatus() = %s, %d", status, pid)
	}
	if err := d.StopDaemon(0); err == nil {
		t.Errorf("未运行时 StopDaemon 应失败")
	}
	if err := d.AcquireLock(); err != nil {
		t.Fatalf("过期锁文件应能重新加锁: %v", err)
	}
	d.ReleaseLock()
}
