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
// core/database/store_test.go
// 记录库事务、锁与快照测试

package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"Roster/core/common"
	"Roster/core/record"
)

// setupTestStore 创建测试用的内存数据库
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := common.NewConfig()
	cfg.Set("database", "driver", "sqlite")
	cfg.Set("database", "database", ":memory:")

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("创建测试数据库失败: %v", err)
	}
	if err := store.InitSchema(); err != nil {
		t.Fatalf("初始化数据库失败: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// beginTestTx 开启事务，测试结束时未完成的事务自动回滚
func beginTestTx(t *testing.T, store *Store) *Tx {
	t.Helper()
	tx, err := store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("开启事务失败: %v", err)
	}
	t.Cleanup(func() {
		if !tx.done {
			tx.Rollback()
		}
	})
	return tx
}

// TestInitSchemaSeeds 测试种子数据
func TestInitSchemaSeeds(t *testing.T) {
	store := setupTestStore(t)
	// 重复初始化不应报错
	if err := store.InitSchema(); err != nil {
		t.Fatalf("重复初始化失败: %v", err)
	}

	tx := beginTestTx(t, store)

	zoneTypes, err := tx.ListRow("zone_types", nil, false)
	if err != nil {
		t.Fatalf("查询区域类型失败: %v", err)
	}
	if len(zoneTypes) != len(record.ZoneTypes) {
		t.Errorf("区域类型数量 = %d, want %d", len(zoneTypes), len(record.ZoneTypes))
	}

	args, err := tx.ListRecordArguments(Row{"record_type": "soa"})
	if err != nil {
		t.Fatalf("查询记录参数定义失败: %v", err)
	}
	want := []string{"name_server", "admin_email", "serial_number", "refresh_seconds", "retry_seconds", "expiry_seconds", "minimum_seconds"}
	if len(args) != len(want) {
		t.Fatalf("soa 参数数量 = %d, want %d", len(args), len(want))
	}
	for i, arg := range args {
		if arg.ArgumentName != want[i] {
			t.Errorf("soa 第%d个参数 = %s, want %s", i, arg.ArgumentName, want[i])
		}
	}

	user, err := tx.GetUser(TreeExportUser)
	if err != nil {
		t.Fatalf("种子用户不存在: %v", err)
	}
	if user.AccessLevel != record.AccessNoop {
		t.Errorf("种子用户访问级别 = %d, want 0", user.AccessLevel)
	}

	deps, err := tx.ListRow("view_dependencies", Row{"view_dependency": AnyDependency}, false)
	if err != nil || len(deps) != 1 {
		t.Errorf("缺少 any 视图依赖: %v", err)
	}
}

// TestRowValidation 测试行接口的校验
func TestRowValidation(t *testing.T) {
	store := setupTestStore(t)
	tx := beginTestTx(t, store)

	tests := []struct {
		name  string
		table string
		row   Row
		want  error
	}{
		{"不存在的表", "no_such_table", Row{"x": "y"}, common.ErrInvalidInput},
		{"不存在的列", "views", Row{"view_name": "v", "view_color": "red"}, common.ErrInvalidInput},
		{"缺少必填列", "zone_view_assignments", Row{"zone_name": "z"}, common.ErrInvalidInput},
		{"数据类型错误", "acl_ranges", Row{"acl_name": "a", "cidr_block": "not-a-cidr", "range_allowed": true}, common.ErrUnexpectedData},
		{"布尔类型错误", "acl_ranges", Row{"acl_name": "a", "cidr_block": "10.0.0.0/8", "range_allowed": "yes"}, common.ErrUnexpectedData},
		{"保留字", "views", Row{"view_name": "any"}, common.ErrReservedWord},
		{"保留字大小写", "acls", Row{"acl_name": "LocalHost"}, common.ErrReservedWord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tx.MakeRow(tt.table, tt.row)
			if !errors.Is(err, tt.want) {
				t.Errorf("MakeRow(%s) error = %v, want %v", tt.table, err, tt.want)
			}
		})
	}
}

// TestRowCRUD 测试行的增删改查
func TestRowCRUD(t *testing.T) {
	store := setupTestStore(t)
	tx := beginTestTx(t, store)

	if _, err := tx.MakeRow("views", Row{"view_name": "test_view", "view_options": "recursion no;"}); err != nil {
		t.Fatalf("新建视图失败: %v", err)
	}
	if _, err := tx.MakeRow("views", Row{"view_name": "test_view"}); !errors.Is(err, common.ErrCore) {
		t.Errorf("重复视图应返回 CoreError, got %v", err)
	}

	rows, err := tx.ListRow("views", Row{"view_name": nil}, false)
	if err != nil {
		t.Fatalf("查询视图失败: %v", err)
	}
	if len(rows) != 1 || rows[0].String("view_options") != "recursion no;" {
		t.Fatalf("视图列表 = %v", rows)
	}

	updated, err := tx.UpdateRow("views", Row{"view_name": "test_view"}, Row{"view_options": ""})
	if err != nil || updated != 1 {
		t.Fatalf("更新视图 = %d, %v", updated, err)
	}

	if _, err := tx.UpdateRow("views", Row{}, Row{"view_options": "x"}); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("无条件更新应返回 InvalidInput, got %v", err)
	}
	if _, err := tx.RemoveRow("views", Row{"view_name": nil}); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("无条件删除应返回 InvalidInput, got %v", err)
	}

	id, err := tx.MakeRow("acls", Row{"acl_name": "secret"})
	if err != nil {
		t.Fatalf("新建 ACL 失败: %v", err)
	}
	if id != 0 {
		t.Errorf("无自增列的表应返回 0, got %d", id)
	}
	rangeID, err := tx.MakeRow("acl_ranges", Row{"acl_name": "secret", "cidr_block": "10.10/16", "range_allowed": false})
	if err != nil {
		t.Fatalf("新建 ACL 地址段失败: %v", err)
	}
	if rangeID == 0 {
		t.Errorf("自增ID不应为 0")
	}

	removed, err := tx.RemoveRow("views", Row{"view_name": "test_view"})
	if err != nil || removed != 1 {
		t.Errorf("删除视图 = %d, %v", removed, err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("提交事务失败: %v", err)
	}
}

// TestTransactionMisuse 测试事务误用
func TestTransactionMisuse(t *testing.T) {
	store := setupTestStore(t)

	tx := beginTestTx(t, store)
	if err := tx.LockAll(); err != nil {
		t.Fatalf("LockAll 失败: %v", err)
	}
	if err := tx.LockAll(); !errors.Is(err, common.ErrTransaction) {
		t.Errorf("重复 LockAll 应返回 Transaction, got %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("提交事务失败: %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, common.ErrTransaction) {
		t.Errorf("重复提交应返回 Transaction, got %v", err)
	}
	if err := tx.Rollback(); !errors.Is(err, common.ErrTransaction) {
		t.Errorf("提交后回滚应返回 Transaction, got %v", err)
	}
	if _, err := tx.ListRow("views", nil, false); !errors.Is(err, common.ErrTransaction) {
		t.Errorf("已结束事务查询应返回 Transaction, got %v", err)
	}

	// 提交后整库锁已释放
	next := beginTestTx(t, store)
	var lock Lock
	if err := next.db.Where("lock_name = ?", BigLockName).First(&lock).Error; err != nil {
		t.Fatalf("读取锁失败: %v", err)
	}
	if lock.Locked {
		t.Errorf("提交后整库锁应已释放")
	}
}

// TestRollbackDiscards 测试回滚
func TestRollbackDiscards(t *testing.T) {
	store := setupTestStore(t)

	tx := beginTestTx(t, store)
	if _, err := tx.MakeRow("zones", Row{"zone_name": "rolled_back"}); err != nil {
		t.Fatalf("新建区域失败: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("回滚失败: %v", err)
	}

	check := beginTestTx(t, store)
	exists, err := check.ZoneExists("rolled_back")
	if err != nil {
		t.Fatalf("查询区域失败: %v", err)
	}
	if exists {
		t.Errorf("回滚后区域不应存在")
	}
}

// TestTicketQueueOrder 测试事务按到达顺序执行
func TestTicketQueueOrder(t *testing.T) {
	q := newTicketQueue()

	first := q.wait()
	var mu sync.Mutex
	var order []uint64
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket := q.wait()
			mu.Lock()
			order = append(order, ticket)
			mu.Unlock()
			q.done()
		}()
	}

	// 等待所有 goroutine 领到票号
	deadline := time.Now().Add(2 * time.Second)
	for {
		q.mu.Lock()
		issued := q.next
		q.mu.Unlock()
		if issued == 6 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	if len(order) != 0 {
		t.Errorf("第一个票号未结束时不应有其他票号执行")
	}
	mu.Unlock()

	if first != 0 {
		t.Errorf("第一个票号 = %d, want 0", first)
	}
	q.done()
	wg.Wait()

	for i, ticket := range order {
		if ticket != uint64(i+1) {
			t.Errorf("执行顺序 = %v, 应按票号递增", order)
			break
		}
	}
}

// TestStaleBigLock 测试失效的整库锁会被忽略
func TestStaleBigLock(t *testing.T) {
	store := setupTestStore(t)
	store.bigLockTimeout = time.Minute

	stale := store.Now().Add(-time.Hour)
	if err := store.db.Model(&Lock{}).Where("lock_name = ?", BigLockName).
		Updates(map[string]interface{}{"locked": true, "lock_last_updated": stale}).Error; err != nil {
		t.Fatalf("设置锁失败: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		tx, err := store.BeginTx(context.Background())
		if err != nil {
			done <- err
			return
		}
		if err := tx.LockAll(); err != nil {
			tx.Rollback()
			done <- err
			return
		}
		done <- tx.Commit()
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("获取失效锁失败: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("等待失效锁超时")
	}
}

// TestMaintenanceFlag 测试维护模式标志
func TestMaintenanceFlag(t *testing.T) {
	store := setupTestStore(t)
	tx := beginTestTx(t, store)

	on, err := tx.CheckMaintenanceFlag()
	if err != nil || on {
		t.Fatalf("初始维护标志 = %v, %v", on, err)
	}
	if err := tx.SetMaintenanceFlag(true); err != nil {
		t.Fatalf("设置维护标志失败: %v", err)
	}
	on, err = tx.CheckMaintenanceFlag()
	if err != nil || !on {
		t.Errorf("维护标志 = %v, %v, want true", on, err)
	}
}

// TestAuditLog 测试审计日志
func TestAuditLog(t *testing.T) {
	store := setupTestStore(t)
	tx := beginTestTx(t, store)

	maxID, err := tx.MaxAuditID()
	if err != nil || maxID != 0 {
		t.Fatalf("空日志最大ID = %d, %v", maxID, err)
	}

	var last uint64
	for i, action := range []string{"MakeView", "MakeZone", "MakeRecord"} {
		id, err := tx.LogAction("admin", action, map[string]interface{}{"n": i}, i != 1)
		if err != nil {
			t.Fatalf("写入审计日志失败: %v", err)
		}
		if id <= last {
			t.Errorf("审计ID应递增: %d <= %d", id, last)
		}
		last = id
	}

	maxID, err = tx.MaxAuditID()
	if err != nil || maxID != last {
		t.Errorf("最大ID = %d, %v, want %d", maxID, err, last)
	}

	failed := false
	entries, err := tx.ListAuditLog(AuditFilter{Success: &failed})
	if err != nil {
		t.Fatalf("查询审计日志失败: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "MakeZone" {
		t.Errorf("失败日志 = %+v", entries)
	}
}

// TestGetRawData 测试快照
func TestGetRawData(t *testing.T) {
	store := setupTestStore(t)
	tx := beginTestTx(t, store)

	rows := []struct {
		table string
		row   Row
	}{
		{"views", Row{"view_name": "internal"}},
		{"view_dependencies", Row{"view_dependency": "internal_dep"}},
		{"view_dependency_assignments", Row{"view_name": "internal", "view_dependency": "internal_dep"}},
		{"zones", Row{"zone_name": "university.edu"}},
		{"zone_view_assignments", Row{"zone_name": "university.edu", "view_dependency": "internal_dep", "zone_type": "master", "zone_origin": "university.edu."}},
	}
	for _, r := range rows {
		if _, err := tx.MakeRow(r.table, r.row); err != nil {
			t.Fatalf("新建%s失败: %v", r.table, err)
		}
	}
	if _, err := tx.MakeRecordWithArguments(Record{
		Target: "host1", RecordType: "a", TTL: 3600, ZoneName: "university.edu", ViewDependency: "internal_dep",
	}, map[string]string{"assignment_ip": "192.168.1.1"}); err != nil {
		t.Fatalf("新建记录失败: %v", err)
	}
	auditID, err := tx.LogAction("admin", "MakeRecord", nil, true)
	if err != nil {
		t.Fatalf("写入审计日志失败: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("提交事务失败: %v", err)
	}

	raw, err := store.GetRawData(context.Background())
	if err != nil {
		t.Fatalf("读取快照失败: %v", err)
	}
	if raw.AuditID != auditID {
		t.Errorf("快照审计ID = %d, want %d", raw.AuditID, auditID)
	}
	if len(raw.Records) != 1 || raw.Records[0].Arguments["assignment_ip"] != "192.168.1.1" {
		t.Errorf("快照记录 = %+v", raw.Records)
	}
	if len(raw.ZoneViewAssignments) != 1 || len(raw.Views) != 1 {
		t.Errorf("快照区域/视图数量错误: %d/%d", len(raw.ZoneViewAssignments), len(raw.Views))
	}
	if len(raw.RecordArguments) == 0 {
		t.Errorf("快照缺少记录参数定义")
	}
}

// TestForeignKeyCascade 测试外键方向：删除父行级联删除子行，删除子行不影响父行
func TestForeignKeyCascade(t *testing.T) {
	store := setupTestStore(t)
	tx := beginTestTx(t, store)

	count := func(table string, filter Row) int {
		t.Helper()
		rows, err := tx.ListRow(table, filter, false)
		if err != nil {
			t.Fatalf("查询%s失败: %v", table, err)
		}
		return len(rows)
	}
	makeRecord := func(target string) uint64 {
		t.Helper()
		id, err := tx.MakeRecordWithArguments(Record{
			Target: target, RecordType: "a", TTL: 3600, ZoneName: "university.edu", ViewDependency: "internal_dep",
		}, map[string]string{"assignment_ip": "192.168.1.1"})
		if err != nil {
			t.Fatalf("新建记录失败: %v", err)
		}
		return id
	}

	rows := []struct {
		table string
		row   Row
	}{
		{"views", Row{"view_name": "internal"}},
		{"view_dependencies", Row{"view_dependency": "internal_dep"}},
		{"view_dependency_assignments", Row{"view_name": "internal", "view_dependency": "internal_dep"}},
		{"zones", Row{"zone_name": "university.edu"}},
		{"zone_view_assignments", Row{"zone_name": "university.edu", "view_dependency": "internal_dep", "zone_type": "master", "zone_origin": "university.edu."}},
		{"acls", Row{"acl_name": "campus"}},
		{"acl_ranges", Row{"acl_name": "campus", "cidr_block": "10.0.0.0/8", "range_allowed": true}},
		{"acl_ranges", Row{"acl_name": "campus", "cidr_block": "192.168.0.0/16", "range_allowed": false}},
	}
	for _, r := range rows {
		if _, err := tx.MakeRow(r.table, r.row); err != nil {
			t.Fatalf("新建%s失败: %v", r.table, err)
		}
	}

	t.Run("子表引用不存在的父行", func(t *testing.T) {
		_, err := tx.MakeRow("acl_ranges", Row{"acl_name": "missing", "cidr_block": "10.0.0.0/8", "range_allowed": true})
		if !errors.Is(err, common.ErrCore) {
			t.Errorf("期望 CoreError, got %v", err)
		}
	})

	t.Run("删除记录保留区域", func(t *testing.T) {
		id := makeRecord("host1")
		if err := tx.RemoveRecordByID(id); err != nil {
			t.Fatalf("删除记录失败: %v", err)
		}
		if n := count("zones", Row{"zone_name": "university.edu"}); n != 1 {
			t.Errorf("区域数量 = %d, want 1", n)
		}
		if n := count("zone_view_assignments", Row{"zone_name": "university.edu"}); n != 1 {
			t.Errorf("区域实例数量 = %d, want 1", n)
		}
	})

	t.Run("删除区域级联删除记录", func(t *testing.T) {
		id := makeRecord("host2")
		removed, err := tx.RemoveRow("zones", Row{"zone_name": "university.edu"})
		if err != nil || removed != 1 {
			t.Fatalf("删除区域 = %d, %v", removed, err)
		}
		if n := count("records", Row{"zone_name": "university.edu"}); n != 0 {
			t.Errorf("记录数量 = %d, want 0", n)
		}
		if n := count("record_arguments_records_assignments", Row{"record_id": id}); n != 0 {
			t.Errorf("记录参数数量 = %d, want 0", n)
		}
		if n := count("zone_view_assignments", Row{"zone_name": "university.edu"}); n != 0 {
			t.Errorf("区域实例数量 = %d, want 0", n)
		}
		if n := count("view_dependencies", Row{"view_dependency": "internal_dep"}); n != 1 {
			t.Errorf("视图依赖不应被删除")
		}
	})

	t.Run("删除ACL级联删除地址段", func(t *testing.T) {
		if n := count("acl_ranges", Row{"acl_name": "campus"}); n != 2 {
			t.Fatalf("地址段数量 = %d, want 2", n)
		}
		if _, err := tx.RemoveRow("acl_ranges", Row{"acl_name": "campus", "cidr_block": "10.0.0.0/8"}); err != nil {
			t.Fatalf("删除地址段失败: %v", err)
		}
		if n := count("acls", Row{"acl_name": "campus"}); n != 1 {
			t.Errorf("删除地址段不应删除 ACL")
		}
		if _, err := tx.RemoveRow("acls", Row{"acl_name": "campus"}); err != nil {
			t.Fatalf("删除 ACL 失败: %v", err)
		}
		if n := count("acl_ranges", Row{"acl_name": "campus"}); n != 0 {
			t.Errorf("地址段数量 = %d, want 0", n)
		}
	})

	t.Run("删除视图依赖级联删除关联", func(t *testing.T) {
		if _, err := tx.RemoveRow("view_dependencies", Row{"view_dependency": "internal_dep"}); err != nil {
			t.Fatalf("删除视图依赖失败: %v", err)
		}
		if n := count("view_dependency_assignments", Row{"view_dependency": "internal_dep"}); n != 0 {
			t.Errorf("视图依赖关联数量 = %d, want 0", n)
		}
		if n := count("views", Row{"view_name": "internal"}); n != 1 {
			t.Errorf("视图不应被删除")
		}
	})
}
