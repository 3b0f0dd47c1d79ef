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

// core/database/tx.go
// 事务排队、整库锁与维护模式

package database

import (
	"context"
	"errors"
	"sync"
	"time"

	"Roster/core/common"

	"gorm.io/gorm"
)

// ticketQueue 按到达顺序发放并服务票号
type ticketQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64
	serving uint64
}

func newTicketQueue() *ticketQueue {
	q := &ticketQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// wait 领取票号并阻塞到轮到该票号
func (q *ticketQueue) wait() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	ticket := q.next
	q.next++
	for q.serving != ticket {
		q.cond.Wait()
	}
	return ticket
}

// done 结束当前票号，唤醒下一个
func (q *ticketQueue) done() {
	q.mu.Lock()
	q.serving++
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Tx 一个排队中的数据库事务，同一时刻进程内只有一个 Tx 处于活动状态
// Tx 不可在多个 goroutine 间共享，也不可嵌套开启
type Tx struct {
	store     *Store
	db        *gorm.DB
	ticket    uint64
	done      bool
	locked    bool
	heartbeat chan struct{}
}

// BeginTx 排队并开启事务
func (s *Store) BeginTx(ctx context.Context) (*Tx, error) {
	ticket := s.queue.wait()

	gtx := s.db.WithContext(ctx).Begin()
	if gtx.Error != nil {
		s.queue.done()
		return nil, common.WrapError(common.KindTransaction, gtx.Error, "开启事务失败")
	}

	return &Tx{store: s, db: gtx, ticket: ticket}, nil
}

// WithTx 在事务中执行 fn，返回错误时回滚
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("回滚事务失败: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Commit 释放整库锁并提交事务
func (t *Tx) Commit() error {
	if t.done {
		return common.NewError(common.KindTransaction, "Transaction already finished")
	}
	t.done = true
	defer t.store.queue.done()

	if t.locked {
		if err := t.releaseBigLock(); err != nil {
			t.db.Rollback()
			return err
		}
	}

	if err := t.db.Commit().Error; err != nil {
		return common.WrapError(common.KindTransaction, err, "提交事务失败")
	}
	return nil
}

// Rollback 回滚事务并释放整库锁
func (t *Tx) Rollback() error {
	if t.done {
		return common.NewError(common.KindTransaction, "Transaction already finished")
	}
	t.done = true
	defer t.store.queue.done()

	if t.locked {
		if err := t.releaseBigLock(); err != nil {
			t.store.logger.Warn("释放整库锁失败: %v", err)
		}
	}

	if err := t.db.Rollback().Error; err != nil && !errors.Is(err, gorm.ErrInvalidTransaction) {
		return common.WrapError(common.KindTransaction, err, "回滚事务失败")
	}
	return nil
}

func (t *Tx) checkActive() error {
	if t.done {
		return common.NewError(common.KindTransaction, "Transaction already finished")
	}
	return nil
}

// lockDB 锁表的读写连接
// sqlite 只有一个连接，锁行在事务内读写；其他驱动直接提交，以便其他进程可见
func (t *Tx) lockDB() *gorm.DB {
	if t.store.driver == "sqlite" {
		return t.db
	}
	return t.store.db
}

// waitForBigLock 等待其他持有者释放整库锁，超过 big_lock_timeout 的锁视为失效
func (t *Tx) waitForBigLock() error {
	if t.locked {
		return nil
	}

	for {
		var lock Lock
		if err := t.lockDB().Where("lock_name = ?", BigLockName).First(&lock).Error; err != nil {
			return common.WrapError(common.KindTransaction, err, "读取整库锁失败")
		}
		if !lock.Locked {
			return nil
		}

		age := t.store.now().Sub(lock.LockLastUpdated)
		if age >= t.store.bigLockTimeout {
			t.store.logger.Warn("整库锁已失效（%v 未更新），继续执行", age.Round(time.Second))
			return nil
		}

		t.store.logger.Debug("整库锁被占用，%v 后重试", t.store.bigLockWait)
		time.Sleep(t.store.bigLockWait)
	}
}

// LockAll 获取整库锁，提交或回滚时释放
func (t *Tx) LockAll() error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if t.locked {
		return common.NewError(common.KindTransaction, "Database already locked by this transaction")
	}
	if err := t.waitForBigLock(); err != nil {
		return err
	}

	if err := t.writeBigLock(true); err != nil {
		return err
	}
	t.locked = true

	if t.store.driver != "sqlite" {
		t.heartbeat = make(chan struct{})
		go t.keepBigLockFresh(t.heartbeat)
	}
	return nil
}

func (t *Tx) writeBigLock(locked bool) error {
	err := t.lockDB().Model(&Lock{}).Where("lock_name = ?", BigLockName).
		Updates(map[string]interface{}{"locked": locked, "lock_last_updated": t.store.now()}).Error
	if err != nil {
		return common.WrapError(common.KindTransaction, err, "更新整库锁失败")
	}
	return nil
}

// keepBigLockFresh 定期刷新锁的心跳时间
func (t *Tx) keepBigLockFresh(stop chan struct{}) {
	interval := t.store.bigLockTimeout / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := t.store.db.Model(&Lock{}).Where("lock_name = ?", BigLockName).
				Update("lock_last_updated", t.store.now()).Error; err != nil {
				t.store.logger.Warn("刷新整库锁心跳失败: %v", err)
			}
		}
	}
}

func (t *Tx) releaseBigLock() error {
	if t.heartbeat != nil {
		close(t.heartbeat)
		t.heartbeat = nil
	}
	t.locked = false
	return t.writeBigLock(false)
}

// IsLocked 当前事务是否持有整库锁
func (t *Tx) IsLocked() bool {
	return t.locked
}

// CheckMaintenanceFlag 读取维护模式标志
func (t *Tx) CheckMaintenanceFlag() (bool, error) {
	if err := t.checkActive(); err != nil {
		return false, err
	}
	var lock Lock
	if err := t.db.Where("lock_name = ?", MaintenanceLockName).First(&lock).Error; err != nil {
		return false, common.WrapError(common.KindTransaction, err, "读取维护模式标志失败")
	}
	return lock.Locked, nil
}

// SetMaintenanceFlag 设置维护模式标志
func (t *Tx) SetMaintenanceFlag(on bool) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	err := t.db.Model(&Lock{}).Where("lock_name = ?", MaintenanceLockName).
		Updates(map[string]interface{}{"locked": on, "lock_last_updated": t.store.now()}).Error
	if err != nil {
		return common.WrapError(common.KindTransaction, err, "设置维护模式标志失败")
	}
	return nil
}
