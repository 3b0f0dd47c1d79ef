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

// core/webapi/api/corecache.go
// 每个用户一个 Core，闲置超过 core_die_time 后丢弃

package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/dnscore"
)

type coreEntry struct {
	core     *dnscore.Core
	lastUsed time.Time
}

// CoreCache 用户名到 Core 的缓存
type CoreCache struct {
	store     *database.Store
	dieTime   time.Duration
	cleanTime time.Duration

	mu        sync.Mutex
	cores     map[string]*coreEntry
	lastClean time.Time

	// 同一时刻只允许一个清理者
	cleaning atomic.Bool

	checker dnscore.TargetChecker
	now     func() time.Time
	logger  *common.Logger
}

// NewCoreCache 创建缓存
func NewCoreCache(store *database.Store, dieTime, cleanTime time.Duration) *CoreCache {
	return &CoreCache{
		store:     store,
		dieTime:   dieTime,
		cleanTime: cleanTime,
		cores:     make(map[string]*coreEntry),
		lastClean: time.Now(),
		now:       time.Now,
		logger:    common.NewComponentLogger("corecache"),
	}
}

// SetTargetChecker 新建的 Core 使用的目标检查策略
func (cc *CoreCache) SetTargetChecker(checker dnscore.TargetChecker) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.checker = checker
}

// Get 取出用户的 Core，没有时新建；用户不存在时返回 AuthError
func (cc *CoreCache) Get(ctx context.Context, userName string) (*dnscore.Core, error) {
	cc.mu.Lock()
	if entry, ok := cc.cores[userName]; ok {
		entry.lastUsed = cc.now()
		cc.mu.Unlock()
		return entry.core, nil
	}
	checker := cc.checker
	cc.mu.Unlock()

	core, err := dnscore.NewCore(ctx, cc.store, userName)
	if err != nil {
		return nil, err
	}
	if checker != nil {
		core.SetTargetChecker(checker)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	// 并发创建时保留先放入的那个
	if entry, ok := cc.cores[userName]; ok {
		entry.lastUsed = cc.now()
		return entry.core, nil
	}
	cc.cores[userName] = &coreEntry{core: core, lastUsed: cc.now()}
	cc.logger.Debug("为用户 %s 创建 Core", userName)
	return core, nil
}

// Remove 丢弃用户的 Core，用户权限变化后使用
func (cc *CoreCache) Remove(userName string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	delete(cc.cores, userName)
}

// Reset 丢弃所有 Core
func (cc *CoreCache) Reset() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cores = make(map[string]*coreEntry)
}

// Len 缓存中的 Core 数量
func (cc *CoreCache) Len() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return len(cc.cores)
}

// Clean 丢弃闲置超过 core_die_time 的 Core，返回丢弃数量；已有清理在进行时直接返回
func (cc *CoreCache) Clean() int {
	if !cc.cleaning.CompareAndSwap(false, true) {
		return 0
	}
	defer cc.cleaning.Store(false)

	cc.mu.Lock()
	defer cc.mu.Unlock()

	now := cc.now()
	removed := 0
	for userName, entry := range cc.cores {
		if now.Sub(entry.lastUsed) >= cc.dieTime {
			delete(cc.cores, userName)
			removed++
		}
	}
	cc.lastClean = now
	if removed > 0 {
		cc.logger.Debug("清理了 %d 个闲置的 Core", removed)
	}
	return removed
}

// MaybeClean 距上次清理超过 clean_time 时清理，每个请求处理完后调用
func (cc *CoreCache) MaybeClean() {
	cc.mu.Lock()
	due := cc.now().Sub(cc.lastClean) >= cc.cleanTime
	cc.mu.Unlock()
	if due {
		cc.Clean()
	}
}
