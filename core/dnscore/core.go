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

// core/dnscore/core.go
// 每个用户一个 Core，所有操作经过访问级别、维护模式、事务和审计日志

package dnscore

import (
	"context"
	"strings"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/record"
)

// auditArgs 写入审计日志的调用参数
type auditArgs map[string]interface{}

// Target 需要做目标检查的记录位置
type Target struct {
	RecordType string
	Target     string
	ZoneName   string
	ViewName   string
}

// TargetChecker 判断用户能否修改某个位置的记录
type TargetChecker interface {
	CheckTarget(ctx context.Context, userName string, accessLevel int, target Target) error
}

// allowAllTargets 默认不限制
type allowAllTargets struct{}

func (allowAllTargets) CheckTarget(context.Context, string, int, Target) error { return nil }

// Core 绑定到一个用户的操作集合
type Core struct {
	store       *database.Store
	userName    string
	accessLevel int
	checker     TargetChecker
	logger      *common.Logger
}

// NewCore 为用户创建 Core，用户不存在时返回 AuthError
func NewCore(ctx context.Context, store *database.Store, userName string) (*Core, error) {
	tx, err := store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	user, err := tx.GetUser(userName)
	if rbErr := tx.Rollback(); rbErr != nil && err == nil {
		err = rbErr
	}
	if err != nil {
		return nil, err
	}

	return &Core{
		store:       store,
		userName:    user.UserName,
		accessLevel: user.AccessLevel,
		checker:     allowAllTargets{},
		logger:      common.NewComponentLogger("core"),
	}, nil
}

// SetTargetChecker 设置目标检查策略
func (c *Core) SetTargetChecker(checker TargetChecker) {
	if checker == nil {
		checker = allowAllTargets{}
	}
	c.checker = checker
}

// UserName 返回 Core 所属用户
func (c *Core) UserName() string {
	return c.userName
}

// AccessLevel 返回用户访问级别
func (c *Core) AccessLevel() int {
	return c.accessLevel
}

// Store 返回底层记录库
func (c *Core) Store() *database.Store {
	return c.store
}

// run 在事务中执行一个方法：检查访问级别与维护模式，写操作成功后在同一事务中记审计日志，
// 失败时回滚并在新事务中记录失败日志
func run[T any](ctx context.Context, c *Core, method string, data auditArgs, fn func(tx *database.Tx) (T, error)) (T, error) {
	var zero T

	info, ok := SupportedMethods[method]
	if !ok {
		return zero, common.NewError(common.KindInvalidInput, "Method %s is not supported", method)
	}

	if c.accessLevel < info.MinAccessLevel {
		err := common.NewError(common.KindAuthError, "User %s does not have access to %s", c.userName, method)
		c.logFailure(ctx, method, data, err)
		return zero, err
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		c.logFailure(ctx, method, data, err)
		return zero, err
	}

	result, err := func() (T, error) {
		if info.RequiresWrite {
			if err := c.checkMaintenance(tx); err != nil {
				return zero, err
			}
		}
		result, err := fn(tx)
		if err != nil {
			return zero, err
		}
		if info.RequiresWrite {
			if _, err := tx.LogAction(c.userName, method, data, true); err != nil {
				return zero, err
			}
		}
		return result, nil
	}()
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Error("回滚事务失败: %v", rbErr)
		}
		c.logFailure(ctx, method, data, err)
		return zero, err
	}

	if err := tx.Commit(); err != nil {
		c.logFailure(ctx, method, data, err)
		return zero, err
	}
	return result, nil
}

// checkMaintenance 维护模式下只有 dns_admin 可以写入
func (c *Core) checkMaintenance(tx *database.Tx) error {
	if c.accessLevel >= record.AccessDNSAdmin {
		return nil
	}
	on, err := tx.CheckMaintenanceFlag()
	if err != nil {
		return err
	}
	if on {
		return common.NewError(common.KindCoreError, "Database is in maintenance mode")
	}
	return nil
}

// logFailure 在独立事务中记录失败的调用
func (c *Core) logFailure(ctx context.Context, method string, data auditArgs, cause error) {
	c.logger.Warn("%s 执行失败 (用户 %s): %v", method, c.userName, cause)

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		c.logger.Error("记录失败审计日志失败: %v", err)
		return
	}
	if _, err := tx.LogAction(c.userName, method, data, false); err != nil {
		c.logger.Error("记录失败审计日志失败: %v", err)
		tx.Rollback()
		return
	}
	if err := tx.Commit(); err != nil {
		c.logger.Error("提交失败审计日志失败: %v", err)
	}
}

// viewDependency 视图名对应的依赖，空视图名或 any 表示所有视图
func viewDependency(viewName string) string {
	if viewName == "" || viewName == database.AnyDependency {
		return database.AnyDependency
	}
	return viewName + "_dep"
}

// viewNameFromDependency 依赖对应的视图名
func viewNameFromDependency(dependency string) string {
	return strings.TrimSuffix(dependency, "_dep")
}

// checkViewExists 视图不存在时返回 CoreError，any 总是存在
func checkViewExists(tx *database.Tx, viewName string) error {
	if viewName == "" || viewName == database.AnyDependency {
		return nil
	}
	exists, err := tx.ViewExists(viewName)
	if err != nil {
		return err
	}
	if !exists {
		return common.NewError(common.KindCoreError, "View %s does not exist", viewName)
	}
	return nil
}

// notFound 把删除/更新零行的结果转换为错误
func notFound(affected int64, format string, args ...interface{}) error {
	if affected == 0 {
		return common.NewError(common.KindCoreError, format, args...)
	}
	return nil
}
