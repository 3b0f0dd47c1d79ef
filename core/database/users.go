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

// core/database/users.go
// 用户与访问级别

package database

import (
	"errors"
	"strings"

	"Roster/core/common"
	"Roster/core/record"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// isBcryptHash 判断字符串是否已经是bcrypt哈希
func isBcryptHash(password string) bool {
	return strings.HasPrefix(password, "$2a$") ||
		strings.HasPrefix(password, "$2b$") ||
		strings.HasPrefix(password, "$2y$")
}

// hashPassword 加密密码，已是哈希或为空时原样返回
func hashPassword(password string) (string, error) {
	if password == "" || isBcryptHash(password) {
		return password, nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", common.WrapError(common.KindCoreError, err, "加密密码失败")
	}
	return string(hashed), nil
}

func checkAccessLevel(level int) error {
	if _, ok := record.ValidAccessLevels[level]; !ok {
		return common.NewError(common.KindUnexpectedData, "Invalid access level: %d", level)
	}
	return nil
}

// MakeUser 创建用户，password 为空表示只能通过外部认证登录
func (t *Tx) MakeUser(userName string, accessLevel int, password string) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if userName == "" {
		return common.NewError(common.KindUnexpectedData, "User name cannot be empty")
	}
	if err := checkAccessLevel(accessLevel); err != nil {
		return err
	}
	reserved, err := t.store.reservedWordSet(t.db)
	if err != nil {
		return err
	}
	if record.IsReservedWord(userName, reserved) {
		return common.NewError(common.KindReservedWord, "Reserved word %s found, unable to complete request", userName)
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return err
	}
	if err := t.waitForBigLock(); err != nil {
		return err
	}

	user := User{UserName: userName, AccessLevel: accessLevel, PasswordHash: hashed}
	if err := t.db.Create(&user).Error; err != nil {
		return translateDBError(err, "创建用户%s失败", userName)
	}
	return nil
}

// GetUser 读取用户
func (t *Tx) GetUser(userName string) (*User, error) {
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	var user User
	if err := t.db.Where("user_name = ?", userName).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewError(common.KindAuthError, "User %s does not exist", userName)
		}
		return nil, translateDBError(err, "查询用户失败")
	}
	return &user, nil
}

// RemoveUser 删除用户，其凭证随外键级联删除
func (t *Tx) RemoveUser(userName string) (int64, error) {
	if err := t.checkActive(); err != nil {
		return 0, err
	}
	if err := t.waitForBigLock(); err != nil {
		return 0, err
	}
	if err := t.db.Where("user_name = ?", userName).Delete(&Credential{}).Error; err != nil {
		return 0, translateDBError(err, "删除用户凭证失败")
	}
	result := t.db.Where("user_name = ?", userName).Delete(&User{})
	if result.Error != nil {
		return 0, translateDBError(result.Error, "删除用户%s失败", userName)
	}
	return result.RowsAffected, nil
}

// UpdateUser 修改访问级别和密码，accessLevel 为 nil 或 password 为空时保持原值
func (t *Tx) UpdateUser(userName string, accessLevel *int, password string) (int64, error) {
	if err := t.checkActive(); err != nil {
		return 0, err
	}
	changes := map[string]interface{}{}
	if accessLevel != nil {
		if err := checkAccessLevel(*accessLevel); err != nil {
			return 0, err
		}
		changes["access_level"] = *accessLevel
	}
	if password != "" {
		hashed, err := hashPassword(password)
		if err != nil {
			return 0, err
		}
		changes["password_hash"] = hashed
	}
	if len(changes) == 0 {
		return 0, nil
	}
	if err := t.waitForBigLock(); err != nil {
		return 0, err
	}

	result := t.db.Model(&User{}).Where("user_name = ?", userName).Updates(changes)
	if result.Error != nil {
		return 0, translateDBError(result.Error, "更新用户%s失败", userName)
	}
	return result.RowsAffected, nil
}

// ListUsers 列出用户，userName 为空时返回全部
func (t *Tx) ListUsers(userName string) ([]User, error) {
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	query := t.db.Order("user_name")
	if userName != "" {
		query = query.Where("user_name = ?", userName)
	}
	var users []User
	if err := query.Find(&users).Error; err != nil {
		return nil, translateDBError(err, "查询用户列表失败")
	}
	return users, nil
}

// ValidateUserPassword 校验本地密码，用户不存在或没有本地密码时返回 false
func (t *Tx) ValidateUserPassword(userName, password string) (*User, bool) {
	user, err := t.GetUser(userName)
	if err != nil {
		if !errors.Is(err, common.ErrAuth) {
			t.store.logger.Warn("查询用户失败: %v", err)
		}
		return nil, false
	}
	if user.PasswordHash == "" {
		return nil, false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, false
	}
	return user, true
}
