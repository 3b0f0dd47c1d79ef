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

// core/database/credentials.go
// 已签发凭证的存取

package database

import (
	"errors"

	"Roster/core/common"

	"gorm.io/gorm"
)

// MakeCredential 保存新签发的凭证
func (t *Tx) MakeCredential(userName, credentialID string, infinite bool) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	now := t.store.now()
	cred := Credential{
		UserName:     userName,
		CredentialID: credentialID,
		LastUsed:     now,
		Issued:       now,
		Infinite:     infinite,
	}
	if err := t.db.Create(&cred).Error; err != nil {
		return translateDBError(err, "保存凭证失败")
	}
	return nil
}

// GetCredential 按凭证ID读取，不存在时返回 AuthError
func (t *Tx) GetCredential(credentialID string) (*Credential, error) {
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	var cred Credential
	if err := t.db.Where("credential_id = ?", credentialID).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewError(common.KindAuthError, "Credential not found")
		}
		return nil, translateDBError(err, "查询凭证失败")
	}
	return &cred, nil
}

// TouchCredential 刷新凭证的最后使用时间
func (t *Tx) TouchCredential(credentialID string) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	err := t.db.Model(&Credential{}).Where("credential_id = ?", credentialID).
		Update("last_used", t.store.now()).Error
	if err != nil {
		return translateDBError(err, "更新凭证使用时间失败")
	}
	return nil
}

// RemoveCredential 删除单个凭证
func (t *Tx) RemoveCredential(credentialID string) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if err := t.db.Where("credential_id = ?", credentialID).Delete(&Credential{}).Error; err != nil {
		return translateDBError(err, "删除凭证失败")
	}
	return nil
}

// RemoveCredentialsForUser 删除用户的所有凭证，返回删除数量
func (t *Tx) RemoveCredentialsForUser(userName string) (int64, error) {
	if err := t.checkActive(); err != nil {
		return 0, err
	}
	result := t.db.Where("user_name = ?", userName).Delete(&Credential{})
	if result.Error != nil {
		return 0, translateDBError(result.Error, "删除用户凭证失败")
	}
	return result.RowsAffected, nil
}

// ListCredentials 列出凭证，userName 为空时返回全部
func (t *Tx) ListCredentials(userName string) ([]Credential, error) {
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	query := t.db.Order("id")
	if userName != "" {
		query = query.Where("user_name = ?", userName)
	}
	var creds []Credential
	if err := query.Find(&creds).Error; err != nil {
		return nil, translateDBError(err, "查询凭证失败")
	}
	return creds, nil
}
