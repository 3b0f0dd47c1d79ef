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

// core/dnscore/acls.go
// ACL 及其地址段

package dnscore

import (
	"context"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/record"
)

// ACLRange ACL 中的一个地址段
type ACLRange struct {
	CIDRBlock    string `json:"cidr_block" yaml:"cidr_block"`
	RangeAllowed bool   `json:"range_allowed" yaml:"range_allowed"`
}

// MakeACL 向 ACL 添加地址段，ACL 不存在时自动创建
func (c *Core) MakeACL(ctx context.Context, aclName, cidr string, rangeAllowed bool) error {
	data := auditArgs{"acl_name": aclName, "cidr_block": cidr, "range_allowed": rangeAllowed}
	_, err := run(ctx, c, "MakeACL", data, func(tx *database.Tx) (uint64, error) {
		prefix, err := record.NormalizeCIDR(cidr)
		if err != nil {
			return 0, err
		}
		block := prefix.String()

		rows, err := tx.ListRow("acls", database.Row{"acl_name": aclName}, false)
		if err != nil {
			return 0, err
		}
		if len(rows) == 0 {
			if _, err := tx.MakeRow("acls", database.Row{"acl_name": aclName}); err != nil {
				return 0, err
			}
		}

		existing, err := tx.ListACLRanges(database.Row{"acl_name": aclName, "cidr_block": block})
		if err != nil {
			return 0, err
		}
		if len(existing) > 0 {
			return 0, common.NewError(common.KindCoreError, "ACL %s already contains %s", aclName, block)
		}
		return tx.MakeRow("acl_ranges", database.Row{
			"acl_name":      aclName,
			"cidr_block":    block,
			"range_allowed": rangeAllowed,
		})
	})
	return err
}

// RemoveACL 删除 ACL 及其全部地址段
func (c *Core) RemoveACL(ctx context.Context, aclName string) (int64, error) {
	return run(ctx, c, "RemoveACL", auditArgs{"acl_name": aclName}, func(tx *database.Tx) (int64, error) {
		return tx.RemoveRow("acls", database.Row{"acl_name": aclName})
	})
}

// RemoveCIDRBlockFromACL 从 ACL 删除地址段，最后一个地址段删除后 ACL 一并删除
func (c *Core) RemoveCIDRBlockFromACL(ctx context.Context, cidr, aclName string) (int64, error) {
	data := auditArgs{"cidr_block": cidr, "acl_name": aclName}
	return run(ctx, c, "RemoveCIDRBlockFromACL", data, func(tx *database.Tx) (int64, error) {
		prefix, err := record.NormalizeCIDR(cidr)
		if err != nil {
			return 0, err
		}
		removed, err := tx.RemoveRow("acl_ranges", database.Row{"acl_name": aclName, "cidr_block": prefix.String()})
		if err != nil {
			return 0, err
		}
		if err := notFound(removed, "ACL %s does not contain %s", aclName, prefix.String()); err != nil {
			return 0, err
		}

		remaining, err := tx.ListACLRanges(database.Row{"acl_name": aclName})
		if err != nil {
			return 0, err
		}
		if len(remaining) == 0 {
			if _, err := tx.RemoveRow("acls", database.Row{"acl_name": aclName}); err != nil {
				return 0, err
			}
		}
		return removed, nil
	})
}

// ListACLs 列出 ACL 及其地址段
func (c *Core) ListACLs(ctx context.Context, aclName, cidr string) (map[string][]ACLRange, error) {
	data := auditArgs{"acl_name": aclName, "cidr_block": cidr}
	return run(ctx, c, "ListACLs", data, func(tx *database.Tx) (map[string][]ACLRange, error) {
		filter := database.Row{"acl_name": optional(aclName)}
		if cidr != "" {
			prefix, err := record.NormalizeCIDR(cidr)
			if err != nil {
				return nil, err
			}
			filter["cidr_block"] = prefix.String()
		}
		ranges, err := tx.ListACLRanges(filter)
		if err != nil {
			return nil, err
		}
		result := make(map[string][]ACLRange)
		for _, r := range ranges {
			result[r.ACLName] = append(result[r.ACLName], ACLRange{CIDRBlock: r.CIDRBlock, RangeAllowed: r.RangeAllowed})
		}
		return result, nil
	})
}
