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

// core/dnscore/soa.go
// SOA 序列号管理

package dnscore

import (
	"strconv"

	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/record"
)

// MaxSOASerial SOA 序列号上限，超过后回到 1
const MaxSOASerial = 1<<32 - 1

// 新区域占位 SOA 的默认值
const (
	defaultRefresh = 3600
	defaultRetry   = 600
	defaultExpiry  = 86400
	defaultMinimum = 3600
	defaultTTL     = 3600
)

// NextSerial 返回下一个序列号
func NextSerial(serial uint32) uint32 {
	return uint32(uint64(serial)%MaxSOASerial + 1)
}

// zoneKey 区域在某个视图依赖中的实例
type zoneKey struct {
	zone       string
	dependency string
}

// bumpSOA 递增区域实例的 SOA 序列号，依赖为 any 时递增该区域所有 SOA
func bumpSOA(tx *database.Tx, zoneName, dependency string) error {
	filter := database.Row{"zone_name": zoneName, "record_type": record.TypeSOA}
	if dependency != database.AnyDependency {
		filter["view_dependency"] = dependency
	}

	soas, err := tx.ListRecordsWithArguments(filter)
	if err != nil {
		return err
	}
	for _, soa := range soas {
		serial, err := record.ToUnsigned(soa.Arguments["serial_number"])
		if err != nil {
			return common.NewError(common.KindCoreError, "SOA of zone %s has an invalid serial number", zoneName)
		}
		next := strconv.FormatUint(uint64(NextSerial(serial)), 10)
		if err := tx.SetRecordArgument(soa.ID, "serial_number", next); err != nil {
			return err
		}
	}
	return nil
}

// bumpAll 对每个受影响的区域实例递增一次
func bumpAll(tx *database.Tx, keys map[zoneKey]bool) error {
	for key := range keys {
		if err := bumpSOA(tx, key.zone, key.dependency); err != nil {
			return err
		}
	}
	return nil
}

// placeholderSOA 新建主区域时写入的 SOA 参数，序列号为 0，随后首次递增为 1
func placeholderSOA(origin string) map[string]string {
	host := func(label string) string {
		if origin == "." {
			return label + "."
		}
		return label + "." + origin
	}
	return map[string]string{
		"name_server":     host("ns"),
		"admin_email":     host("hostmaster"),
		"serial_number":   "0",
		"refresh_seconds": strconv.Itoa(defaultRefresh),
		"retry_seconds":   strconv.Itoa(defaultRetry),
		"expiry_seconds":  strconv.Itoa(defaultExpiry),
		"minimum_seconds": strconv.Itoa(defaultMinimum),
	}
}
