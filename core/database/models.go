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

// core/database/models.go
// 数据库模型定义

package database

import (
	"time"

	"gorm.io/datatypes"
)

// View 视图
type View struct {
	ViewName    string `gorm:"column:view_name;primaryKey;size:255" json:"view_name"`
	ViewOptions string `gorm:"column:view_options;type:text" json:"view_options"`

	Dependencies     []ViewDependencyAssignment   `gorm:"foreignKey:ViewName;references:ViewName;constraint:OnDelete:CASCADE" json:"-"`
	ACLAssignments   []ViewACLAssignment          `gorm:"foreignKey:ViewName;references:ViewName;constraint:OnDelete:CASCADE" json:"-"`
	ServerSetEntries []DnsServerSetViewAssignment `gorm:"foreignKey:ViewName;references:ViewName;constraint:OnDelete:CASCADE" json:"-"`
}

func (View) TableName() string { return "views" }

// ViewDependency 视图依赖，每个视图隐含 <view>_dep，any 表示所有视图
type ViewDependency struct {
	ViewDependency string `gorm:"column:view_dependency;primaryKey;size:255" json:"view_dependency"`

	// 依赖删除时其中的区域实例和记录一并删除
	Assignments []ViewDependencyAssignment `gorm:"foreignKey:ViewDependency;references:ViewDependency;constraint:OnDelete:CASCADE" json:"-"`
	Zones       []ZoneViewAssignment       `gorm:"foreignKey:ViewDependency;references:ViewDependency;constraint:OnDelete:CASCADE" json:"-"`
	Records     []Record                   `gorm:"foreignKey:ViewDependency;references:ViewDependency;constraint:OnDelete:CASCADE" json:"-"`
}

func (ViewDependency) TableName() string { return "view_dependencies" }

// ViewDependencyAssignment 视图与依赖的关联
type ViewDependencyAssignment struct {
	ID             uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ViewName       string `gorm:"column:view_name;size:255;not null;uniqueIndex:idx_view_dependency_assignment" json:"view_name"`
	ViewDependency string `gorm:"column:view_dependency;size:255;not null;uniqueIndex:idx_view_dependency_assignment" json:"view_dependency"`
}

func (ViewDependencyAssignment) TableName() string { return "view_dependency_assignments" }

// Zone 区域
type Zone struct {
	ZoneName string `gorm:"column:zone_name;primaryKey;size:255" json:"zone_name"`

	Instances     []ZoneViewAssignment         `gorm:"foreignKey:ZoneName;references:ZoneName;constraint:OnDelete:CASCADE" json:"-"`
	Records       []Record                     `gorm:"foreignKey:ZoneName;references:ZoneName;constraint:OnDelete:CASCADE" json:"-"`
	ReverseRanges []ReverseRangeZoneAssignment `gorm:"foreignKey:ZoneName;references:ZoneName;constraint:OnDelete:CASCADE" json:"-"`
}

func (Zone) TableName() string { return "zones" }

// ZoneType 区域类型
type ZoneType struct {
	ZoneType string `gorm:"column:zone_type;primaryKey;size:32" json:"zone_type"`

	Zones []ZoneViewAssignment `gorm:"foreignKey:ZoneType;references:ZoneType" json:"-"`
}

func (ZoneType) TableName() string { return "zone_types" }

// ZoneViewAssignment 区域在某个视图依赖中的实例
type ZoneViewAssignment struct {
	ID             uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ZoneName       string `gorm:"column:zone_name;size:255;not null;uniqueIndex:idx_zone_view" json:"zone_name"`
	ViewDependency string `gorm:"column:view_dependency;size:255;not null;uniqueIndex:idx_zone_view;uniqueIndex:idx_origin_view" json:"view_dependency"`
	ZoneType       string `gorm:"column:zone_type;size:32;not null" json:"zone_type"`
	ZoneOrigin     string `gorm:"column:zone_origin;size:255;not null;uniqueIndex:idx_origin_view" json:"zone_origin"`
	ZoneOptions    string `gorm:"column:zone_options;type:text" json:"zone_options"`
}

func (ZoneViewAssignment) TableName() string { return "zone_view_assignments" }

// RecordType 记录类型
type RecordType struct {
	RecordType string `gorm:"column:record_type;primaryKey;size:16" json:"record_type"`

	Arguments []RecordArgument `gorm:"foreignKey:RecordType;references:RecordType;constraint:OnDelete:CASCADE" json:"-"`
	Records   []Record         `gorm:"foreignKey:RecordType;references:RecordType" json:"-"`
}

func (RecordType) TableName() string { return "record_types" }

// DataType 参数数据类型
type DataType struct {
	DataType string `gorm:"column:data_type;primaryKey;size:64" json:"data_type"`

	Arguments []RecordArgument `gorm:"foreignKey:ArgumentDataType;references:DataType" json:"-"`
}

func (DataType) TableName() string { return "data_types" }

// RecordArgument 记录参数定义
type RecordArgument struct {
	ID               uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RecordType       string `gorm:"column:record_type;size:16;not null;uniqueIndex:idx_record_argument" json:"record_type"`
	ArgumentName     string `gorm:"column:argument_name;size:64;not null;uniqueIndex:idx_record_argument" json:"argument_name"`
	ArgumentOrder    int    `gorm:"column:argument_order;not null" json:"argument_order"`
	ArgumentDataType string `gorm:"column:argument_data_type;size:64;not null" json:"argument_data_type"`
}

func (RecordArgument) TableName() string { return "record_arguments" }

// Record 资源记录，参数保存在 RecordArgumentAssignment 中
type Record struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Target         string    `gorm:"column:target;size:255;not null;index:idx_record_lookup" json:"target"`
	RecordType     string    `gorm:"column:record_type;size:16;not null;index:idx_record_lookup" json:"record_type"`
	TTL            uint32    `gorm:"column:ttl;not null" json:"ttl"`
	ZoneName       string    `gorm:"column:zone_name;size:255;not null;index:idx_record_lookup" json:"zone_name"`
	ViewDependency string    `gorm:"column:view_dependency;size:255;not null;index:idx_record_lookup" json:"view_dependency"`
	LastUser       string    `gorm:"column:last_user;size:255" json:"last_user"`
	LastUpdated    time.Time `gorm:"column:last_updated" json:"last_updated"`

	ArgumentValues []RecordArgumentAssignment `gorm:"foreignKey:RecordID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Record) TableName() string { return "records" }

// RecordArgumentAssignment 记录的单个参数值
type RecordArgumentAssignment struct {
	ID            uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RecordID      uint64 `gorm:"column:record_id;not null;index" json:"record_id"`
	ArgumentName  string `gorm:"column:argument_name;size:64;not null" json:"argument_name"`
	ArgumentValue string `gorm:"column:argument_value;type:text;not null" json:"argument_value"`
}

func (RecordArgumentAssignment) TableName() string { return "record_arguments_records_assignments" }

// ACL 访问控制列表
type ACL struct {
	ACLName string `gorm:"column:acl_name;primaryKey;size:255" json:"acl_name"`

	Ranges          []ACLRange          `gorm:"foreignKey:ACLName;references:ACLName;constraint:OnDelete:CASCADE" json:"-"`
	ViewAssignments []ViewACLAssignment `gorm:"foreignKey:ACLName;references:ACLName;constraint:OnDelete:CASCADE" json:"-"`
}

func (ACL) TableName() string { return "acls" }

// ACLRange ACL中的一个地址段
type ACLRange struct {
	ID           uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ACLName      string `gorm:"column:acl_name;size:255;not null;index" json:"acl_name"`
	CIDRBlock    string `gorm:"column:cidr_block;size:64;not null" json:"cidr_block"`
	RangeAllowed bool   `gorm:"column:range_allowed;not null" json:"range_allowed"`
}

func (ACLRange) TableName() string { return "acl_ranges" }

// ViewACLAssignment 视图在某个服务器组中匹配的客户端
type ViewACLAssignment struct {
	ID               uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ViewName         string `gorm:"column:view_name;size:255;not null;uniqueIndex:idx_view_acl" json:"view_name"`
	ACLName          string `gorm:"column:acl_name;size:255;not null;uniqueIndex:idx_view_acl" json:"acl_name"`
	DnsServerSetName string `gorm:"column:dns_server_set_name;size:255;not null;uniqueIndex:idx_view_acl" json:"dns_server_set_name"`
	RangeAllowed     bool   `gorm:"column:range_allowed;not null" json:"range_allowed"`
}

func (ViewACLAssignment) TableName() string { return "view_acl_assignments" }

// DnsServer DNS服务器
type DnsServer struct {
	DnsServerName string `gorm:"column:dns_server_name;primaryKey;size:255" json:"dns_server_name"`
	SSHUser       string `gorm:"column:ssh_user;size:255" json:"ssh_user"`
	BindDir       string `gorm:"column:bind_dir;size:1024" json:"bind_dir"`
	TestDir       string `gorm:"column:test_dir;size:1024" json:"test_dir"`

	SetAssignments []DnsServerSetAssignment `gorm:"foreignKey:DnsServerName;references:DnsServerName;constraint:OnDelete:CASCADE" json:"-"`
}

func (DnsServer) TableName() string { return "dns_servers" }

// DnsServerSet DNS服务器组，组内服务器接收相同的配置
type DnsServerSet struct {
	DnsServerSetName string `gorm:"column:dns_server_set_name;primaryKey;size:255" json:"dns_server_set_name"`

	Servers        []DnsServerSetAssignment     `gorm:"foreignKey:DnsServerSetName;references:DnsServerSetName;constraint:OnDelete:CASCADE" json:"-"`
	Views          []DnsServerSetViewAssignment `gorm:"foreignKey:DnsServerSetName;references:DnsServerSetName;constraint:OnDelete:CASCADE" json:"-"`
	ACLAssignments []ViewACLAssignment          `gorm:"foreignKey:DnsServerSetName;references:DnsServerSetName;constraint:OnDelete:CASCADE" json:"-"`
	GlobalOptions  []NamedConfGlobalOption      `gorm:"foreignKey:DnsServerSetName;references:DnsServerSetName;constraint:OnDelete:CASCADE" json:"-"`
}

func (DnsServerSet) TableName() string { return "dns_server_sets" }

// DnsServerSetAssignment 服务器与服务器组的关联
type DnsServerSetAssignment struct {
	ID               uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	DnsServerName    string `gorm:"column:dns_server_name;size:255;not null;uniqueIndex:idx_server_set" json:"dns_server_name"`
	DnsServerSetName string `gorm:"column:dns_server_set_name;size:255;not null;uniqueIndex:idx_server_set" json:"dns_server_set_name"`
}

func (DnsServerSetAssignment) TableName() string { return "dns_server_set_assignments" }

// DnsServerSetViewAssignment 服务器组中的视图及其顺序
type DnsServerSetViewAssignment struct {
	ID               uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	DnsServerSetName string `gorm:"column:dns_server_set_name;size:255;not null;uniqueIndex:idx_set_view" json:"dns_server_set_name"`
	ViewName         string `gorm:"column:view_name;size:255;not null;uniqueIndex:idx_set_view" json:"view_name"`
	ViewOrder        uint32 `gorm:"column:view_order;not null" json:"view_order"`
	ViewOptions      string `gorm:"column:view_options;type:text" json:"view_options"`
}

func (DnsServerSetViewAssignment) TableName() string { return "dns_server_set_view_assignments" }

// ReverseRangeZoneAssignment 反向区域对应的地址段
type ReverseRangeZoneAssignment struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ZoneName  string `gorm:"column:zone_name;size:255;not null;index" json:"zone_name"`
	CIDRBlock string `gorm:"column:cidr_block;size:64;not null" json:"cidr_block"`
}

func (ReverseRangeZoneAssignment) TableName() string { return "reverse_range_zone_assignments" }

// NamedConfGlobalOption named.conf 全局选项，保留历史，最新的一条生效
type NamedConfGlobalOption struct {
	ID               uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	DnsServerSetName string    `gorm:"column:dns_server_set_name;size:255;not null;index" json:"dns_server_set_name"`
	GlobalOptions    string    `gorm:"column:global_options;type:text;not null" json:"global_options"`
	OptionsCreated   time.Time `gorm:"column:options_created;not null" json:"options_created"`
}

func (NamedConfGlobalOption) TableName() string { return "named_conf_global_options" }

// AuditLog 审计日志，写入后不再修改
type AuditLog struct {
	ID        uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserName  string         `gorm:"column:user_name;size:255;not null;index" json:"user_name"`
	Action    string         `gorm:"column:action;size:255;not null;index" json:"action"`
	Data      datatypes.JSON `gorm:"column:data" json:"data"`
	Success   bool           `gorm:"column:success;not null" json:"success"`
	Timestamp time.Time      `gorm:"column:timestamp;not null;index" json:"timestamp"`
}

func (AuditLog) TableName() string { return "audit_log" }

// User 用户
type User struct {
	UserName     string `gorm:"column:user_name;primaryKey;size:255" json:"user_name"`
	AccessLevel  int    `gorm:"column:access_level;not null" json:"access_level"`
	PasswordHash string `gorm:"column:password_hash;size:255" json:"-"`

	Credentials []Credential `gorm:"foreignKey:UserName;references:UserName;constraint:OnDelete:CASCADE" json:"-"`
}

func (User) TableName() string { return "users" }

// Credential 已签发的凭证
type Credential struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserName     string    `gorm:"column:user_name;size:255;not null;index" json:"user_name"`
	CredentialID string    `gorm:"column:credential_id;size:64;not null;uniqueIndex" json:"credential_id"`
	LastUsed     time.Time `gorm:"column:last_used;not null" json:"last_used"`
	Issued       time.Time `gorm:"column:issued;not null" json:"issued"`
	Infinite     bool      `gorm:"column:infinite;not null" json:"infinite"`
}

func (Credential) TableName() string { return "credentials" }

// Lock 锁表，db_lock_lock 为整库锁，maintenance 为维护模式标志
type Lock struct {
	LockName        string    `gorm:"column:lock_name;primaryKey;size:64" json:"lock_name"`
	Locked          bool      `gorm:"column:locked;not null" json:"locked"`
	LockLastUpdated time.Time `gorm:"column:lock_last_updated" json:"lock_last_updated"`
}

func (Lock) TableName() string { return "locks" }

// ReservedWord 运维人员追加的保留字
type ReservedWord struct {
	ID           uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ReservedWord string `gorm:"column:reserved_word;size:255;not null;uniqueIndex" json:"reserved_word"`
}

func (ReservedWord) TableName() string { return "reserved_words" }

// allModels 所有模型，父表在前；外键约束由父表的 has-many 关联声明，建在子表上
func allModels() []interface{} {
	return []interface{}{
		&View{},
		&ViewDependency{},
		&ViewDependencyAssignment{},
		&Zone{},
		&ZoneType{},
		&ZoneViewAssignment{},
		&RecordType{},
		&DataType{},
		&RecordArgument{},
		&Record{},
		&RecordArgumentAssignment{},
		&ACL{},
		&ACLRange{},
		&DnsServer{},
		&DnsServerSet{},
		&ViewACLAssignment{},
		&DnsServerSetAssignment{},
		&DnsServerSetViewAssignment{},
		&ReverseRangeZoneAssignment{},
		&NamedConfGlobalOption{},
		&AuditLog{},
		&User{},
		&Credential{},
		&Lock{},
		&ReservedWord{},
	}
}
