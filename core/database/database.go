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

// core/database/database.go

package database

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"Roster/core/common"
	"Roster/core/record"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 锁表中的固定行
const (
	BigLockName         = "db_lock_lock"
	MaintenanceLockName = "maintenance"
)

// 种子数据
const (
	AnyDependency  = "any"
	AnyACL         = "any"
	TreeExportUser = "tree_export_user"
)

// Store 记录库，进程内唯一，所有访问通过 Tx 进行
type Store struct {
	db             *gorm.DB
	driver         string
	logger         *common.Logger
	bigLockTimeout time.Duration
	bigLockWait    time.Duration
	queue          *ticketQueue

	reservedOnce  sync.Once
	reservedWords map[string]bool
	reservedErr   error

	now func() time.Time
}

// Open 按 [database] 配置连接数据库
func Open(cfg *common.Config) (*Store, error) {
	driver := cfg.Get("database", "driver")
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormLogger(),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接池失败: %v", err)
	}

	if driver == "sqlite" {
		// sqlite 只用一个连接，内存数据库的数据随连接存在
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("启用外键约束失败: %v", err)
		}
	} else {
		maxOpen := cfg.GetInt("database", "max_open_conns", 10)
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetMaxIdleConns(maxOpen)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	}

	store := &Store{
		db:             db,
		driver:         driver,
		logger:         common.NewComponentLogger("database"),
		bigLockTimeout: cfg.GetSeconds("database", "big_lock_timeout", 90),
		bigLockWait:    cfg.GetSeconds("database", "big_lock_wait", 5),
		queue:          newTicketQueue(),
		now:            func() time.Time { return time.Now().UTC() },
	}

	store.logger.Info("数据库连接成功: %s", driver)
	return store, nil
}

// dialectorFor 根据驱动构造 gorm 方言
func dialectorFor(cfg *common.Config) (gorm.Dialector, error) {
	server := cfg.Get("database", "server")
	login := cfg.Get("database", "login")
	passwd := cfg.Get("database", "passwd")
	name := cfg.Get("database", "database")
	ssl := cfg.GetBool("database", "ssl", false)
	sslCA := cfg.Get("database", "ssl_ca")

	switch cfg.Get("database", "driver") {
	case "sqlite":
		if name == "" {
			name = "roster.db"
		}
		separator := "?"
		if strings.Contains(name, "?") {
			separator = "&"
		}
		return sqlite.Open(name + separator + "_foreign_keys=1"), nil

	case "mysql":
		mysqlCfg := mysqldriver.NewConfig()
		mysqlCfg.User = login
		mysqlCfg.Passwd = passwd
		mysqlCfg.Net = "tcp"
		mysqlCfg.Addr = server
		mysqlCfg.DBName = name
		mysqlCfg.ParseTime = true
		mysqlCfg.Loc = time.UTC
		mysqlCfg.Params = map[string]string{"charset": "utf8mb4"}
		if ssl {
			tlsConfig, err := tlsConfigFor(sslCA)
			if err != nil {
				return nil, err
			}
			if err := mysqldriver.RegisterTLSConfig("roster", tlsConfig); err != nil {
				return nil, fmt.Errorf("注册数据库TLS配置失败: %v", err)
			}
			mysqlCfg.TLSConfig = "roster"
		}
		return mysql.Open(mysqlCfg.FormatDSN()), nil

	case "postgres":
		sslMode := "disable"
		if ssl {
			sslMode = "require"
			if sslCA != "" {
				sslMode = "verify-full sslrootcert=" + sslCA
			}
		}
		host, port := server, "5432"
		if idx := strings.LastIndex(server, ":"); idx != -1 {
			host, port = server[:idx], server[idx+1:]
		}
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			host, port, login, passwd, name, sslMode)
		return postgres.Open(dsn), nil
	}

	return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Get("database", "driver"))
}

// tlsConfigFor 构造数据库TLS配置，caFile 为空时使用系统证书
func tlsConfigFor(caFile string) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return tlsConfig, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("读取数据库CA证书失败: %v", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("数据库CA证书格式错误: %s", caFile)
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// gormLogger 按 Roster 日志级别设置 gorm 日志级别
func gormLogger() logger.Interface {
	switch common.GetLogLevelFromEnv() {
	case common.DEBUG:
		return logger.Default.LogMode(logger.Info)
	case common.WARN:
		return logger.Default.LogMode(logger.Warn)
	case common.ERROR:
		return logger.Default.LogMode(logger.Error)
	default:
		return logger.Default.LogMode(logger.Silent)
	}
}

// Driver 返回数据库驱动名称
func (s *Store) Driver() string {
	return s.driver
}

// SetClock 替换时钟，测试使用
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Now 返回记录库使用的当前时间
func (s *Store) Now() time.Time {
	return s.now()
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CheckConnection 检查数据库连接是否正常
func (s *Store) CheckConnection() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// InitSchema 创建表并写入种子数据，可重复执行
func (s *Store) InitSchema() error {
	if err := s.db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("创建数据表失败: %v", err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		seeds := []interface{}{
			&ViewDependency{ViewDependency: AnyDependency},
			&ACL{ACLName: AnyACL},
			&Lock{LockName: BigLockName},
			&Lock{LockName: MaintenanceLockName},
			&User{UserName: TreeExportUser, AccessLevel: record.AccessNoop},
		}
		for _, zoneType := range record.ZoneTypes {
			seeds = append(seeds, &ZoneType{ZoneType: zoneType})
		}
		for _, dataType := range record.DataTypes {
			seeds = append(seeds, &DataType{DataType: dataType})
		}
		for _, recordType := range record.RecordTypes() {
			seeds = append(seeds, &RecordType{RecordType: recordType})
		}

		for _, seed := range seeds {
			if err := tx.Where(seed).FirstOrCreate(seed).Error; err != nil {
				return fmt.Errorf("写入种子数据失败: %v", err)
			}
		}

		// 记录参数定义依赖记录类型和数据类型，最后写入
		for _, recordType := range record.RecordTypes() {
			for _, arg := range record.Registry[recordType].Args {
				definition := &RecordArgument{
					RecordType:       recordType,
					ArgumentName:     arg.Name,
					ArgumentOrder:    arg.Order,
					ArgumentDataType: arg.DataType,
				}
				if err := tx.Where(RecordArgument{RecordType: recordType, ArgumentName: arg.Name}).
					Assign(RecordArgument{ArgumentOrder: arg.Order, ArgumentDataType: arg.DataType}).
					FirstOrCreate(definition).Error; err != nil {
					return fmt.Errorf("写入记录参数定义失败: %v", err)
				}
			}
		}

		s.logger.Info("数据库初始化完成")
		return nil
	})
}
