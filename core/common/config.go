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

// core/common/config.go
package common

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// 默认配置模板
const DefaultConfigTemplate = `# Roster Configuration File
# Format: INI
[database]
# Database driver: sqlite, mysql or postgres
driver = sqlite
# Database host (mysql/postgres)
server = localhost
login = roster
passwd =
# Database name, or file path for sqlite
database = roster.db
# Use TLS for the database connection (mysql/postgres)
ssl = false
ssl_ca =
# Whole-database lock: stale after big_lock_timeout seconds, writers retry every big_lock_wait seconds
big_lock_timeout = 90
big_lock_wait = 5
max_open_conns = 10

[server]
host = 127.0.0.1
port = 8000
# Infinite credentials are re-issued after inf_renew_time seconds
inf_renew_time = 432000
# Idle per-user cores are dropped after core_die_time seconds, checked every clean_time seconds
core_die_time = 1200
clean_time = 60
# Failed logins sleep attempts * get_credentials_wait_increment seconds
get_credentials_wait_increment = 1
# The server refuses to start while server_killswitch is off
server_killswitch = true
ssl_cert_file =
ssl_key_file =
# Requests per client IP and path within rate_limit_window seconds, 0 disables the limit
rate_limit = 600
rate_limit_window = 60
rate_limit_max_failures = 10
rate_limit_ban_time = 300
# Request timeouts in seconds
request_timeout = 10
get_credentials_timeout = 60
core_run_timeout = 300
lock_file = rosterd.pid
log_level = INFO
log_dir = log
log_max_size = 10MB
log_max_files = 10

[exporter]
backup_dir = backup
root_config_dir = root_config
named_dir = named
# Optional root hints copied to named/named.ca
root_hint_file =
# Optional named-checkconf binary, used to write named.conf.a
named_checkconf =

[credentials]
exp_time = 3600
# ldap, fakeldap or local
authentication_method = local
secret = change-this-roster-credential-secret

[ldap]
server = ldaps://localhost:636
binddn = uid=%s,ou=People,dc=example,dc=com
tls = true

[fakeldap]
users =
`

// Config 存储配置信息
type Config struct {
	mu       sync.RWMutex
	sections map[string]map[string]string
}

// 全局配置实例
var (
	globalConfig   *Config
	globalConfigMu sync.RWMutex
)

// NewConfig 创建只包含默认值的配置
func NewConfig() *Config {
	config := &Config{
		sections: make(map[string]map[string]string),
	}
	config.applyDefaults()
	return config
}

// LoadConfig 加载配置文件并设置为全局配置，文件不存在时写入默认模板
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		NewLogger().Info("配置文件不存在: %s，正在创建默认配置", configPath)

		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("创建配置目录失败: %v", err)
		}
		if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate), 0600); err != nil {
			return nil, fmt.Errorf("创建默认配置文件失败: %v", err)
		}
		NewLogger().Info("默认配置文件创建成功")
	}

	config, err := LoadConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	SetGlobalConfig(config)
	return config, nil
}

// LoadConfigFile 读取并解析配置文件
func LoadConfigFile(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %v", err)
	}
	defer file.Close()

	return ParseConfig(file)
}

// ParseConfig 解析INI格式配置
func ParseConfig(r io.Reader) (*Config, error) {
	config := &Config{
		sections: make(map[string]map[string]string),
	}

	var currentSection string

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// 跳过注释和空行
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		// 处理节 [section]
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			if _, exists := config.sections[currentSection]; !exists {
				config.sections[currentSection] = make(map[string]string)
			}
			continue
		}

		idx := strings.Index(line, "=")
		if idx == -1 {
			return nil, fmt.Errorf("配置文件第%d行格式错误: %s", lineNo, line)
		}
		if currentSection == "" {
			return nil, fmt.Errorf("配置文件第%d行不属于任何节", lineNo)
		}

		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		config.sections[currentSection][key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	config.applyDefaults()
	return config, nil
}

// applyDefaults 设置默认配置值
func (c *Config) applyDefaults() {
	defaults := map[string]map[string]string{
		"database": {
			"driver":           "sqlite",
			"database":         "roster.db",
			"ssl":              "false",
			"big_lock_timeout": "90",
			"big_lock_wait":    "5",
			"max_open_conns":   "10",
		},
		"server": {
			"host":                           "127.0.0.1",
			"port":                           "8000",
			"inf_renew_time":                 "432000",
			"core_die_time":                  "1200",
			"clean_time":                     "60",
			"get_credentials_wait_increment": "1",
			"server_killswitch":              "true",
			"rate_limit":                     "600",
			"rate_limit_window":              "60",
			"rate_limit_max_failures":        "10",
			"rate_limit_ban_time":            "300",
			"request_timeout":                "10",
			"get_credentials_timeout":        "60",
			"core_run_timeout":               "300",
			"lock_file":                      "rosterd.pid",
			"log_level":                      "INFO",
			"log_dir":                        DefaultLogDir,
			"log_max_size":                   "10MB",
			"log_max_files":                  "10",
			"log_compress":                   "false",
		},
		"exporter": {
			"backup_dir":      "backup",
			"root_config_dir": "root_config",
			"named_dir":       "named",
			"max_tarballs":    "0",
		},
		"credentials": {
			"exp_time":              "3600",
			"authentication_method": "local",
		},
		"ldap": {
			"tls": "true",
		},
		"fakeldap": {},
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for section, values := range defaults {
		if _, exists := c.sections[section]; !exists {
			c.sections[section] = make(map[string]string)
		}
		for key, value := range values {
			if _, exists := c.sections[section][key]; !exists {
				c.sections[section][key] = value
			}
		}
	}
}

// Get 获取配置值，环境变量 ROSTER_<SECTION>_<KEY> 优先
func (c *Config) Get(section, key string) string {
	section = strings.ToLower(section)
	key = strings.ToLower(key)
	if envValue, ok := os.LookupEnv(ConfigEnvKey(section, key)); ok {
		return envValue
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if sectionMap, exists := c.sections[section]; exists {
		return sectionMap[key]
	}
	return ""
}

// Set 设置配置值
func (c *Config) Set(section, key, value string) {
	section = strings.ToLower(section)
	key = strings.ToLower(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.sections[section]; !exists {
		c.sections[section] = make(map[string]string)
	}
	c.sections[section][key] = value
}

// GetInt 获取整数类型的配置值
func (c *Config) GetInt(section, key string, defaultVal int) int {
	value := c.Get(section, key)
	if value == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		NewLogger().Warn("配置项 [%s] %s 不是整数: %s，使用默认值 %d", section, key, value, defaultVal)
		return defaultVal
	}
	return intVal
}

// GetBool 获取布尔类型的配置值
func (c *Config) GetBool(section, key string, defaultVal bool) bool {
	value := c.Get(section, key)
	if value == "" {
		return defaultVal
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}

// GetSeconds 获取以秒为单位的时长配置
func (c *Config) GetSeconds(section, key string, defaultVal int) time.Duration {
	return time.Duration(c.GetInt(section, key, defaultVal)) * time.Second
}

// GetSection 获取指定节的配置副本
func (c *Config) GetSection(section string) map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]string)
	for key, value := range c.sections[strings.ToLower(section)] {
		result[key] = value
	}
	return result
}

// Sections 返回所有节名（已排序）
func (c *Config) Sections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.sections))
	for name := range c.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	switch c.Get("database", "driver") {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Get("database", "driver"))
	}

	port := c.GetInt("server", "port", 0)
	if port < 1 || port > 65535 {
		return fmt.Errorf("无效的服务端口: %d", port)
	}

	switch c.Get("credentials", "authentication_method") {
	case "ldap", "fakeldap", "local":
	default:
		return fmt.Errorf("不支持的认证方式: %s", c.Get("credentials", "authentication_method"))
	}

	if (c.Get("server", "ssl_cert_file") == "") != (c.Get("server", "ssl_key_file") == "") {
		return fmt.Errorf("ssl_cert_file 和 ssl_key_file 必须同时配置")
	}

	for _, key := range []string{"big_lock_timeout", "big_lock_wait"} {
		if c.GetInt("database", key, 0) <= 0 {
			return fmt.Errorf("[database] %s 必须为正整数", key)
		}
	}

	return nil
}

// SetGlobalConfig 设置全局配置
func SetGlobalConfig(config *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = config
	if config != nil {
		SetGlobalLevel(ParseLogLevel(config.Get("server", "log_level")))
	}
}

// GlobalConfig 获取全局配置，未加载时返回默认配置
func GlobalConfig() *Config {
	globalConfigMu.RLock()
	config := globalConfig
	globalConfigMu.RUnlock()

	if config == nil {
		config = NewConfig()
		SetGlobalConfig(config)
	}
	return config
}

// GetConfig 获取全局配置值
func GetConfig(section, key string) string {
	return GlobalConfig().Get(section, key)
}

// GetConfigInt 获取全局整数配置值
func GetConfigInt(section, key string, defaultVal int) int {
	return GlobalConfig().GetInt(section, key, defaultVal)
}

// GetConfigBool 获取全局布尔配置值
func GetConfigBool(section, key string, defaultVal bool) bool {
	return GlobalConfig().GetBool(section, key, defaultVal)
}
