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

// core/common/env.go
// 环境变量处理

package common

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// 环境变量键名常量
const (
	// ConfigPathEnvKey 配置文件路径环境变量
	ConfigPathEnvKey = "ROSTER_CONFIG"
	// DaemonEnvKey 守护进程子进程标记
	DaemonEnvKey = "ROSTER_DAEMON"
	// DefaultConfigPath 默认配置文件路径
	DefaultConfigPath = "config/roster.conf"
)

// ConfigPathFromEnv 获取配置文件路径，未设置时使用默认路径
func ConfigPathFromEnv() string {
	return GetEnv(ConfigPathEnvKey, DefaultConfigPath)
}

// ConfigEnvKey 配置项 [section] key 对应的环境变量名 ROSTER_<SECTION>_<KEY>
func ConfigEnvKey(section, key string) string {
	return "ROSTER_" + strings.ToUpper(section) + "_" + strings.ToUpper(key)
}

// EnvOverrides 返回当前被环境变量覆盖的配置项，形如 "[server] port"，已排序
func EnvOverrides(c *Config) []string {
	var overridden []string
	for _, section := range c.Sections() {
		for key := range c.GetSection(section) {
			if _, ok := os.LookupEnv(ConfigEnvKey(section, key)); ok {
				overridden = append(overridden, fmt.Sprintf("[%s] %s", section, key))
			}
		}
	}
	sort.Strings(overridden)
	return overridden
}

// GetEnv 获取环境变量值，如果不存在则返回默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvBool 获取布尔类型环境变量，无法解析时返回默认值
func GetEnvBool(key string, defaultValue bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}
