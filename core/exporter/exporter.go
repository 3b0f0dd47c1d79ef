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

// core/exporter/exporter.go
// BIND配置树导出：快照 -> 烹饪 -> 每台服务器的配置树 -> tar.bz2

package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"Roster/core/bind"
	"Roster/core/bind/namedconf"
	"Roster/core/common"
	"Roster/core/database"
	"Roster/core/servercheck"
)

// ServerChecker 提供 .info 中的版本与工具信息
type ServerChecker interface {
	CheckServer(ctx context.Context, server database.DnsServer) (*servercheck.ServerStatus, error)
}

// ExportResult 一次导出的结果
type ExportResult struct {
	AuditID        uint64   `json:"audit_id" yaml:"audit_id"`
	Tarball        string   `json:"tarball" yaml:"tarball"`
	Servers        []string `json:"servers" yaml:"servers"`
	ChangedServers []string `json:"changed_servers" yaml:"changed_servers"`
	ZoneFiles      int      `json:"zone_files" yaml:"zone_files"`
	Skipped        bool     `json:"skipped" yaml:"skipped"`
}

// Exporter 配置树导出器
type Exporter struct {
	store         *database.Store
	rootConfigDir string
	backupDir     string
	namedDir      string
	rootHintFile  string
	maxTarballs   int
	validator     *namedconf.Validator
	zoneChecker   *bind.ZoneChecker
	checker       ServerChecker
	logger        *common.Logger
	now           func() time.Time
}

// NewExporter 按 [exporter] 配置创建导出器；named_checkconf 与 named_checkzone 未配置时跳过对应检查
func NewExporter(store *database.Store, cfg *common.Config) *Exporter {
	e := &Exporter{
		store:         store,
		rootConfigDir: cfg.Get("exporter", "root_config_dir"),
		backupDir:     cfg.Get("exporter", "backup_dir"),
		namedDir:      cfg.Get("exporter", "named_dir"),
		rootHintFile:  cfg.Get("exporter", "root_hint_file"),
		maxTarballs:   cfg.GetInt("exporter", "max_tarballs", 0),
		logger:        common.NewComponentLogger("exporter"),
		now:           time.Now,
	}
	if e.namedDir == "" {
		e.namedDir = "named"
	}
	if path := cfg.Get("exporter", "named_checkconf"); path != "" {
		e.validator = namedconf.NewValidator(path)
	}
	if command := cfg.Get("exporter", "named_checkzone"); command != "" {
		e.zoneChecker = bind.NewZoneChecker(command)
	}
	return e
}

// SetServerChecker 设置服务器检查器，未设置时 .info 中版本为 UNKNOWN，工具均为 false
func (e *Exporter) SetServerChecker(checker ServerChecker) {
	e.checker = checker
}

// SetClock 替换时钟，用于测试
func (e *Exporter) SetClock(now func() time.Time) {
	e.now = now
}

// zoneFile 一个服务器组中待写入的区域文件
type zoneFile struct {
	view    string
	zone    string
	origin  string
	content string
}

// ExportAllBindTrees 导出所有服务器的配置树并打包；force 为 false 且最新的包已对应当前审计ID时不重复导出
func (e *Exporter) ExportAllBindTrees(ctx context.Context, force bool) (*ExportResult, error) {
	raw, err := e.store.GetRawData(ctx)
	if err != nil {
		return nil, err
	}
	if raw.AuditID == 0 {
		return nil, common.NewError(common.KindExporterAuditIDError, "Audit log is empty, nothing to export")
	}
	result := &ExportResult{AuditID: raw.AuditID, Servers: []string{}, ChangedServers: []string{}}

	if !force {
		newest, err := FindNewestDnsTreeFilename(e.backupDir)
		switch {
		case err == nil:
			if id, _ := auditIDFromName(filepath.Base(newest)); id == raw.AuditID {
				e.logger.Info("配置树 %s 已对应审计ID %d，跳过导出", newest, raw.AuditID)
				result.Tarball = newest
				result.Skipped = true
				return result, nil
			}
		case errors.Is(err, common.ErrNoFile):
		default:
			return nil, err
		}
	}

	cooked, err := bind.Cook(raw)
	if err != nil {
		return nil, err
	}

	tempDir := filepath.Join(filepath.Dir(filepath.Clean(e.rootConfigDir)), ".roster-"+uuid.NewString())
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, common.WrapError(common.KindExporterFileError, err, "Could not create %s", tempDir)
	}
	defer os.RemoveAll(tempDir)

	serverSets, err := serverSetMap(cooked)
	if err != nil {
		return nil, err
	}

	zoneFiles := make(map[string][]zoneFile)
	for _, setName := range cooked.SetNames() {
		files, err := e.makeZoneFiles(cooked, setName)
		if err != nil {
			return nil, err
		}
		zoneFiles[setName] = files
	}

	for _, serverName := range sortedServerNames(serverSets) {
		setName := serverSets[serverName]
		conf, err := namedconf.MakeNamedConf(cooked, setName)
		if err != nil {
			return nil, err
		}
		server := cooked.Servers[serverName]
		if err := e.writeServerTree(ctx, tempDir, server, conf, zoneFiles[setName]); err != nil {
			return nil, err
		}
		result.Servers = append(result.Servers, serverName)
		result.ZoneFiles += len(zoneFiles[setName])

		changes, err := namedconf.DiffTrees(
			filepath.Join(e.rootConfigDir, serverName),
			filepath.Join(tempDir, serverName))
		if err != nil {
			return nil, common.WrapError(common.KindExporterFileError, err, "Could not compare tree of %s", serverName)
		}
		if len(changes) > 0 {
			result.ChangedServers = append(result.ChangedServers, serverName)
			for _, c := range changes {
				e.logger.Info("服务器 %s 的 %s %s: %+d -%d", serverName, c.Path, c.Status, c.Stats.Added, c.Stats.Removed)
			}
		}
	}

	if err := e.writeSnapshot(tempDir, raw); err != nil {
		return nil, err
	}
	if err := e.replaceTree(tempDir); err != nil {
		return nil, err
	}

	tarball := filepath.Join(e.backupDir, TarballName(e.now(), raw.AuditID))
	if err := PackTree(e.rootConfigDir, tarball, e.now()); err != nil {
		return nil, err
	}
	result.Tarball = tarball
	e.logger.Info("导出完成: 审计ID %d, %d 台服务器, %d 个区域文件, 打包为 %s",
		raw.AuditID, len(result.Servers), result.ZoneFiles, tarball)

	if e.maxTarballs > 0 {
		if err := CleanupOldTarballs(e.backupDir, e.maxTarballs); err != nil {
			e.logger.Warn("清理旧配置包失败: %v", err)
		}
	}
	return result, nil
}

// serverSetMap 服务器到服务器组的映射，一台服务器只能属于一个组
func serverSetMap(cooked *bind.Cooked) (map[string]string, error) {
	servers := make(map[string]string)
	for _, setName := range cooked.SetNames() {
		for _, serverName := range cooked.Sets[setName].DnsServers {
			if other, ok := servers[serverName]; ok && other != setName {
				return nil, common.NewError(common.KindCoreError,
					"DNS server %s is assigned to both %s and %s", serverName, other, setName)
			}
			servers[serverName] = setName
		}
	}
	return servers, nil
}

func sortedServerNames(servers map[string]string) []string {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// makeZoneFiles 同组服务器共用同一份区域文件
func (e *Exporter) makeZoneFiles(cooked *bind.Cooked, setName string) ([]zoneFile, error) {
	set := cooked.Sets[setName]
	var files []zoneFile
	for _, viewName := range set.ViewNames() {
		view := set.Views[viewName]
		for _, zoneName := range view.ZoneNames() {
			zone := view.Zones[zoneName]
			if err := bind.CheckZoneSOA(zone, zoneName, viewName); err != nil {
				return nil, err
			}
			content, err := bind.MakeZoneString(zone.Records, zone.ZoneOrigin, cooked.ArgumentDefs, zoneName, viewName)
			if err != nil {
				return nil, err
			}
			files = append(files, zoneFile{view: viewName, zone: zoneName, origin: zone.ZoneOrigin, content: content})
		}
	}
	return files, nil
}

func (e *Exporter) writeSnapshot(dir string, raw *database.RawData) error {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not encode snapshot")
	}
	path := filepath.Join(dir, SnapshotName(raw.AuditID))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not write %s", path)
	}
	return nil
}

// replaceTree 用新树替换旧树：旧树先移走，新树改名到位后再删除旧树
func (e *Exporter) replaceTree(tempDir string) error {
	root := filepath.Clean(e.rootConfigDir)
	old := ""
	if _, err := os.Stat(root); err == nil {
		old = fmt.Sprintf("%s.old-%s", root, uuid.NewString())
		if err := os.Rename(root, old); err != nil {
			return common.WrapError(common.KindExporterFileError, err, "Could not move %s aside", root)
		}
	}
	if err := os.Rename(tempDir, root); err != nil {
		if old != "" {
			if rbErr := os.Rename(old, root); rbErr != nil {
				e.logger.Error("恢复旧配置树失败: %v", rbErr)
			}
		}
		return common.WrapError(common.KindExporterFileError, err, "Could not move new tree into %s", root)
	}
	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			e.logger.Warn("删除旧配置树 %s 失败: %v", old, err)
		}
	}
	return nil
}
