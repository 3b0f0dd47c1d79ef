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

// core/exporter/tarball.go
// 配置树打包、查找与清理

package exporter

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dsnet/compress/bzip2"

	"Roster/core/common"
	"Roster/core/database"
)

const (
	tarballPrefix   = "dns_tree_"
	tarballSuffix   = ".tar.bz2"
	timestampLayout = "2006-01-02T15:04"
	snapshotPrefix  = "roster_snapshot-"
	snapshotSuffix  = ".json"
)

// TarballInfo 备份目录中的一个配置包
type TarballInfo struct {
	Path      string    `json:"path" yaml:"path"`
	AuditID   uint64    `json:"audit_id" yaml:"audit_id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Size      int64     `json:"size" yaml:"size"`
}

// TarballName dns_tree_<YYYY-MM-DDTHH:MM>-<audit_id>.tar.bz2
func TarballName(t time.Time, auditID uint64) string {
	return fmt.Sprintf("%s%s-%d%s", tarballPrefix, t.Format(timestampLayout), auditID, tarballSuffix)
}

// SnapshotName 包内数据库快照的文件名
func SnapshotName(auditID uint64) string {
	return fmt.Sprintf("%s%d%s", snapshotPrefix, auditID, snapshotSuffix)
}

// parseTarballName 解析配置包文件名中的时间与审计ID
func parseTarballName(name string) (time.Time, uint64, error) {
	if !strings.HasPrefix(name, tarballPrefix) || !strings.HasSuffix(name, tarballSuffix) {
		return time.Time{}, 0, common.NewError(common.KindExporterFileNameError, "Invalid tree filename %s", name)
	}
	middle := strings.TrimSuffix(strings.TrimPrefix(name, tarballPrefix), tarballSuffix)
	idx := strings.LastIndex(middle, "-")
	if idx == -1 {
		return time.Time{}, 0, common.NewError(common.KindExporterFileNameError, "Invalid tree filename %s", name)
	}
	ts, err := time.Parse(timestampLayout, middle[:idx])
	if err != nil {
		return time.Time{}, 0, common.NewError(common.KindExporterFileNameError, "Invalid timestamp in tree filename %s", name)
	}
	id, err := strconv.ParseUint(middle[idx+1:], 10, 64)
	if err != nil {
		return time.Time{}, 0, common.NewError(common.KindExporterFileNameError, "Invalid audit id in tree filename %s", name)
	}
	return ts, id, nil
}

func auditIDFromName(name string) (uint64, error) {
	_, id, err := parseTarballName(name)
	return id, err
}

// ListTarballs 列出备份目录中的配置包，审计ID大的在前，同一ID按时间倒序；
// 以 .tar.bz2 结尾但名称不合法的文件返回 ErrExporterFileName
func ListTarballs(backupDir string) ([]TarballInfo, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, common.WrapError(common.KindExporterListFileError, err, "Could not list %s", backupDir)
	}

	var tarballs []TarballInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), tarballSuffix) {
			continue
		}
		ts, id, err := parseTarballName(entry.Name())
		if err != nil {
			return nil, err
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		tarballs = append(tarballs, TarballInfo{
			Path:      filepath.Join(backupDir, entry.Name()),
			AuditID:   id,
			Timestamp: ts,
			Size:      info.Size(),
		})
	}

	sort.Slice(tarballs, func(i, j int) bool {
		if tarballs[i].AuditID != tarballs[j].AuditID {
			return tarballs[i].AuditID > tarballs[j].AuditID
		}
		return tarballs[i].Timestamp.After(tarballs[j].Timestamp)
	})
	return tarballs, nil
}

// FindNewestDnsTreeFilename 返回审计ID最大的配置包路径
func FindNewestDnsTreeFilename(backupDir string) (string, error) {
	tarballs, err := ListTarballs(backupDir)
	if err != nil {
		return "", err
	}
	if len(tarballs) == 0 {
		return "", common.NewError(common.KindExporterNoFileError, "No tree tarballs in %s", backupDir)
	}
	return tarballs[0].Path, nil
}

// CleanupOldTarballs 只保留最新的 keep 个配置包
func CleanupOldTarballs(backupDir string, keep int) error {
	tarballs, err := ListTarballs(backupDir)
	if err != nil {
		return err
	}
	if keep <= 0 || len(tarballs) <= keep {
		return nil
	}
	for _, t := range tarballs[keep:] {
		if err := os.Remove(t.Path); err != nil {
			return common.WrapError(common.KindExporterFileError, err, "Could not remove %s", t.Path)
		}
	}
	return nil
}

// PackTree 把目录打包为 tar.bz2；条目按路径排序，时间统一为导出时间
func PackTree(srcDir, tarball string, modTime time.Time) (err error) {
	if err := os.MkdirAll(filepath.Dir(tarball), 0755); err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not create %s", filepath.Dir(tarball))
	}
	tmp := tarball + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not create %s", tmp)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	bz, err := bzip2.NewWriter(f, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not start bzip2 stream")
	}
	tw := tar.NewWriter(bz)

	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil || rel == "." {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		hdr.ModTime = modTime
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "", ""
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(tw, in)
		return err
	})
	if err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not pack %s", srcDir)
	}

	if err = tw.Close(); err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not finish tar stream")
	}
	if err = bz.Close(); err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not finish bzip2 stream")
	}
	if err = f.Close(); err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not close %s", tmp)
	}
	if err = os.Rename(tmp, tarball); err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not move %s into place", tarball)
	}
	return nil
}

// walkTarball 依次读取配置包中的条目
func walkTarball(tarball string, fn func(hdr *tar.Header, r io.Reader) (bool, error)) error {
	f, err := os.Open(tarball)
	if err != nil {
		return common.WrapError(common.KindExporterNoFileError, err, "Could not open %s", tarball)
	}
	defer f.Close()

	bz, err := bzip2.NewReader(f, nil)
	if err != nil {
		return common.WrapError(common.KindExporterFileError, err, "Could not read %s", tarball)
	}
	defer bz.Close()

	tr := tar.NewReader(bz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return common.WrapError(common.KindExporterFileError, err, "Could not read %s", tarball)
		}
		done, err := fn(hdr, tr)
		if err != nil || done {
			return err
		}
	}
}

// ListTarballFiles 列出配置包中的文件
func ListTarballFiles(tarball string) ([]string, error) {
	var names []string
	err := walkTarball(tarball, func(hdr *tar.Header, _ io.Reader) (bool, error) {
		if hdr.Typeflag == tar.TypeReg {
			names = append(names, hdr.Name)
		}
		return false, nil
	})
	return names, err
}

// ReadTarballFile 读取配置包中的一个文件
func ReadTarballFile(tarball, name string) ([]byte, error) {
	var content []byte
	found := false
	err := walkTarball(tarball, func(hdr *tar.Header, r io.Reader) (bool, error) {
		if hdr.Name != name {
			return false, nil
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return true, common.WrapError(common.KindExporterFileError, err, "Could not read %s from %s", name, tarball)
		}
		content, found = data, true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.NewError(common.KindExporterNoFileError, "%s not found in %s", name, tarball)
	}
	return content, nil
}

// LoadSnapshot 读取配置包中的数据库快照，用于恢复
func LoadSnapshot(tarball string) (*database.RawData, error) {
	_, id, err := parseTarballName(filepath.Base(tarball))
	if err != nil {
		return nil, err
	}
	data, err := ReadTarballFile(tarball, SnapshotName(id))
	if err != nil {
		return nil, err
	}
	raw := &database.RawData{}
	if err := json.Unmarshal(data, raw); err != nil {
		return nil, common.WrapError(common.KindExporterFileError, err, "Could not decode snapshot in %s", tarball)
	}
	return raw, nil
}
