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

// core/common/errors_test.go
// 错误类型测试

package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("添加记录失败: %w", NewError(KindCoreError, "Duplicate record"))

	if !errors.Is(err, ErrCore) {
		t.Errorf("errors.Is(err, ErrCore) 应该为 true")
	}
	if errors.Is(err, ErrInvalidInput) {
		t.Errorf("errors.Is(err, ErrInvalidInput) 应该为 false")
	}
	if got := KindOf(err); got != KindCoreError {
		t.Errorf("KindOf() = %q, want %q", got, KindCoreError)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestWrapError(t *testing.T) {
	base := errors.New("disk full")
	err := WrapError(KindExporterFileError, base, "写入 %s 失败", "named.conf")

	if !errors.Is(err, base) {
		t.Errorf("应该保留底层错误")
	}
	if !errors.Is(err, ErrExporterFile) {
		t.Errorf("应该匹配 ErrExporterFile")
	}
	if got, want := err.Error(), "写入 named.conf 失败: disk full"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
