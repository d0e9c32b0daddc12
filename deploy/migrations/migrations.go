// Package migrations 内嵌运行存储所需的数据库变更脚本。
// 脚本按文件名排序依次执行，要求可以重复执行。
package migrations

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed *.sql
var files embed.FS

// Scripts 按文件名顺序返回所有迁移脚本的内容。
func Scripts() ([]string, error) {
	entries, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	scripts := make([]string, 0, len(entries))
	for _, name := range entries {
		data, err := files.ReadFile(name)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, string(data))
	}
	return scripts, nil
}
