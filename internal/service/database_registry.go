package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DatabaseRef 唯一标识一个热力学数据库（反应网络+平衡常数），
// 对本引擎不透明，只作为选择子传给求解器。
type DatabaseRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// DatabaseRegistry 数据库名到路径的只读解析缓存。
// 懒加载，缓存项初始化后只读，可被并发批次共享。
type DatabaseRegistry struct {
	dir         string
	defaultName string

	mu    sync.RWMutex
	cache map[string]DatabaseRef
}

func NewDatabaseRegistry(dir, defaultName string) *DatabaseRegistry {
	return &DatabaseRegistry{
		dir:         dir,
		defaultName: defaultName,
		cache:       map[string]DatabaseRef{},
	}
}

// Resolve 把数据库名或路径解析为 DatabaseRef。
// 绝对/相对路径直接校验存在性；裸名在配置目录下找 <name>.dat。
// 解析结果缓存，同一批次内多次求解拿到一致的引用。
func (r *DatabaseRegistry) Resolve(nameOrPath string) (DatabaseRef, error) {
	if nameOrPath == "" {
		nameOrPath = r.defaultName
	}

	r.mu.RLock()
	if ref, ok := r.cache[nameOrPath]; ok {
		r.mu.RUnlock()
		return ref, nil
	}
	r.mu.RUnlock()

	ref, err := r.resolve(nameOrPath)
	if err != nil {
		return DatabaseRef{}, err
	}

	r.mu.Lock()
	r.cache[nameOrPath] = ref
	r.mu.Unlock()
	return ref, nil
}

func (r *DatabaseRegistry) resolve(nameOrPath string) (DatabaseRef, error) {
	if strings.ContainsRune(nameOrPath, os.PathSeparator) || strings.HasSuffix(nameOrPath, ".dat") {
		if _, err := os.Stat(nameOrPath); err != nil {
			return DatabaseRef{}, fmt.Errorf("数据库文件不存在: %s: %w", nameOrPath, err)
		}
		name := strings.TrimSuffix(filepath.Base(nameOrPath), ".dat")
		return DatabaseRef{Name: name, Path: nameOrPath}, nil
	}

	path := filepath.Join(r.dir, nameOrPath+".dat")
	if _, err := os.Stat(path); err != nil {
		names, _ := r.List()
		return DatabaseRef{}, fmt.Errorf("数据库 %q 不存在（可用: %s）: %w",
			nameOrPath, strings.Join(names, ", "), err)
	}
	return DatabaseRef{Name: nameOrPath, Path: path}, nil
}

// Default 返回配置的默认数据库
func (r *DatabaseRegistry) Default() (DatabaseRef, error) {
	return r.Resolve(r.defaultName)
}

// List 列出配置目录下全部数据库名
func (r *DatabaseRegistry) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(r.dir, "*.dat"))
	if err != nil {
		return nil, fmt.Errorf("扫描数据库目录失败: %w", err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".dat"))
	}
	sort.Strings(names)
	return names, nil
}
