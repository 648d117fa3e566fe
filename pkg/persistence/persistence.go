package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

var persistLog = logrus.WithField("component", "persistence")

// ErrNotExists 表示数据不存在
var ErrNotExists = fmt.Errorf("persistence data not exists")

var nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SafeName 文件名安全化
func SafeName(s string) string {
	return nameSanitizer.ReplaceAllString(s, "_")
}

// Dir 一个目录下的 JSON 文件集合，写入通过 tmp+rename 保证原子性
type Dir struct {
	path string
}

// OpenDir 打开（必要时创建）目录
func OpenDir(path string) (*Dir, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("persistence: dir path is required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: mkdir %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

func (d *Dir) Path() string { return d.path }

func (d *Dir) file(name string) string {
	return filepath.Join(d.path, SafeName(name))
}

// Write 以缩进 JSON 写入 name
func (d *Dir) Write(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	path := d.file(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	persistLog.Debugf("write %s", path)
	return os.Rename(tmp, path)
}

// Read 读取 name 到 v；文件不存在或为空返回 ErrNotExists
func (d *Dir) Read(name string, v any) error {
	b, err := os.ReadFile(d.file(name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return err
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return json.Unmarshal(b, v)
}

// List 按文件名排序列出带指定前缀、以 .json 结尾的文件
func (d *Dir) List(prefix string) ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || !strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Store 单个键的存取
type Store interface {
	Save(data any) error
	Load(data any) error
}

type fileStore struct {
	dir  *Dir
	name string
}

// NewStore 返回绑定到 <dir>/<key>.json 的 Store
func (d *Dir) NewStore(key string) Store {
	return &fileStore{dir: d, name: key + ".json"}
}

func (s *fileStore) Save(data any) error { return s.dir.Write(s.name, data) }
func (s *fileStore) Load(data any) error { return s.dir.Read(s.name, data) }
