package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 配置格式。
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Option 配置 Source。
type Option func(*options)

type options struct {
	delim string
	tag   string
}

// WithDelim 键分隔符，默认 "."。
func WithDelim(delim string) Option {
	return func(o *options) {
		if delim != "" {
			o.delim = delim
		}
	}
}

// WithTag Unmarshal 使用的结构体标签，默认 "koanf"。
func WithTag(tag string) Option {
	return func(o *options) {
		if tag != "" {
			o.tag = tag
		}
	}
}

// Source 一份已加载的配置。并发安全。
type Source struct {
	k      atomic.Pointer[koanf.Koanf]
	path   string
	format Format
	opts   options
	// reloadMu 串行化 Reload，避免并发重载时旧内容覆盖新内容
	reloadMu sync.Mutex
}

// Load 从文件加载配置，格式由扩展名决定（.yaml/.yml/.json）。
func Load(path string, opts ...Option) (*Source, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	s := newSource(path, format, opts)
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// FromBytes 从内存数据加载配置，空数据得到空配置。
func FromBytes(data []byte, format Format, opts ...Option) (*Source, error) {
	if format != FormatYAML && format != FormatJSON {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	s := newSource("", format, opts)
	k, err := parse(data, format, s.opts.delim)
	if err != nil {
		return nil, err
	}
	s.k.Store(k)
	return s, nil
}

func newSource(path string, format Format, opts []Option) *Source {
	o := options{delim: ".", tag: "koanf"}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Source{path: path, format: format, opts: o}
}

// Koanf 返回当前配置的 koanf 实例。
func (s *Source) Koanf() *koanf.Koanf {
	return s.k.Load()
}

// Unmarshal 把 path 下的配置解到 target，path 为空表示整个配置。
func (s *Source) Unmarshal(path string, target any) error {
	if err := s.k.Load().UnmarshalWithConf(path, target, koanf.UnmarshalConf{Tag: s.opts.tag}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

// Reload 重新读取文件。读取或解析失败时保留原配置。
func (s *Source) Reload() error {
	if s.path == "" {
		return ErrNotFileBacked
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	k, err := parse(data, s.format, s.opts.delim)
	if err != nil {
		return err
	}
	s.k.Store(k)
	return nil
}

// Path 配置文件路径，FromBytes 创建的为空。
func (s *Source) Path() string {
	return s.path
}

// Format 配置格式。
func (s *Source) Format() Format {
	return s.format
}

// FormatOf 根据扩展名判断格式。
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}

func parse(data []byte, format Format, delim string) (*koanf.Koanf, error) {
	k := koanf.New(delim)
	if len(data) == 0 {
		return k, nil
	}
	var p koanf.Parser
	switch format {
	case FormatYAML:
		p = yaml.Parser()
	case FormatJSON:
		p = json.Parser()
	default:
		return nil, ErrUnsupportedFormat
	}
	if err := k.Load(rawbytes.Provider(data), p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return k, nil
}
