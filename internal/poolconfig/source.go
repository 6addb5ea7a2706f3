package poolconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	structuredExtensions = []string{".yml", ".yaml"}
	templateSuffixes     = []string{".tmpl", ".tpl", ".erb"}
)

// Source produces a RawConfig.
type Source interface {
	Load() (RawConfig, error)
}

// MapSource is an already-built configuration used as-is.
type MapSource RawConfig

// Load returns a copy of the mapping.
func (m MapSource) Load() (RawConfig, error) {
	return RawConfig(m).Clone(), nil
}

func (m MapSource) String() string {
	return "memory"
}

// FileSource loads YAML from Path. When Path ends in a template suffix the
// contents are passed through Preprocessor (TemplatePreprocessor when nil)
// before parsing.
type FileSource struct {
	Path         string
	Preprocessor Preprocessor
}

// NewFileSource returns a FileSource using the default template preprocessor.
func NewFileSource(path string) FileSource {
	return FileSource{Path: path}
}

func (s FileSource) String() string {
	return s.Path
}

// Templated reports whether the path names a templated file.
func (s FileSource) Templated() bool {
	_, templated := splitTemplateSuffix(s.Path)
	return templated
}

// Load reads, optionally preprocesses, and parses the file. Every failure is
// a *LoadError.
func (s FileSource) Load() (RawConfig, error) {
	base, templated := splitTemplateSuffix(s.Path)
	if !hasStructuredExtension(base) {
		return nil, &LoadError{Source: s.Path, Err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(base))}
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, &LoadError{Source: s.Path, Err: fmt.Errorf("read file: %w", err)}
	}

	if templated {
		pre := s.Preprocessor
		if pre == nil {
			pre = TemplatePreprocessor{}
		}
		data, err = pre.Process(s.Path, data)
		if err != nil {
			return nil, &LoadError{Source: s.Path, Err: fmt.Errorf("render template: %w", err)}
		}
	}

	raw, err := Parse(data)
	if err != nil {
		return nil, &LoadError{Source: s.Path, Err: err}
	}
	return raw, nil
}

// SourceFor adapts the accepted source shapes: a Source, a RawConfig, a
// generic mapping, or a file path.
func SourceFor(v any) (Source, error) {
	switch typed := v.(type) {
	case Source:
		return typed, nil
	case RawConfig:
		return MapSource(typed), nil
	case map[string]any:
		raw, err := FromMap(typed)
		if err != nil {
			return nil, &LoadError{Source: "memory", Err: err}
		}
		return MapSource(raw), nil
	case string:
		return NewFileSource(typed), nil
	default:
		return nil, &LoadError{Source: fmt.Sprintf("%T", v), Err: ErrUnsupportedFormat}
	}
}

// Describe returns a human readable name for src.
func Describe(src Source) string {
	if s, ok := src.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", src)
}

func splitTemplateSuffix(path string) (string, bool) {
	lower := strings.ToLower(path)
	for _, suffix := range templateSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return path[:len(path)-len(suffix)], true
		}
	}
	return path, false
}

func hasStructuredExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range structuredExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}
