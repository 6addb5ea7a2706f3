package poolconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestFileSourceLoadsYAML(t *testing.T) {
	raw, err := NewFileSource(filepath.Join("testdata", "resque-pool.yml")).Load()
	require.NoError(t, err)

	assert.Equal(t, Count(1), raw["foo"])
	assert.Equal(t, map[string]int{"bar": 5, "foo,bar": 3}, raw["test"].Block)
	assert.Equal(t, map[string]int{"baz": 23, "foo,bar": 4}, raw["development"].Block)

	assert.Equal(t, Effective{"foo": 1, "bar": 5, "foo,bar": 3}, Merge(raw, "test"))
	assert.Equal(t, Effective{"foo": 1, "baz": 23, "foo,bar": 4}, Merge(raw, "development"))
	assert.Equal(t, Effective{"foo": 1}, Merge(raw, ""))
}

func TestFileSourceRendersTemplates(t *testing.T) {
	t.Setenv("POOL_TEST_BAR_WORKERS", "")

	src := NewFileSource(filepath.Join("testdata", "resque-pool-custom.yml.erb"))
	require.True(t, src.Templated())

	raw, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, Count(2), raw["foo"])
	assert.Equal(t, Count(3), raw["bar"])
}

func TestFileSourceTemplateReadsEnvironment(t *testing.T) {
	t.Setenv("POOL_TEST_BAR_WORKERS", "7")

	raw, err := NewFileSource(filepath.Join("testdata", "resque-pool-custom.yml.erb")).Load()
	require.NoError(t, err)
	assert.Equal(t, Count(7), raw["bar"])
}

func TestFileSourceCustomPreprocessor(t *testing.T) {
	path := writeFile(t, "pool.yml.tmpl", "ignored")
	src := FileSource{
		Path: path,
		Preprocessor: PreprocessorFunc(func(name string, _ []byte) ([]byte, error) {
			assert.Equal(t, path, name)
			return []byte("foo: 4\n"), nil
		}),
	}

	raw, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, RawConfig{"foo": Count(4)}, raw)
}

func TestFileSourceSkipsPreprocessorForPlainYAML(t *testing.T) {
	path := writeFile(t, "pool.yaml", "foo: 1\n")
	src := FileSource{
		Path: path,
		Preprocessor: PreprocessorFunc(func(string, []byte) ([]byte, error) {
			return nil, errors.New("should not run")
		}),
	}

	raw, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, RawConfig{"foo": Count(1)}, raw)
}

func TestFileSourceErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.yml") },
			wantErr: os.ErrNotExist,
		},
		{
			name:    "unsupported extension",
			path:    func(t *testing.T) string { return writeFile(t, "pool.json", "{}") },
			wantErr: ErrUnsupportedFormat,
		},
		{
			name:    "negative count",
			path:    func(t *testing.T) string { return writeFile(t, "pool.yml", "foo: -1\n") },
			wantErr: ErrInvalidValue,
		},
		{
			name:    "non integer count",
			path:    func(t *testing.T) string { return writeFile(t, "pool.yml", "foo: many\n") },
			wantErr: ErrInvalidValue,
		},
		{
			name: "nested environment block",
			path: func(t *testing.T) string {
				return writeFile(t, "pool.yml", "test:\n  inner:\n    foo: 1\n")
			},
			wantErr: ErrNestingTooDeep,
		},
		{
			name:    "malformed yaml",
			path:    func(t *testing.T) string { return writeFile(t, "pool.yml", "foo: [1\n") },
			wantErr: ErrConfigLoad,
		},
		{
			name:    "top level list",
			path:    func(t *testing.T) string { return writeFile(t, "pool.yml", "- foo\n") },
			wantErr: ErrConfigLoad,
		},
		{
			name:    "broken template",
			path:    func(t *testing.T) string { return writeFile(t, "pool.yml.tmpl", "foo: {{ nope }}\n") },
			wantErr: ErrConfigLoad,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := tc.path(t)
			_, err := NewFileSource(path).Load()
			require.Error(t, err)

			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, path, loadErr.Source)
			assert.ErrorIs(t, err, ErrConfigLoad)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestParseEdgeCases(t *testing.T) {
	t.Run("empty document", func(t *testing.T) {
		raw, err := Parse(nil)
		require.NoError(t, err)
		assert.Empty(t, raw)
	})

	t.Run("null block is empty", func(t *testing.T) {
		raw, err := Parse([]byte("foo: 2\ntest:\n"))
		require.NoError(t, err)
		assert.True(t, raw["test"].IsBlock())
		assert.Equal(t, Effective{"foo": 2}, Merge(raw, "test"))
	})

	t.Run("anchors", func(t *testing.T) {
		raw, err := Parse([]byte("base: &base\n  foo: 1\ntest: *base\n"))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"foo": 1}, raw["test"].Block)
	})

	t.Run("duplicate keys", func(t *testing.T) {
		_, err := Parse([]byte("foo: 1\nfoo: 2\n"))
		require.Error(t, err)
	})

	t.Run("merge key inside a block", func(t *testing.T) {
		raw, err := Parse([]byte("foo: 1\nbase: &base\n  bar: 2\n  baz: 9\ntest:\n  <<: *base\n  baz: 3\n"))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"bar": 2, "baz": 3}, raw["test"].Block)
		assert.Equal(t, Effective{"foo": 1, "bar": 2, "baz": 3}, Merge(raw, "test"))
	})

	t.Run("merge key at the top level", func(t *testing.T) {
		raw, err := Parse([]byte("defaults: &d\n  foo: 1\n  bar: 5\n<<: *d\nbar: 2\n"))
		require.NoError(t, err)
		assert.NotContains(t, raw, "<<")
		assert.Equal(t, Effective{"foo": 1, "bar": 2}, Merge(raw, ""))
	})

	t.Run("merge key with a sequence of mappings", func(t *testing.T) {
		raw, err := Parse([]byte("a: &a\n  foo: 1\nb: &b\n  foo: 7\n  bar: 2\ntest:\n  <<: [*a, *b]\n"))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"foo": 1, "bar": 2}, raw["test"].Block)
	})

	t.Run("merge key naming a scalar", func(t *testing.T) {
		_, err := Parse([]byte("n: &n 3\ntest:\n  <<: *n\n"))
		require.ErrorIs(t, err, ErrInvalidValue)
	})
}

func TestMapSourceReturnsCopy(t *testing.T) {
	raw := RawConfig{"test": Block(map[string]int{"foo": 1})}
	loaded, err := MapSource(raw).Load()
	require.NoError(t, err)

	loaded["test"].Block["foo"] = 9
	assert.Equal(t, 1, raw["test"].Block["foo"])
}

func TestFromMap(t *testing.T) {
	raw, err := FromMap(map[string]any{
		"foo":         8,
		"bar":         float64(2),
		"test":        map[string]any{"bar": 10, "foo,bar": int64(12)},
		"development": map[string]int{"baz": 14},
		"staging":     nil,
	})
	require.NoError(t, err)

	assert.Equal(t, Count(8), raw["foo"])
	assert.Equal(t, Count(2), raw["bar"])
	assert.Equal(t, map[string]int{"bar": 10, "foo,bar": 12}, raw["test"].Block)
	assert.Equal(t, map[string]int{"baz": 14}, raw["development"].Block)
	assert.True(t, raw["staging"].IsBlock())

	_, err = FromMap(map[string]any{"foo": 1.5})
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = FromMap(map[string]any{"test": map[string]any{"inner": map[string]any{"foo": 1}}})
	assert.ErrorIs(t, err, ErrNestingTooDeep)
}

func TestSourceFor(t *testing.T) {
	src, err := SourceFor(map[string]any{"foo": 1})
	require.NoError(t, err)
	assert.Equal(t, "memory", Describe(src))

	src, err = SourceFor("pool.yml")
	require.NoError(t, err)
	assert.Equal(t, NewFileSource("pool.yml"), src)

	src, err = SourceFor(RawConfig{"foo": Count(1)})
	require.NoError(t, err)
	assert.IsType(t, MapSource{}, src)

	_, err = SourceFor(42)
	assert.ErrorIs(t, err, ErrConfigLoad)
}

func TestDiscoverConfigFile(t *testing.T) {
	noEnv := func(string) (string, bool) { return "", false }

	t.Run("custom path wins", func(t *testing.T) {
		lookup := func(name string) (string, bool) {
			assert.Equal(t, ConfigEnvVar, name)
			return "conf/resque-pool-custom.yml.erb", true
		}
		got, err := DiscoverConfigFile(lookup, func(string) bool { return true })
		require.NoError(t, err)
		assert.Equal(t, "conf/resque-pool-custom.yml.erb", got)
	})

	t.Run("first existing default", func(t *testing.T) {
		got, err := DiscoverConfigFile(noEnv, func(path string) bool { return path == "config/resque-pool.yml" })
		require.NoError(t, err)
		assert.Equal(t, "config/resque-pool.yml", got)
	})

	t.Run("blank override ignored", func(t *testing.T) {
		lookup := func(string) (string, bool) { return "  ", true }
		got, err := DiscoverConfigFile(lookup, func(path string) bool { return path == "resque-pool.yml" })
		require.NoError(t, err)
		assert.Equal(t, "resque-pool.yml", got)
	})

	t.Run("nothing found", func(t *testing.T) {
		_, err := DiscoverConfigFile(noEnv, func(string) bool { return false })
		assert.ErrorIs(t, err, ErrNoConfigFile)
	})
}

func TestChooseConfigFileUsesEnvironment(t *testing.T) {
	custom := filepath.Join("testdata", "resque-pool-custom.yml.erb")
	t.Setenv(ConfigEnvVar, custom)
	t.Setenv("POOL_TEST_BAR_WORKERS", "")

	path, err := ChooseConfigFile()
	require.NoError(t, err)
	assert.Equal(t, custom, path)

	raw, err := NewFileSource(path).Load()
	require.NoError(t, err)
	assert.Equal(t, Effective{"foo": 2, "bar": 3}, Merge(raw, ""))
}
