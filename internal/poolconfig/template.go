package poolconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

// Preprocessor rewrites raw file contents into plain YAML.
type Preprocessor interface {
	Process(name string, data []byte) ([]byte, error)
}

// PreprocessorFunc adapts a function to Preprocessor.
type PreprocessorFunc func(name string, data []byte) ([]byte, error)

// Process calls f.
func (f PreprocessorFunc) Process(name string, data []byte) ([]byte, error) {
	return f(name, data)
}

// TemplatePreprocessor renders files with text/template. Funcs extends the
// built-in function set.
//
//	foo: {{ env "FOO_WORKERS" | default "2" }}
//	bar: {{ mul numCPU 2 }}
type TemplatePreprocessor struct {
	Funcs template.FuncMap
}

// Process renders data as a template named after the file.
func (p TemplatePreprocessor) Process(name string, data []byte) ([]byte, error) {
	tmpl := template.New(filepath.Base(name)).
		Option("missingkey=error").
		Funcs(defaultTemplateFuncs()).
		Funcs(p.Funcs)

	tmpl, err := tmpl.Parse(string(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func defaultTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"env": os.Getenv,
		"default": func(fallback, value string) string {
			if value == "" {
				return fallback
			}
			return value
		},
		"add":    func(a, b int) int { return a + b },
		"mul":    func(a, b int) int { return a * b },
		"numCPU": runtime.NumCPU,
	}
}
