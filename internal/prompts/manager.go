package prompts

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	errs "spots-pipeline/pkg/errors"
)

// Names of the templates the pipeline renders.
const (
	ExtractionSystem = "extraction_system"
	ExtractionUser   = "extraction_user"
	ReviewUser       = "review_user"
)

// Manager loads, compiles and renders prompt templates. Templates are
// compiled once at startup; an optional external directory overrides the
// embedded set so the operator can tune prompts without a rebuild.
type Manager struct {
	mu   sync.RWMutex
	tpls map[string]*template.Template
}

// NewManager loads templates from an optional external directory first,
// then fills missing ones from the embedded set.
func NewManager(templatesDir string) (*Manager, error) {
	m := &Manager{tpls: make(map[string]*template.Template)}

	if td := strings.TrimSpace(templatesDir); td != "" {
		fi, err := os.Stat(td)
		if err != nil {
			log.Printf("prompts: external templates dir '%s' not accessible: %v (using embedded)", td, err)
		} else if !fi.IsDir() {
			log.Printf("prompts: path '%s' is not a directory (using embedded)", td)
		} else {
			for _, name := range []string{ExtractionSystem, ExtractionUser, ReviewUser} {
				path := filepath.Join(td, PathFor(name))
				b, rerr := os.ReadFile(path)
				if rerr != nil {
					continue
				}
				tpl, perr := template.New(name).Parse(string(b))
				if perr != nil {
					log.Printf("prompts: parse error in external template '%s': %v (embedded fallback)", path, perr)
					continue
				}
				m.tpls[name] = tpl
				log.Printf("prompts: loaded external template '%s' from %s", name, path)
			}
		}
	}

	// Embedded templates as fallback; external takes precedence.
	err := fs.WalkDir(FS(), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".txt.tmpl") {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(p), ".txt.tmpl")
		if _, exists := m.tpls[name]; exists {
			return nil
		}
		b, rerr := fs.ReadFile(FS(), p)
		if rerr != nil {
			return rerr
		}
		tpl, perr := template.New(name).Parse(string(b))
		if perr != nil {
			return perr
		}
		m.tpls[name] = tpl
		return nil
	})
	if err != nil {
		return nil, errs.NewConfig("prompts.NewManager", "embedded templates broken", err)
	}
	return m, nil
}

// Render executes a named template with data.
func (m *Manager) Render(name string, data any) (string, error) {
	m.mu.RLock()
	tpl, ok := m.tpls[name]
	m.mu.RUnlock()
	if !ok {
		return "", errs.NewValidation("prompts.Render", "unknown template "+name, nil)
	}
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", errs.NewValidation("prompts.Render", "render "+name, err)
	}
	return b.String(), nil
}
