package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"velvet-metal/internal/domain/model"
	"velvet-metal/internal/wizard"

	"github.com/dustin/go-humanize"
)

//go:embed templates
var templatesFS embed.FS

// Templates manages HTML template rendering.
type Templates struct {
	templates map[string]*template.Template
	funcs     template.FuncMap
}

// NewTemplates loads layouts, partials and pages from fsys. A nil fsys uses
// the embedded set.
func NewTemplates(fsys fs.FS) (*Templates, error) {
	if fsys == nil {
		sub, err := fs.Sub(templatesFS, "templates")
		if err != nil {
			return nil, err
		}
		fsys = sub
	}
	t := &Templates{
		templates: make(map[string]*template.Template),
		funcs:     defaultFuncs(),
	}
	if err := t.load(fsys); err != nil {
		return nil, err
	}
	return t, nil
}

// Render renders a page template inside the base layout.
func (t *Templates) Render(w io.Writer, page string, data any) error {
	tmpl, ok := t.templates[page]
	if !ok {
		return fmt.Errorf("template %q not found", page)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}

func (t *Templates) load(fsys fs.FS) error {
	layouts, err := fs.Glob(fsys, "layouts/*.html")
	if err != nil {
		return fmt.Errorf("finding layouts: %w", err)
	}
	partials, err := fs.Glob(fsys, "partials/*.html")
	if err != nil {
		return fmt.Errorf("finding partials: %w", err)
	}
	pages, err := fs.Glob(fsys, "pages/*.html")
	if err != nil {
		return fmt.Errorf("finding pages: %w", err)
	}

	common := append(layouts, partials...)
	for _, page := range pages {
		name := filepath.Base(page)
		name = name[:len(name)-len(".html")]

		files := append([]string{page}, common...)
		tmpl, err := template.New(name).Funcs(t.funcs).ParseFS(fsys, files...)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		t.templates[name] = tmpl
	}
	return nil
}

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		"bytes": func(n int64) string { return humanize.IBytes(uint64(n)) },
		"ago": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return humanize.Time(*t)
		},
	}
}

// FlashMessage is a one-off notice shown above the form.
type FlashMessage struct {
	Type    string // "error" | "info"
	Message string
}

// ProgressStep is one entry of the progress bar.
type ProgressStep struct {
	Number  int
	Title   string
	Current bool
	Done    bool
}

// PageData is shared by every wizard page.
type PageData struct {
	Title    string
	Step     wizard.Step
	Progress []ProgressStep
	Flash    *FlashMessage
}

func newPageData(step wizard.Step, flash *FlashMessage) PageData {
	var progress []ProgressStep
	for s := wizard.StepAccount; ; {
		progress = append(progress, ProgressStep{
			Number:  s.Number(),
			Title:   s.Title(),
			Current: s == step,
			Done:    s < step,
		})
		next, ok := s.Next()
		if !ok {
			break
		}
		s = next
	}
	return PageData{Title: step.Title(), Step: step, Progress: progress, Flash: flash}
}

type AccountPageData struct {
	PageData
	Form       wizard.Form
	PreviewURL string
	MaxAvatar  int64
	// Registered swaps the sign-up form for a read-only summary.
	Registered bool
}

type SubscriptionPageData struct {
	PageData
	Tiers    []*model.SubscriptionTier
	Selected string
}

// ServiceView is one provider card on the services step.
type ServiceView struct {
	Service    model.Service
	Name       string
	Available  bool
	Connected  bool
	Syncing    bool
	LastSynced *time.Time
}

type ServicesPageData struct {
	PageData
	Services     []ServiceView
	CanComplete  bool
	Blocker      string
	BlockerHint  string
	PollInterval time.Duration
}

type AppPageData struct {
	PageData
	UserID string
}
