package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"time"

	"roamlotto/internal/ether"
	"roamlotto/internal/gateway"

	"github.com/Masterminds/sprig/v3"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed tpl/*.tmpl tpl/partials/*.tmpl tpl/pages/*.tmpl
var tplFS embed.FS

// Renderer holds one parsed template set per page.
type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer(explorerURL string) (*Renderer, error) {
	funcs := template.FuncMap{
		"nowUTC":       func() time.Time { return time.Now().UTC() },
		"shortAddress": ether.ShortAddress,
		"txLink":       func(hash string) string { return gateway.TxLink(explorerURL, common.HexToHash(hash)) },
		"hasExplorer":  func() bool { return explorerURL != "" },
		"formatEther":  ether.Format,
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.UTC().Format("2006-01-02 15:04 MST")
		},
	}
	pages, err := fs.Glob(tplFS, "tpl/pages/*.tmpl")
	if err != nil {
		return nil, err
	}
	r := &Renderer{pages: make(map[string]*template.Template, len(pages))}
	for _, p := range pages {
		t := template.New("root").Funcs(sprig.HtmlFuncMap()).Funcs(funcs)
		if _, err := t.ParseFS(tplFS, "tpl/base.tmpl", "tpl/partials/*.tmpl", p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		name := p[len("tpl/pages/") : len(p)-len(".tmpl")]
		r.pages[name] = t
	}
	return r, nil
}

func (r *Renderer) Render(w io.Writer, name string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("no page template %q", name)
	}
	return t.ExecuteTemplate(w, name, data)
}
