// Package view renders the few server-side HTML pages: the access-denied
// page and the staff code console.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/5vraa/swims.cc-website-sub000/auth"
)

//go:embed templates/*.html
var templateFiles embed.FS

var (
	tplCache = struct {
		sync.RWMutex
		m map[string]*template.Template
	}{m: map[string]*template.Template{}}

	// staffResolver lets templates ask for the current request's privilege
	// without this package depending on the policy layer.
	staffResolver func(*http.Request) (isStaff, isAdmin bool)
)

// SetStaffResolver sets the callback behind the isStaff and isAdmin template funcs.
func SetStaffResolver(f func(*http.Request) (bool, bool)) {
	staffResolver = f
}

// Funcs returns the template helpers bound to r.
func Funcs(r *http.Request) template.FuncMap {
	return template.FuncMap{
		"isStaff": func() bool {
			if staffResolver == nil || r == nil {
				return false
			}
			staff, _ := staffResolver(r)
			return staff
		},
		"isAdmin": func() bool {
			if staffResolver == nil || r == nil {
				return false
			}
			_, admin := staffResolver(r)
			return admin
		},
		"year": func() int { return time.Now().Year() },
		"fmtTime": func(t *time.Time) string {
			if t == nil {
				return "never"
			}
			return t.UTC().Format("2006-01-02 15:04 UTC")
		},
		// dict creates a map from key-value pairs for passing to sub-templates.
		"dict": func(values ...any) map[string]any {
			if len(values)%2 != 0 {
				return nil
			}
			m := make(map[string]any, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					continue
				}
				m[key] = values[i+1]
			}
			return m
		},
	}
}

// parse builds layout.html plus the named page. The func map is bound per
// request at execution time through Funcs.
func parse(name string) (*template.Template, error) {
	tplCache.RLock()
	t, ok := tplCache.m[name]
	tplCache.RUnlock()
	if ok {
		return t, nil
	}
	t, err := template.New("layout.html").Funcs(Funcs(nil)).ParseFS(templateFiles, "templates/layout.html", "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	tplCache.Lock()
	tplCache.m[name] = t
	tplCache.Unlock()
	return t, nil
}

// Render executes the named page inside the layout and writes it with status.
func Render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) error {
	base, err := parse(name)
	if err != nil {
		return err
	}
	t, err := base.Clone()
	if err != nil {
		return err
	}
	t.Funcs(Funcs(r))

	if data == nil {
		data = map[string]any{}
	}
	if _, exists := data["IsLoggedIn"]; !exists && r != nil {
		_, loggedIn := auth.PrincipalFromContext(r.Context())
		data["IsLoggedIn"] = loggedIn
	}

	// Render to a buffer first so a template error never leaves a half-written page.
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	return err
}
