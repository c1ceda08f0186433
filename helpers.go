package main

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/nikolalohinski/gonja/v2"
	"github.com/nikolalohinski/gonja/v2/exec"
	"golang.org/x/crypto/bcrypt"
)

const SESSION_NAME = "twitoff-session"

//go:embed templates/*.html
var templateFS embed.FS

// --- Session helpers ---

func newStore(secret string) *sessions.CookieStore {
	key := []byte(secret)
	if secret == "" {
		key = securecookie.GenerateRandomKey(32)
	}
	s := sessions.NewCookieStore(key)
	s.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return s
}

func (a *App) addFlash(w http.ResponseWriter, r *http.Request, message string) {
	session, _ := a.sessions.Get(r, SESSION_NAME)
	session.AddFlash(message)
	if err := session.Save(r, w); err != nil {
		a.log.Warn().Err(err).Msg("failed to save session")
	}
}

func (a *App) getFlashes(w http.ResponseWriter, r *http.Request) []string {
	session, _ := a.sessions.Get(r, SESSION_NAME)
	flashes := session.Flashes()
	if len(flashes) == 0 {
		return nil
	}
	if err := session.Save(r, w); err != nil {
		a.log.Warn().Err(err).Msg("failed to save session")
	}

	out := make([]string, 0, len(flashes))
	for _, f := range flashes {
		out = append(out, fmt.Sprint(f))
	}
	return out
}

// --- Reset token helpers ---

func hashToken(token string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func checkToken(hash, token string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	return err == nil
}

// --- Template helpers ---

func datetimeformat(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format("2006-01-02 @ 15:04")
}

func userView(u User) map[string]interface{} {
	screenName := u.ScreenName
	if screenName == "" {
		screenName = u.Name
	}
	return map[string]interface{}{
		"name":         u.Name,
		"screen_name":  screenName,
		"display_name": u.DisplayName,
	}
}

func tweetView(t Tweet) map[string]interface{} {
	return map[string]interface{}{
		"id":        t.ID,
		"text":      t.Text,
		"posted_at": datetimeformat(t.PostedAt),
	}
}

// Templates holds the parsed pages and the layout they render into.
type Templates struct {
	layout *exec.Template
	pages  map[string]*exec.Template
}

func loadTemplates() (*Templates, error) {
	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		return nil, err
	}

	t := &Templates{pages: make(map[string]*exec.Template)}
	for _, entry := range entries {
		name := entry.Name()
		source, err := templateFS.ReadFile(path.Join("templates", name))
		if err != nil {
			return nil, err
		}
		tpl, err := gonja.FromBytes(source)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		if name == "layout.html" {
			t.layout = tpl
			continue
		}
		t.pages[name] = tpl
	}
	if t.layout == nil {
		return nil, fmt.Errorf("layout.html missing")
	}
	return t, nil
}

// Render executes page with data and wraps the result in the layout.
func (t *Templates) Render(page string, data map[string]interface{}) ([]byte, error) {
	tpl, ok := t.pages[page]
	if !ok {
		return nil, fmt.Errorf("unknown template %s", page)
	}

	var content bytes.Buffer
	if err := tpl.Execute(&content, exec.NewContext(data)); err != nil {
		return nil, fmt.Errorf("render %s: %w", page, err)
	}

	layoutData := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		layoutData[k] = v
	}
	layoutData["content"] = content.String()

	var out bytes.Buffer
	if err := t.layout.Execute(&out, exec.NewContext(layoutData)); err != nil {
		return nil, fmt.Errorf("render layout: %w", err)
	}
	return out.Bytes(), nil
}

func (a *App) renderTemplate(w http.ResponseWriter, r *http.Request, status int, page string, data map[string]interface{}) {
	if _, ok := data["flashes"]; !ok {
		data["flashes"] = a.getFlashes(w, r)
	}
	if _, ok := data["title"]; !ok {
		data["title"] = strings.TrimSuffix(page, ".html")
	}

	body, err := a.templates.Render(page, data)
	if err != nil {
		a.log.Error().Err(err).Str("template", page).Msg("render failed")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}
