// Package views renders the HTML pages of the client.
package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/pliu/ponyexpress/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	PageHome     = "home"
	PageLogin    = "login"
	PageRegister = "register"
	PageChats    = "chats"
	PageDetails  = "details"
	PageNewChat  = "newchat"
	PageProfile  = "profile"
	PageNotFound = "notfound"
)

var pages = []string{PageHome, PageLogin, PageRegister, PageChats, PageDetails, PageNewChat, PageProfile, PageNotFound}

// Page is the data handed to the layout. Body is the page-specific view.
type Page struct {
	Title string
	Nav   TopNav
	// Refresh reloads the page after this many seconds when non-zero.
	Refresh int
	Body    any
}

type TopNav struct {
	LoggedIn bool
	Username string
	Active   string
}

type HomeView struct {
	Identity string
}

type AuthFormView struct {
	Username string
	Email    string
	Error    string
}

type NavChat struct {
	ID          int
	Name        string
	Active      bool
	Placeholder bool
}

type MessageRow struct {
	models.Message
	Mine    bool
	Editing bool
}

type ChatsView struct {
	Search   string
	Nav      []NavChat
	ChatID   int
	Chat     *models.Chat
	Messages []MessageRow
	Loading  bool
}

type Member struct {
	models.User
	IsOwner bool
}

type DetailsView struct {
	ChatID     int
	Chat       *models.Chat
	Owner      bool
	Members    []Member
	Candidates []models.User
}

type NewChatView struct {
	Name  string
	Error string
}

type ProfileView struct {
	User *models.User
}

// Button and Input feed the button and forminput partials.
type Button struct {
	Label    string
	Type     string
	Class    string
	Disabled bool
	Hidden   bool
}

type Input struct {
	Name        string
	Type        string
	Label       string
	Value       string
	Placeholder string
	Disabled    bool
}

// DateString and TimeString format message and profile timestamps.
func DateString(t time.Time) string { return t.Format("Mon Jan 02 2006") }
func TimeString(t time.Time) string { return t.Format("3:04:05 PM") }

var funcs = template.FuncMap{
	"date":  DateString,
	"clock": TimeString,
	"button": func(label, typ string, disabled bool) Button {
		return Button{Label: label, Type: typ, Disabled: disabled}
	},
	"input": func(name, typ, label, value string) Input {
		return Input{Name: name, Type: typ, Label: label, Value: value}
	},
	"placeholder": func(p string, in Input) Input {
		in.Placeholder = p
		return in
	},
	"disabled": func(d bool, in Input) Input {
		in.Disabled = d
		return in
	},
	"hidden": func(h bool, b Button) Button {
		b.Hidden = h
		return b
	},
}

type Renderer struct {
	pages map[string]*template.Template
}

func New() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/partials.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render writes page wrapped in the layout.
func (r *Renderer) Render(w io.Writer, name string, p Page) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	return t.ExecuteTemplate(w, "layout", p)
}

// HTML renders into a buffer first so a template error never leaves a
// half-written response.
func (r *Renderer) HTML(w http.ResponseWriter, status int, name string, p Page) error {
	var buf bytes.Buffer
	if err := r.Render(&buf, name, p); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded stylesheet under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
