// Package router switches between the logged-out and logged-in route
// tables on every request, based on the session resolved from the cookie.
package router

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pliu/ponyexpress/internal/handlers"
	"github.com/pliu/ponyexpress/internal/middleware"
	"github.com/pliu/ponyexpress/internal/views"
)

type Config struct {
	Auth     *handlers.AuthHandler
	Chat     *handlers.ChatHandler
	Resolver middleware.Resolver
	Log      zerolog.Logger
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// New returns the root handler of the client.
func New(cfg Config) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods("GET")
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics).Methods("GET")
	}
	r.PathPrefix("/static/").Handler(views.Static())

	session := middleware.Session(cfg.Auth.Cookies, cfg.Resolver)
	r.PathPrefix("/").Handler(session(Switch(Authenticated(cfg.Auth, cfg.Chat), Unauthenticated(cfg.Auth))))

	var h http.Handler = r
	h = middleware.Recover(h)
	h = middleware.Logging(cfg.Log)(h)
	return otelhttp.NewHandler(h, "ponyexpress")
}

// Switch serves authed when the request carries a live session and anon
// otherwise. The choice is made per request; there is no in-between state.
func Switch(authed, anon http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if middleware.AuthFrom(r.Context()).IsLoggedIn() {
			authed.ServeHTTP(w, r)
			return
		}
		anon.ServeHTTP(w, r)
	})
}

func redirectTo(url string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, url, http.StatusSeeOther)
	})
}

// Authenticated is the logged-in route table. Unknown paths go to the 404
// page.
func Authenticated(auth *handlers.AuthHandler, chat *handlers.ChatHandler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", chat.Chats).Methods("GET")
	r.HandleFunc("/chats", chat.Chats).Methods("GET")
	r.HandleFunc("/chats/new", chat.NewChatPage).Methods("GET")
	r.HandleFunc("/chats/new", chat.CreateChat).Methods("POST")
	r.HandleFunc("/chats/{chatId:[0-9]+}", chat.Chats).Methods("GET")
	r.HandleFunc("/chats/{chatId:[0-9]+}/details", chat.Details).Methods("GET")
	r.HandleFunc("/chats/{chatId:[0-9]+}/name", chat.RenameChat).Methods("POST")
	r.HandleFunc("/chats/{chatId:[0-9]+}/users", chat.AddUser).Methods("POST")
	r.HandleFunc("/chats/{chatId:[0-9]+}/users/{userId:[0-9]+}/remove", chat.RemoveUser).Methods("POST")
	r.HandleFunc("/chats/{chatId:[0-9]+}/messages", chat.SendMessage).Methods("POST")
	r.HandleFunc("/chats/{chatId:[0-9]+}/messages/{messageId:[0-9]+}/edit", chat.Chats).Methods("GET")
	r.HandleFunc("/chats/{chatId:[0-9]+}/messages/{messageId:[0-9]+}/edit", chat.EditMessage).Methods("POST")
	r.HandleFunc("/chats/{chatId:[0-9]+}/messages/{messageId:[0-9]+}/delete", chat.DeleteMessage).Methods("POST")
	r.HandleFunc("/profile", chat.Profile).Methods("GET")
	r.HandleFunc("/logout", auth.Logout).Methods("POST")
	r.HandleFunc("/error/404", chat.NotFound).Methods("GET")

	r.NotFoundHandler = redirectTo("/error/404")
	r.MethodNotAllowedHandler = redirectTo("/error/404")
	return r
}

// Unauthenticated is the logged-out route table. Unknown paths go to the
// login page.
func Unauthenticated(auth *handlers.AuthHandler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", auth.Home).Methods("GET")
	r.HandleFunc("/login", auth.LoginPage).Methods("GET")
	r.HandleFunc("/login", auth.Login).Methods("POST")
	r.HandleFunc("/register", auth.RegisterPage).Methods("GET")
	r.HandleFunc("/register", auth.Register).Methods("POST")

	r.NotFoundHandler = redirectTo("/login")
	r.MethodNotAllowedHandler = redirectTo("/login")
	return r
}
