package handlers

import (
	"net/http"
	"strings"

	"github.com/pliu/ponyexpress/internal/middleware"
	"github.com/pliu/ponyexpress/internal/models"
	"github.com/pliu/ponyexpress/internal/views"
)

type AuthHandler struct {
	*Base
}

func (h *AuthHandler) Home(w http.ResponseWriter, r *http.Request) {
	ac := middleware.AuthFrom(r.Context())
	h.render(w, r, http.StatusOK, views.PageHome, views.Page{
		Nav:  views.TopNav{LoggedIn: ac.IsLoggedIn(), Active: "home"},
		Body: views.HomeView{Identity: ac.Identity()},
	})
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, views.PageLogin, views.Page{
		Title: "login",
		Nav:   views.TopNav{Active: "login"},
		Body:  views.AuthFormView{},
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	creds := models.Credentials{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
	form := views.AuthFormView{Username: creds.Username}
	if creds.Username == "" || creds.Password == "" {
		form.Error = "username and password are required"
		h.renderLogin(w, r, http.StatusBadRequest, form)
		return
	}

	ac, err := h.Auth.Login(r.Context(), creds)
	if err != nil {
		h.logger(r).Warn().Err(err).Str("username", creds.Username).Msg("login failed")
		form.Error = errorMessage(err)
		h.renderLogin(w, r, http.StatusUnauthorized, form)
		return
	}

	h.Cookies.Set(w, ac.SessionID, ac.ExpiresAt)
	seeOther(w, r, "/")
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, status int, form views.AuthFormView) {
	h.render(w, r, status, views.PageLogin, views.Page{
		Title: "login",
		Nav:   views.TopNav{Active: "login"},
		Body:  form,
	})
}

func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.renderRegister(w, r, http.StatusOK, views.AuthFormView{})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reg := models.Registration{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	form := views.AuthFormView{Username: reg.Username, Email: reg.Email}
	if reg.Username == "" || reg.Email == "" || reg.Password == "" {
		form.Error = "username, email and password are required"
		h.renderRegister(w, r, http.StatusBadRequest, form)
		return
	}

	ac, err := h.Auth.Register(r.Context(), reg)
	if err != nil {
		h.logger(r).Warn().Err(err).Str("username", reg.Username).Msg("registration failed")
		form.Error = errorMessage(err)
		h.renderRegister(w, r, http.StatusUnprocessableEntity, form)
		return
	}

	h.Cookies.Set(w, ac.SessionID, ac.ExpiresAt)
	seeOther(w, r, "/")
}

func (h *AuthHandler) renderRegister(w http.ResponseWriter, r *http.Request, status int, form views.AuthFormView) {
	h.render(w, r, status, views.PageRegister, views.Page{
		Title: "register",
		Nav:   views.TopNav{},
		Body:  form,
	})
}

// Logout tears the session down before anything else is rendered.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac := middleware.AuthFrom(r.Context())
	h.endSession(w, r, ac.SessionID)
}
