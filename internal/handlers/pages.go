package handlers

import (
	"net/http"
	"strings"

	"github.com/pliu/ponyexpress/internal/views"
)

func (h *ChatHandler) NewChatPage(w http.ResponseWriter, r *http.Request) {
	_, st := h.state(r)
	ctx, cancel := h.renderCtx(r)
	defer cancel()
	me, _ := st.User.Current(ctx)

	h.render(w, r, http.StatusOK, views.PageNewChat, views.Page{
		Title: "new chat",
		Nav:   topNav(me, ""),
		Body:  views.NewChatView{},
	})
}

// CreateChat creates the chat and opens its details page.
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	ac, st := h.state(r)
	name := strings.TrimSpace(r.PostFormValue("name"))
	if name == "" {
		h.render(w, r, http.StatusBadRequest, views.PageNewChat, views.Page{
			Title: "new chat",
			Nav:   topNav(st.User.Loaded(), ""),
			Body:  views.NewChatView{Error: "chat name is required"},
		})
		return
	}

	chat, err := h.API.CreateChat(r.Context(), ac.Token, name)
	if err != nil {
		if h.rejected(w, r, ac.SessionID, err) {
			return
		}
		h.logger(r).Error().Err(err).Str("name", name).Msg("create chat")
		h.render(w, r, http.StatusBadGateway, views.PageNewChat, views.Page{
			Title: "new chat",
			Nav:   topNav(st.User.Loaded(), ""),
			Body:  views.NewChatView{Name: name, Error: errorMessage(err)},
		})
		return
	}

	st.Cache.Invalidate(chatsKey())
	seeOther(w, r, detailsURL(chat.ID))
}

func (h *ChatHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ac, st := h.state(r)
	ctx, cancel := h.renderCtx(r)
	defer cancel()

	me, err := st.User.Current(ctx)
	if err != nil {
		if h.rejected(w, r, ac.SessionID, err) {
			return
		}
		h.logger(r).Warn().Err(err).Msg("load profile")
	}

	page := views.Page{
		Title: "profile",
		Nav:   topNav(me, "profile"),
		Body:  views.ProfileView{User: me},
	}
	if me == nil && err == nil {
		page.Refresh = 1
	}
	h.render(w, r, http.StatusOK, views.PageProfile, page)
}

func (h *ChatHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	_, st := h.state(r)
	h.render(w, r, http.StatusNotFound, views.PageNotFound, views.Page{
		Title: "not found",
		Nav:   topNav(st.User.Loaded(), ""),
	})
}
