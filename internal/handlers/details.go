package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pliu/ponyexpress/internal/models"
	"github.com/pliu/ponyexpress/internal/query"
	"github.com/pliu/ponyexpress/internal/views"
)

// Details renders the chat's name and members. Rename, add and remove are
// only enabled for the chat owner.
func (h *ChatHandler) Details(w http.ResponseWriter, r *http.Request) {
	ac, st := h.state(r)
	chatID, ok := pathInt(r, "chatId")
	if !ok {
		seeOther(w, r, "/error/404")
		return
	}

	ctx, cancel := h.renderCtx(r)
	defer cancel()

	var (
		chat    query.Result[*models.Chat]
		members query.Result[[]models.User]
		all     query.Result[[]models.User]
		me      *models.User
		meErr   error
	)
	var g errgroup.Group
	g.Go(func() error {
		chat = query.Fetch(ctx, st.Cache, chatKey(chatID), func(ctx context.Context) (*models.Chat, error) {
			return h.API.Chat(ctx, ac.Token, chatID)
		})
		return nil
	})
	g.Go(func() error {
		members = query.Fetch(ctx, st.Cache, chatUsersKey(chatID), func(ctx context.Context) ([]models.User, error) {
			return h.API.ChatUsers(ctx, ac.Token, chatID)
		})
		return nil
	})
	g.Go(func() error {
		all = query.Fetch(ctx, st.Cache, allUsersKey(), func(ctx context.Context) ([]models.User, error) {
			return h.API.Users(ctx, ac.Token)
		})
		return nil
	})
	g.Go(func() error {
		me, meErr = st.User.Current(ctx)
		return nil
	})
	g.Wait()

	if h.rejected(w, r, ac.SessionID, chat.Err, members.Err, all.Err, meErr) {
		return
	}
	for _, err := range []error{chat.Err, members.Err, all.Err, meErr} {
		if err != nil {
			h.logger(r).Warn().Err(err).Int("chat", chatID).Msg("read failed")
		}
	}

	view := views.DetailsView{ChatID: chatID}
	if chat.HasData {
		view.Chat = chat.Data
	}
	view.Owner = isOwner(view.Chat, me)
	if members.HasData {
		view.Members = memberRows(view.Chat, members.Data)
		if view.Owner && all.HasData {
			view.Candidates = nonMembers(all.Data, members.Data)
		}
	}

	page := views.Page{Title: "chat details", Nav: topNav(me, ""), Body: view}
	if chat.IsLoading || members.IsLoading || all.IsLoading || (me == nil && meErr == nil) {
		page.Refresh = 1
	}
	h.render(w, r, http.StatusOK, views.PageDetails, page)
}

func isOwner(chat *models.Chat, me *models.User) bool {
	return chat != nil && me != nil && chat.Owner.ID == me.ID
}

func memberRows(chat *models.Chat, users []models.User) []views.Member {
	rows := make([]views.Member, 0, len(users))
	for _, u := range users {
		rows = append(rows, views.Member{User: u, IsOwner: chat != nil && chat.Owner.ID == u.ID})
	}
	return rows
}

// nonMembers keeps the users of all that are not in members, in order.
func nonMembers(all, members []models.User) []models.User {
	in := make(map[int]struct{}, len(members))
	for _, m := range members {
		in[m.ID] = struct{}{}
	}
	out := make([]models.User, 0, len(all))
	for _, u := range all {
		if _, ok := in[u.ID]; !ok {
			out = append(out, u)
		}
	}
	return out
}

func (h *ChatHandler) RenameChat(w http.ResponseWriter, r *http.Request) {
	ac, st := h.state(r)
	chatID, ok := pathInt(r, "chatId")
	if !ok {
		seeOther(w, r, "/error/404")
		return
	}
	name := strings.TrimSpace(r.PostFormValue("name"))
	if name == "" {
		seeOther(w, r, detailsURL(chatID))
		return
	}

	if _, err := h.API.RenameChat(r.Context(), ac.Token, chatID, name); err != nil {
		if h.rejected(w, r, ac.SessionID, err) {
			return
		}
		h.logger(r).Error().Err(err).Int("chat", chatID).Msg("rename chat")
	} else {
		st.Cache.Invalidate(chatsKey())
		st.Cache.Invalidate(chatUsersKey(chatID))
	}
	seeOther(w, r, detailsURL(chatID))
}

func (h *ChatHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	ac, st := h.state(r)
	chatID, ok := pathInt(r, "chatId")
	if !ok {
		seeOther(w, r, "/error/404")
		return
	}
	userID, err := strconv.Atoi(r.PostFormValue("user_id"))
	if err != nil || userID <= 0 {
		seeOther(w, r, detailsURL(chatID))
		return
	}

	if _, err := h.API.AddChatUser(r.Context(), ac.Token, chatID, userID); err != nil {
		if h.rejected(w, r, ac.SessionID, err) {
			return
		}
		h.logger(r).Error().Err(err).Int("chat", chatID).Int("user", userID).Msg("add chat user")
	} else {
		st.Cache.Invalidate(chatsKey())
		st.Cache.Invalidate(chatUsersKey(chatID))
	}
	seeOther(w, r, detailsURL(chatID))
}

// RemoveUser only changes the member list once the API has confirmed it.
func (h *ChatHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	ac, st := h.state(r)
	chatID, ok1 := pathInt(r, "chatId")
	userID, ok2 := pathInt(r, "userId")
	if !ok1 || !ok2 {
		seeOther(w, r, "/error/404")
		return
	}

	if _, err := h.API.RemoveChatUser(r.Context(), ac.Token, chatID, userID); err != nil {
		if h.rejected(w, r, ac.SessionID, err) {
			return
		}
		h.logger(r).Error().Err(err).Int("chat", chatID).Int("user", userID).Msg("remove chat user")
	} else {
		st.Cache.Invalidate(chatsKey())
		st.Cache.Invalidate(chatUsersKey(chatID))
	}
	seeOther(w, r, detailsURL(chatID))
}
