package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pliu/ponyexpress/internal/models"
	"github.com/pliu/ponyexpress/internal/query"
	"github.com/pliu/ponyexpress/internal/search"
	"github.com/pliu/ponyexpress/internal/views"
)

// API is the part of the REST client the chat pages use.
type API interface {
	Users(ctx context.Context, token string) ([]models.User, error)
	Chats(ctx context.Context, token string) ([]models.Chat, error)
	Chat(ctx context.Context, token string, chatID int) (*models.Chat, error)
	CreateChat(ctx context.Context, token, name string) (*models.Chat, error)
	RenameChat(ctx context.Context, token string, chatID int, name string) (*models.Chat, error)
	Messages(ctx context.Context, token string, chatID int) ([]models.Message, error)
	CreateMessage(ctx context.Context, token string, chatID int, text string) (*models.Message, error)
	UpdateMessage(ctx context.Context, token string, chatID, messageID int, text string) (*models.Message, error)
	DeleteMessage(ctx context.Context, token string, chatID, messageID int) error
	ChatUsers(ctx context.Context, token string, chatID int) ([]models.User, error)
	AddChatUser(ctx context.Context, token string, chatID, userID int) ([]models.User, error)
	RemoveChatUser(ctx context.Context, token string, chatID, userID int) ([]models.User, error)
}

// Cache keys shared by reads and the writes that invalidate them.
func chatsKey() query.Key           { return query.K("chats") }
func chatKey(id int) query.Key      { return query.K("chats", id) }
func messagesKey(id int) query.Key  { return query.K("messages", id) }
func chatUsersKey(id int) query.Key { return query.K("users", id) }
func allUsersKey() query.Key        { return query.K("allUsers") }

const placeholderRows = 3

type ChatHandler struct {
	*Base
	API API
	// PollInterval re-renders an open chat this often; zero disables it.
	PollInterval time.Duration
}

// Chats renders the left nav and, when a chat id is in the path, the
// chat's messages.
func (h *ChatHandler) Chats(w http.ResponseWriter, r *http.Request) {
	ac, st := h.state(r)
	chatID, hasChat := pathInt(r, "chatId")
	editID, _ := pathInt(r, "messageId")
	search := r.URL.Query().Get("q")

	ctx, cancel := h.renderCtx(r)
	defer cancel()

	var (
		chats    query.Result[[]models.Chat]
		chat     query.Result[*models.Chat]
		messages query.Result[[]models.Message]
		me       *models.User
		meErr    error
	)
	var g errgroup.Group
	g.Go(func() error {
		chats = query.Fetch(ctx, st.Cache, chatsKey(), func(ctx context.Context) ([]models.Chat, error) {
			return h.API.Chats(ctx, ac.Token)
		})
		return nil
	})
	g.Go(func() error {
		chat = query.Fetch(ctx, st.Cache, chatKey(chatID), func(ctx context.Context) (*models.Chat, error) {
			return h.API.Chat(ctx, ac.Token, chatID)
		}, query.Enabled(hasChat))
		return nil
	})
	g.Go(func() error {
		messages = query.Fetch(ctx, st.Cache, messagesKey(chatID), func(ctx context.Context) ([]models.Message, error) {
			return h.API.Messages(ctx, ac.Token, chatID)
		}, query.Enabled(hasChat))
		return nil
	})
	g.Go(func() error {
		me, meErr = st.User.Current(ctx)
		return nil
	})
	g.Wait()

	if h.rejected(w, r, ac.SessionID, chats.Err, chat.Err, messages.Err, meErr) {
		return
	}
	log := h.logger(r)
	for _, err := range []error{chats.Err, chat.Err, messages.Err, meErr} {
		if err != nil {
			log.Warn().Err(err).Int("chat", chatID).Msg("read failed")
		}
	}

	view := views.ChatsView{
		Search: search,
		Nav:    leftNav(chats, chatID, search),
		ChatID: chatID,
	}
	loading := chats.IsLoading && !chats.HasData
	if hasChat {
		if chat.HasData {
			view.Chat = chat.Data
		}
		view.Loading = (chat.IsLoading && !chat.HasData) || (messages.IsLoading && !messages.HasData)
		loading = loading || view.Loading
		if view.Chat != nil && messages.HasData {
			view.Messages = messageRows(messages.Data, me, editID)
		}
	}

	page := views.Page{
		Nav:  topNav(me, ""),
		Body: view,
	}
	if view.Chat != nil {
		page.Title = view.Chat.Name
	}
	switch {
	case loading || (me == nil && meErr == nil):
		page.Refresh = 1
	case hasChat && editID == 0 && h.PollInterval > 0:
		page.Refresh = int(h.PollInterval.Round(time.Second) / time.Second)
	}
	h.render(w, r, http.StatusOK, views.PageChats, page)
}

// leftNav lists the chats matching search. Until the list has loaded it
// shows placeholder rows.
func leftNav(chats query.Result[[]models.Chat], activeID int, pattern string) []views.NavChat {
	if !chats.HasData {
		rows := make([]views.NavChat, 0, placeholderRows)
		for i := 1; i <= placeholderRows; i++ {
			if search.Match(pattern, "loading...") {
				rows = append(rows, views.NavChat{ID: i, Name: "loading...", Placeholder: true})
			}
		}
		return rows
	}

	filtered := search.FilterChats(pattern, chats.Data)
	rows := make([]views.NavChat, 0, len(filtered))
	for _, c := range filtered {
		rows = append(rows, views.NavChat{ID: c.ID, Name: c.Name, Active: c.ID == activeID})
	}
	return rows
}

// messageRows keeps server order. Only the author gets edit and delete.
func messageRows(msgs []models.Message, me *models.User, editID int) []views.MessageRow {
	rows := make([]views.MessageRow, 0, len(msgs))
	for _, m := range msgs {
		mine := me != nil && m.User.ID == me.ID
		rows = append(rows, views.MessageRow{
			Message: m,
			Mine:    mine,
			Editing: mine && m.ID == editID,
		})
	}
	return rows
}

func chatURL(id int) string {
	return fmt.Sprintf("/chats/%d", id)
}

func detailsURL(id int) string {
	return fmt.Sprintf("/chats/%d/details", id)
}

// SendMessage posts a new message and returns to the chat.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ac, st := h.state(r)
	chatID, ok := pathInt(r, "chatId")
	if !ok {
		seeOther(w, r, "/error/404")
		return
	}
	text := strings.TrimSpace(r.PostFormValue("text"))
	if text == "" {
		seeOther(w, r, chatURL(chatID))
		return
	}

	msg, err := h.API.CreateMessage(r.Context(), ac.Token, chatID, text)
	if err != nil {
		if h.rejected(w, r, ac.SessionID, err) {
			return
		}
		h.logger(r).Error().Err(err).Int("chat", chatID).Msg("send message")
		seeOther(w, r, chatURL(chatID))
		return
	}

	st.Cache.Invalidate(chatsKey())
	st.Cache.Invalidate(messagesKey(chatID))
	if msg.ChatID != 0 {
		chatID = msg.ChatID
	}
	seeOther(w, r, chatURL(chatID))
}

// EditMessage saves the edited text of a message.
func (h *ChatHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	ac, st := h.state(r)
	chatID, ok1 := pathInt(r, "chatId")
	messageID, ok2 := pathInt(r, "messageId")
	if !ok1 || !ok2 {
		seeOther(w, r, "/error/404")
		return
	}
	text := strings.TrimSpace(r.PostFormValue("text"))
	if text == "" {
		seeOther(w, r, chatURL(chatID))
		return
	}

	if _, err := h.API.UpdateMessage(r.Context(), ac.Token, chatID, messageID, text); err != nil {
		if h.rejected(w, r, ac.SessionID, err) {
			return
		}
		h.logger(r).Error().Err(err).Int("chat", chatID).Int("message", messageID).Msg("edit message")
	} else {
		st.Cache.Invalidate(messagesKey(chatID))
	}
	seeOther(w, r, chatURL(chatID))
}

func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	ac, st := h.state(r)
	chatID, ok1 := pathInt(r, "chatId")
	messageID, ok2 := pathInt(r, "messageId")
	if !ok1 || !ok2 {
		seeOther(w, r, "/error/404")
		return
	}

	if err := h.API.DeleteMessage(r.Context(), ac.Token, chatID, messageID); err != nil {
		if h.rejected(w, r, ac.SessionID, err) {
			return
		}
		h.logger(r).Error().Err(err).Int("chat", chatID).Int("message", messageID).Msg("delete message")
	} else {
		st.Cache.Invalidate(messagesKey(chatID))
	}
	seeOther(w, r, chatURL(chatID))
}
