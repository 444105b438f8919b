package router

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/pliu/ponyexpress/internal/models"
)

func withUser(r *http.Request, id int) context.Context {
	return context.WithValue(r.Context(), userKey{}, id)
}

func (f *fakeAPI) userLocked(id int) (models.User, bool) {
	for _, u := range f.users {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

func (f *fakeAPI) caller(r *http.Request) models.User {
	id, _ := r.Context().Value(userKey{}).(int)
	u, _ := f.userLocked(id)
	return u
}

func (f *fakeAPI) chatLocked(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	for i, c := range f.chats {
		if c.ID == id {
			return i, true
		}
	}
	detail(w, http.StatusNotFound, map[string]any{"type": "entity_not_found", "entity_name": "Chat", "entity_id": id})
	return 0, false
}

func (f *fakeAPI) membersLocked(chatID int) []models.User {
	users := []models.User{}
	for _, id := range f.members[chatID] {
		if u, ok := f.userLocked(id); ok {
			users = append(users, u)
		}
	}
	return users
}

func (f *fakeAPI) me(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, models.UserResponse{User: f.caller(r)})
}

func (f *fakeAPI) listUsers(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, models.UserCollection{Meta: models.Meta{Count: len(f.users)}, Users: f.users})
}

func (f *fakeAPI) listChats(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chats := append([]models.Chat{}, f.chats...)
	writeJSON(w, http.StatusOK, models.ChatCollection{Meta: models.Meta{Count: len(chats)}, Chats: chats})
}

func (f *fakeAPI) createChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	name := r.URL.Query().Get("chat_name")
	if name == "" {
		name = body.Name
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	owner := f.caller(r)
	c := models.Chat{ID: f.nextChat, Name: name, Owner: owner, CreatedAt: time.Now().UTC()}
	f.nextChat++
	f.chats = append(f.chats, c)
	f.members[c.ID] = []int{owner.ID}
	writeJSON(w, http.StatusOK, models.ChatResponse{Chat: c})
}

func (f *fakeAPI) getChat(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i, ok := f.chatLocked(w, r); ok {
		writeJSON(w, http.StatusOK, models.ChatResponse{Chat: f.chats[i]})
	}
}

func (f *fakeAPI) renameChat(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.chatLocked(w, r)
	if !ok {
		return
	}
	if f.chats[i].Owner.ID != f.caller(r).ID {
		detail(w, http.StatusForbidden, "only the owner can rename the chat")
		return
	}
	f.chats[i].Name = r.URL.Query().Get("new_name")
	writeJSON(w, http.StatusOK, models.ChatResponse{Chat: f.chats[i]})
}

func (f *fakeAPI) listMessages(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.chatLocked(w, r)
	if !ok {
		return
	}
	msgs := append([]models.Message{}, f.messages[f.chats[i].ID]...)
	writeJSON(w, http.StatusOK, models.MessageCollection{Meta: models.Meta{Count: len(msgs)}, Messages: msgs})
}

func (f *fakeAPI) createMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.chatLocked(w, r)
	if !ok {
		return
	}
	chatID := f.chats[i].ID
	m := models.Message{ID: f.nextMsg, ChatID: chatID, Text: body.Text, User: f.caller(r), CreatedAt: time.Now().UTC()}
	f.nextMsg++
	f.messages[chatID] = append(f.messages[chatID], m)
	writeJSON(w, http.StatusCreated, models.MessageResponse{Message: m})
}

func (f *fakeAPI) messageLocked(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	i, ok := f.chatLocked(w, r)
	if !ok {
		return 0, 0, false
	}
	chatID := f.chats[i].ID
	mid, _ := strconv.Atoi(mux.Vars(r)["mid"])
	for j, m := range f.messages[chatID] {
		if m.ID == mid {
			return chatID, j, true
		}
	}
	detail(w, http.StatusNotFound, map[string]any{"type": "entity_not_found", "entity_name": "Message", "entity_id": mid})
	return 0, 0, false
}

func (f *fakeAPI) updateMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	chatID, j, ok := f.messageLocked(w, r)
	if !ok {
		return
	}
	f.messages[chatID][j].Text = body.Text
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: f.messages[chatID][j]})
}

func (f *fakeAPI) deleteMessage(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chatID, j, ok := f.messageLocked(w, r)
	if !ok {
		return
	}
	msgs := f.messages[chatID]
	f.messages[chatID] = append(msgs[:j:j], msgs[j+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeAPI) listMembers(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.chatLocked(w, r)
	if !ok {
		return
	}
	users := f.membersLocked(f.chats[i].ID)
	writeJSON(w, http.StatusOK, models.UserCollection{Meta: models.Meta{Count: len(users)}, Users: users})
}

func (f *fakeAPI) addMember(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.chatLocked(w, r)
	if !ok {
		return
	}
	chatID := f.chats[i].ID
	uid, _ := strconv.Atoi(mux.Vars(r)["uid"])
	f.members[chatID] = append(f.members[chatID], uid)
	writeJSON(w, http.StatusCreated, models.UserCollection{Users: f.membersLocked(chatID)})
}

func (f *fakeAPI) removeMember(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.chatLocked(w, r)
	if !ok {
		return
	}
	chatID := f.chats[i].ID
	uid, _ := strconv.Atoi(mux.Vars(r)["uid"])
	kept := []int{}
	for _, id := range f.members[chatID] {
		if id != uid {
			kept = append(kept, id)
		}
	}
	f.members[chatID] = kept
	writeJSON(w, http.StatusOK, models.UserCollection{Users: f.membersLocked(chatID)})
}
