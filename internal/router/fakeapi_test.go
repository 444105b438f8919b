package router

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/pliu/ponyexpress/internal/models"
)

var apiKey = []byte("fake-api-key")

// fakeAPI is an in-memory stand-in for the chat REST API.
type fakeAPI struct {
	mu        sync.Mutex
	users     []models.User
	passwords map[string]string
	chats     []models.Chat
	members   map[int][]int
	messages  map[int][]models.Message
	nextUser  int
	nextChat  int
	nextMsg   int
	rejectAll bool
	calls     map[string]int
}

func newFakeAPI() *fakeAPI {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	alice := models.User{ID: 1, Username: "alice", Email: "alice@example.com", CreatedAt: at}
	bob := models.User{ID: 2, Username: "bob", Email: "bob@example.com", CreatedAt: at}
	carol := models.User{ID: 3, Username: "carol", Email: "carol@example.com", CreatedAt: at}

	return &fakeAPI{
		users:     []models.User{alice, bob, carol},
		passwords: map[string]string{"alice": "password", "bob": "password", "carol": "password"},
		chats: []models.Chat{
			{ID: 1, Name: "general", Owner: alice, CreatedAt: at},
			{ID: 2, Name: "random", Owner: bob, CreatedAt: at},
			{ID: 3, Name: "gardening", Owner: bob, CreatedAt: at},
		},
		members: map[int][]int{1: {1, 2}, 2: {2, 1}, 3: {2, 1}},
		messages: map[int][]models.Message{
			1: {
				{ID: 1, ChatID: 1, Text: "hi from alice", User: alice, CreatedAt: at},
				{ID: 2, ChatID: 1, Text: "hi from bob", User: bob, CreatedAt: at.Add(time.Minute)},
			},
		},
		nextUser: 4,
		nextChat: 4,
		nextMsg:  3,
		calls:    make(map[string]int),
	}
}

func (f *fakeAPI) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func detail(w http.ResponseWriter, code int, d any) {
	writeJSON(w, code, map[string]any{"detail": d})
}

func (f *fakeAPI) handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/auth/token", f.token).Methods("POST")
	r.HandleFunc("/auth/registration", f.register).Methods("POST")

	p := r.NewRoute().Subrouter()
	p.Use(f.authenticate)
	p.HandleFunc("/users/me", f.me).Methods("GET")
	p.HandleFunc("/users", f.listUsers).Methods("GET")
	p.HandleFunc("/chats", f.listChats).Methods("GET")
	p.HandleFunc("/chats", f.createChat).Methods("POST")
	p.HandleFunc("/chats/{id}", f.getChat).Methods("GET")
	p.HandleFunc("/chats/{id}", f.renameChat).Methods("PUT")
	p.HandleFunc("/chats/{id}/messages", f.listMessages).Methods("GET")
	p.HandleFunc("/chats/{id}/messages", f.createMessage).Methods("POST")
	p.HandleFunc("/chats/{id}/messages/{mid}", f.updateMessage).Methods("PUT")
	p.HandleFunc("/chats/{id}/messages/{mid}", f.deleteMessage).Methods("DELETE")
	p.HandleFunc("/chats/{id}/users", f.listMembers).Methods("GET")
	p.HandleFunc("/chats/{id}/users/{uid}", f.addMember).Methods("PUT")
	p.HandleFunc("/chats/{id}/users/{uid}", f.removeMember).Methods("DELETE")

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		f.calls[req.Method+" "+req.URL.Path]++
		f.mu.Unlock()
		r.ServeHTTP(w, req)
	})
}

type userKey struct{}

func (f *fakeAPI) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return apiKey, nil },
			jwt.WithValidMethods([]string{"HS256"}))
		f.mu.Lock()
		reject := f.rejectAll
		f.mu.Unlock()
		if err != nil || reject {
			detail(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client", "error_description": "invalid bearer token"})
			return
		}
		sub, _ := tok.Claims.GetSubject()
		id, _ := strconv.Atoi(sub)
		next.ServeHTTP(w, r.WithContext(withUser(r, id)))
	})
}

func (f *fakeAPI) token(w http.ResponseWriter, r *http.Request) {
	username, password := r.PostFormValue("username"), r.PostFormValue("password")
	f.mu.Lock()
	want, ok := f.passwords[username]
	var id int
	for _, u := range f.users {
		if u.Username == username {
			id = u.ID
		}
	}
	f.mu.Unlock()
	if !ok || want != password {
		detail(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client", "error_description": "invalid username or password"})
		return
	}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.Itoa(id),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(apiKey)
	writeJSON(w, http.StatusOK, models.AccessToken{AccessToken: tok, TokenType: "bearer", ExpiresIn: 3600})
}

func (f *fakeAPI) register(w http.ResponseWriter, r *http.Request) {
	var reg models.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		detail(w, http.StatusUnprocessableEntity, []map[string]string{{"msg": "invalid body"}})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.passwords[reg.Username]; ok {
		detail(w, http.StatusUnprocessableEntity, map[string]any{
			"type": "duplicate_entity", "entity_name": "User", "entity_field": "username", "entity_value": reg.Username,
		})
		return
	}
	u := models.User{ID: f.nextUser, Username: reg.Username, Email: reg.Email, CreatedAt: time.Now().UTC()}
	f.nextUser++
	f.users = append(f.users, u)
	f.passwords[reg.Username] = reg.Password
	writeJSON(w, http.StatusCreated, models.UserResponse{User: u})
}
