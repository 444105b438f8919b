package models

import "time"

type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Chat struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Owner     User      `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID        int       `json:"id"`
	ChatID    int       `json:"chat_id"`
	Text      string    `json:"text"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// Meta is the count block the API attaches to list responses.
type Meta struct {
	Count int `json:"count"`
}

type UserCollection struct {
	Meta  Meta   `json:"meta"`
	Users []User `json:"users"`
}

type ChatCollection struct {
	Meta  Meta   `json:"meta"`
	Chats []Chat `json:"chats"`
}

type MessageCollection struct {
	Meta     Meta      `json:"meta"`
	Messages []Message `json:"messages"`
}

type UserResponse struct {
	User User `json:"user"`
}

type ChatResponse struct {
	Chat Chat `json:"chat"`
}

type MessageResponse struct {
	Message Message `json:"message"`
}

// AccessToken is returned by the token endpoint.
type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the persisted side of a login. The bearer token is stored
// sealed, never in the clear.
type Session struct {
	ID          string    `json:"id"`
	SealedToken string    `json:"sealed_token"`
	Subject     string    `json:"subject"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
