// Package search filters the chat list by the left nav search box.
package search

import "github.com/pliu/ponyexpress/internal/models"

// Match reports whether the runes of pattern appear in name in order,
// not necessarily adjacent. Matching is case-sensitive and an empty
// pattern matches everything.
func Match(pattern, name string) bool {
	want := []rune(pattern)
	if len(want) == 0 {
		return true
	}
	i := 0
	for _, r := range name {
		if r == want[i] {
			i++
			if i == len(want) {
				return true
			}
		}
	}
	return false
}

// FilterChats keeps the chats whose name matches pattern, in the order
// given.
func FilterChats(pattern string, chats []models.Chat) []models.Chat {
	if pattern == "" {
		return chats
	}
	out := make([]models.Chat, 0, len(chats))
	for _, c := range chats {
		if Match(pattern, c.Name) {
			out = append(out, c)
		}
	}
	return out
}
