package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Post is a single feed item.
type Post struct {
	ID        int64         `json:"id"`
	Title     string        `json:"title"`
	Body      string        `json:"body"`
	UserID    int64         `json:"userId"`
	Tags      []string      `json:"tags"`
	Reactions ReactionCount `json:"reactions"`
	Views     int           `json:"views"`
}

// ReactionCount models the feed API's reactions field. Older payloads send a
// bare integer, newer ones a {likes, dislikes} object. The shape is decided
// once at decode time; callers only ever use Total.
type ReactionCount struct {
	Detailed bool
	Likes    int
	Dislikes int
}

// Total returns the combined reaction count regardless of wire shape.
func (r ReactionCount) Total() int {
	return r.Likes + r.Dislikes
}

func (r *ReactionCount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*r = ReactionCount{}
		return nil
	}

	if trimmed[0] == '{' {
		var detailed struct {
			Likes    int `json:"likes"`
			Dislikes int `json:"dislikes"`
		}
		if err := json.Unmarshal(trimmed, &detailed); err != nil {
			return fmt.Errorf("entity: decode reactions object: %w", err)
		}
		*r = ReactionCount{Detailed: true, Likes: detailed.Likes, Dislikes: detailed.Dislikes}
		return nil
	}

	var flat int
	if err := json.Unmarshal(trimmed, &flat); err != nil {
		return fmt.Errorf("entity: decode reactions count: %w", err)
	}
	*r = ReactionCount{Likes: flat}
	return nil
}

func (r ReactionCount) MarshalJSON() ([]byte, error) {
	if r.Detailed {
		return json.Marshal(struct {
			Likes    int `json:"likes"`
			Dislikes int `json:"dislikes"`
		}{Likes: r.Likes, Dislikes: r.Dislikes})
	}
	return json.Marshal(r.Total())
}
