package source

import (
	"strconv"
	"strings"
	"time"
)

// RefType is the relationship between a post and the post it references.
type RefType string

const (
	RefNone   RefType = "none"
	RefRepost RefType = "repost"
	RefQuote  RefType = "quote"
	RefReply  RefType = "reply"
)

// Reference points at another post by id.
type Reference struct {
	ID   string
	Type RefType
}

// Post represents a single item published by the mirrored account.
type Post struct {
	ID              string
	AuthorID        string
	Text            string
	CreatedAt       time.Time
	ReferencedPosts []Reference
}

// Author is the public identity of an account.
type Author struct {
	ID        string
	Name      string
	Username  string
	AvatarURL string
}

// Includes holds the side-loaded entities that accompany a batch.
type Includes struct {
	Users []Author
	Posts []Post
}

// User returns the included author with the given id.
func (in Includes) User(id string) (Author, bool) {
	for _, u := range in.Users {
		if u.ID == id {
			return u, true
		}
	}
	return Author{}, false
}

// Post returns the included post with the given id.
func (in Includes) Post(id string) (Post, bool) {
	for _, p := range in.Posts {
		if p.ID == id {
			return p, true
		}
	}
	return Post{}, false
}

// Meta is the pagination summary returned with a batch.
type Meta struct {
	ResultCount int
	NewestID    string
	OldestID    string
}

// FetchResult is a batch of posts plus referenced entities.
type FetchResult struct {
	Posts    []Post
	Includes Includes
	Meta     Meta
}

// CompareIDs orders two post ids. Snowflake ids compare numerically; anything
// else falls back to length then lexical order, which agrees with numeric
// order for unpadded decimal strings.
func CompareIDs(a, b string) int {
	an, aerr := strconv.ParseUint(a, 10, 64)
	bn, berr := strconv.ParseUint(b, 10, 64)
	if aerr == nil && berr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	}
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
