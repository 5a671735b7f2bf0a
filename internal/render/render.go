// Package render turns a source post into a chat message.
package render

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/postmirror/internal/privacy"
	"github.com/ppiankov/postmirror/internal/source"
)

const (
	DefaultDomain     = "twitter.com"
	DefaultMaxContent = 2000

	ellipsis = "…"
)

var titles = map[source.RefType]string{
	source.RefRepost: "Reposted",
	source.RefQuote:  "Quoted",
	source.RefReply:  "Replied",
	source.RefNone:   "Posted",
}

// Message is a post rendered for the destination.
type Message struct {
	PostID      string
	Title       string
	Body        string // quoted and escaped post text
	Links       []string
	DisplayName string
	AvatarURL   string
}

// Content assembles the final destination body.
func (m Message) Content() string {
	return assemble(m.Title, m.Body, m.Links)
}

func assemble(title, body string, links []string) string {
	wrapped := make([]string, len(links))
	for i, l := range links {
		wrapped[i] = SuppressEmbeds(l)
	}
	return fmt.Sprintf("**%s**\n\n%s\n\n%s", title, body, strings.Join(wrapped, "\n"))
}

// LookupError reports a post whose author is missing from the includes.
type LookupError struct {
	PostID   string
	AuthorID string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("render: author %s of post %s not in includes", e.AuthorID, e.PostID)
}

// Renderer converts posts into messages.
type Renderer struct {
	domain     string
	maxContent int
	redact     []*regexp.Regexp
}

// Option customises a Renderer.
type Option func(*Renderer)

// WithDomain sets the host used in canonical post URLs.
func WithDomain(domain string) Option {
	return func(r *Renderer) {
		if d := strings.TrimSpace(domain); d != "" {
			r.domain = d
		}
	}
}

// WithMaxContent caps the assembled content length in runes. Zero disables the cap.
func WithMaxContent(n int) Option {
	return func(r *Renderer) { r.maxContent = n }
}

// WithRedaction replaces matches of the patterns in post text before escaping.
func WithRedaction(patterns []*regexp.Regexp) Option {
	return func(r *Renderer) { r.redact = patterns }
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{domain: DefaultDomain, maxContent: DefaultMaxContent}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PostURL is the canonical web URL of a post.
func (r *Renderer) PostURL(username, id string) string {
	if username == "" {
		return fmt.Sprintf("https://%s/i/status/%s", r.domain, id)
	}
	return fmt.Sprintf("https://%s/%s/status/%s", r.domain, username, id)
}

// Render builds the message for post using the side-loaded includes.
func (r *Renderer) Render(post source.Post, includes source.Includes) (Message, error) {
	author, ok := includes.User(post.AuthorID)
	if !ok {
		return Message{}, &LookupError{PostID: post.ID, AuthorID: post.AuthorID}
	}

	refType := source.RefNone
	var ref source.Post
	var refAuthor source.Author
	var hasRefAuthor bool
	if len(post.ReferencedPosts) > 0 {
		first := post.ReferencedPosts[0]
		if p, found := includes.Post(first.ID); found {
			ref = p
			refType = first.Type
			refAuthor, hasRefAuthor = includes.User(p.AuthorID)
		}
	}

	title, ok := titles[refType]
	if !ok {
		title = titles[source.RefNone]
	}

	text := post.Text
	identity := author
	var links []string

	switch refType {
	case source.RefRepost:
		text = ref.Text
		links = []string{r.PostURL(refAuthor.Username, ref.ID)}
		if hasRefAuthor {
			identity = refAuthor
		}
	case source.RefQuote, source.RefReply:
		links = []string{
			r.PostURL(author.Username, post.ID),
			"Referencing: " + r.PostURL(refAuthor.Username, ref.ID),
		}
	default:
		links = []string{r.PostURL(author.Username, post.ID)}
	}

	text = unescapeEntities(text)
	if len(r.redact) > 0 {
		text = privacy.Apply(text, r.redact)
	}

	return Message{
		PostID:      post.ID,
		Title:       title,
		Body:        r.fit(title, Sanitize(text), links),
		Links:       links,
		DisplayName: identity.Username,
		AvatarURL:   identity.AvatarURL,
	}, nil
}

// fit quotes the sanitized text, trimming it when the assembled content
// would exceed the cap. Title and links are never cut.
func (r *Renderer) fit(title, text string, links []string) string {
	body := Quote(text)
	if r.maxContent <= 0 {
		return body
	}
	over := utf8.RuneCountInString(assemble(title, body, links)) - r.maxContent
	if over <= 0 {
		return body
	}

	runes := []rune(text)
	// Quoting adds two runes per line, so trimming can need a second pass.
	for over > 0 && len(runes) > 0 {
		cut := len(runes) - over - utf8.RuneCountInString(ellipsis)
		if cut < 0 {
			cut = 0
		}
		runes = trimDangling(runes[:cut])
		body = Quote(string(runes) + ellipsis)
		over = utf8.RuneCountInString(assemble(title, body, links)) - r.maxContent
	}
	return body
}

// trimDangling drops a trailing lone backslash or a half-kept URL so the cut
// never leaves a broken escape or link behind.
func trimDangling(runes []rune) []rune {
	s := string(runes)
	if i := strings.LastIndex(s, "<"); i >= 0 && !strings.Contains(s[i:], ">") {
		s = s[:i]
	}
	trailing := len(s) - len(strings.TrimRight(s, `\`))
	if trailing%2 == 1 {
		s = s[:len(s)-1]
	}
	return []rune(s)
}
