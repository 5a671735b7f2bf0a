package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	twitterAPIBase    = "https://api.twitter.com"
	twitterTimeout    = 30 * time.Second
	twitterMaxResults = 100
	twitterErrBodyMax = 512

	tweetFields = "created_at,author_id,referenced_tweets"
	userFields  = "username,name,profile_image_url"
	expansions  = "author_id,referenced_tweets.id,referenced_tweets.id.author_id"
)

// DefaultUserAgent is sent when the caller does not set one.
var DefaultUserAgent = "postmirror/1.0"

// FetchError is returned when the source API cannot be reached or answers
// with something other than a usable batch.
type FetchError struct {
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch: HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client reads an account's timeline from the X/Twitter v2 API.
type Client struct {
	accountID   string
	bearerToken string
	userAgent   string
	maxResults  int
	client      *http.Client
	baseURL     string
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different API host.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithMaxResults caps the batch size. Values outside 5..100 are clamped by
// the API, so they are clamped here too.
func WithMaxResults(n int) ClientOption {
	return func(c *Client) {
		switch {
		case n < 5:
			n = 5
		case n > twitterMaxResults:
			n = twitterMaxResults
		}
		c.maxResults = n
	}
}

// NewClient creates a timeline client. Account id and bearer token are required.
func NewClient(accountID, bearerToken string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.New("source: account id is required")
	}
	if strings.TrimSpace(bearerToken) == "" {
		return nil, errors.New("source: bearer token is required")
	}
	c := &Client{
		accountID:   accountID,
		bearerToken: bearerToken,
		userAgent:   DefaultUserAgent,
		maxResults:  twitterMaxResults,
		client:      &http.Client{Timeout: twitterTimeout},
		baseURL:     twitterAPIBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TimelineURL builds the request URL for posts newer than cursor. An empty
// cursor requests the most recent posts.
func (c *Client) TimelineURL(cursor string) string {
	q := url.Values{}
	q.Set("max_results", fmt.Sprintf("%d", c.maxResults))
	q.Set("tweet.fields", tweetFields)
	q.Set("user.fields", userFields)
	q.Set("expansions", expansions)
	if cursor != "" {
		q.Set("since_id", cursor)
	}
	return fmt.Sprintf("%s/2/users/%s/tweets?%s", c.baseURL, url.PathEscape(c.accountID), q.Encode())
}

// FetchSince returns up to maxResults posts strictly newer than cursor.
// Nothing new is an empty batch, not an error.
func (c *Client) FetchSince(ctx context.Context, cursor string) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.TimelineURL(cursor), nil)
	if err != nil {
		return FetchResult{}, &FetchError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return FetchResult{}, &FetchError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, twitterErrBodyMax))
		return FetchResult{}, &FetchError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(body))),
		}
	}

	var page timelinePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return FetchResult{}, &FetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	if len(page.Data) == 0 && len(page.Errors) > 0 {
		return FetchResult{}, &FetchError{StatusCode: resp.StatusCode, Err: page.Errors[0]}
	}

	return page.result()
}

type timelinePage struct {
	Data     []apiTweet `json:"data"`
	Includes struct {
		Users  []apiUser  `json:"users"`
		Tweets []apiTweet `json:"tweets"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NewestID    string `json:"newest_id"`
		OldestID    string `json:"oldest_id"`
	} `json:"meta"`
	Errors []apiError `json:"errors"`
}

type apiTweet struct {
	ID               string   `json:"id"`
	AuthorID         string   `json:"author_id"`
	Text             string   `json:"text"`
	CreatedAt        string   `json:"created_at"`
	ReferencedTweets []apiRef `json:"referenced_tweets"`
}

type apiRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type apiUser struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

func (e apiError) Error() string {
	if e.Detail != "" {
		return e.Title + ": " + e.Detail
	}
	return e.Title
}

func (p timelinePage) result() (FetchResult, error) {
	res := FetchResult{
		Posts: make([]Post, 0, len(p.Data)),
		Meta: Meta{
			ResultCount: p.Meta.ResultCount,
			NewestID:    p.Meta.NewestID,
			OldestID:    p.Meta.OldestID,
		},
	}
	for _, t := range p.Data {
		post, err := t.post()
		if err != nil {
			return FetchResult{}, &FetchError{StatusCode: http.StatusOK, Err: err}
		}
		res.Posts = append(res.Posts, post)
	}
	for _, t := range p.Includes.Tweets {
		post, err := t.post()
		if err != nil {
			return FetchResult{}, &FetchError{StatusCode: http.StatusOK, Err: err}
		}
		res.Includes.Posts = append(res.Includes.Posts, post)
	}
	for _, u := range p.Includes.Users {
		res.Includes.Users = append(res.Includes.Users, Author{
			ID:        u.ID,
			Name:      u.Name,
			Username:  u.Username,
			AvatarURL: u.ProfileImageURL,
		})
	}
	return res, nil
}

func (t apiTweet) post() (Post, error) {
	var createdAt time.Time
	if t.CreatedAt != "" {
		ts, err := time.Parse(time.RFC3339, t.CreatedAt)
		if err != nil {
			return Post{}, fmt.Errorf("post %s: invalid created_at %q: %w", t.ID, t.CreatedAt, err)
		}
		createdAt = ts.UTC()
	}

	refs := make([]Reference, 0, len(t.ReferencedTweets))
	for _, r := range t.ReferencedTweets {
		refs = append(refs, Reference{ID: r.ID, Type: refType(r.Type)})
	}

	return Post{
		ID:              t.ID,
		AuthorID:        t.AuthorID,
		Text:            t.Text,
		CreatedAt:       createdAt,
		ReferencedPosts: refs,
	}, nil
}

func refType(wire string) RefType {
	switch wire {
	case "retweeted":
		return RefRepost
	case "quoted":
		return RefQuote
	case "replied_to":
		return RefReply
	default:
		return RefNone
	}
}
