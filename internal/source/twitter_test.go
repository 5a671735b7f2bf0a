package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func clientWithTransport(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	c, err := NewClient("42", "secret-token",
		WithBaseURL("https://api.twitter.test"),
		WithHTTPClient(&http.Client{Timeout: twitterTimeout, Transport: rt}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

const timelineFixture = `{
  "data": [
    {
      "id": "1002",
      "author_id": "42",
      "text": "quoting this &amp; that",
      "created_at": "2026-03-01T10:05:00.000Z",
      "referenced_tweets": [{"type": "quoted", "id": "900"}]
    },
    {
      "id": "1001",
      "author_id": "42",
      "text": "RT @other: hello",
      "created_at": "2026-03-01T10:00:00.000Z",
      "referenced_tweets": [{"type": "retweeted", "id": "901"}]
    },
    {
      "id": "1000",
      "author_id": "42",
      "text": "plain",
      "created_at": "2026-03-01T09:00:00.000Z"
    }
  ],
  "includes": {
    "users": [
      {"id": "42", "name": "Mirror", "username": "mirror", "profile_image_url": "https://img.test/42.png"},
      {"id": "7", "name": "Other", "username": "other", "profile_image_url": "https://img.test/7.png"}
    ],
    "tweets": [
      {"id": "900", "author_id": "7", "text": "original", "created_at": "2026-02-28T10:00:00.000Z"},
      {"id": "901", "author_id": "7", "text": "hello", "created_at": "2026-02-28T11:00:00.000Z"}
    ]
  },
  "meta": {"result_count": 3, "newest_id": "1002", "oldest_id": "1000"}
}`

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient("", "token"); err == nil {
		t.Fatal("expected error for empty account id")
	}
	if _, err := NewClient("42", " "); err == nil {
		t.Fatal("expected error for empty bearer token")
	}
}

func TestTimelineURL(t *testing.T) {
	c, err := NewClient("42", "token", WithBaseURL("https://api.twitter.test/"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	t.Run("without cursor", func(t *testing.T) {
		u, err := url.Parse(c.TimelineURL(""))
		if err != nil {
			t.Fatalf("parse url: %v", err)
		}
		if u.Path != "/2/users/42/tweets" {
			t.Errorf("path = %q", u.Path)
		}
		q := u.Query()
		if q.Get("max_results") != "100" {
			t.Errorf("max_results = %q, want 100", q.Get("max_results"))
		}
		if q.Has("since_id") {
			t.Error("since_id should be absent without cursor")
		}
		if !strings.Contains(q.Get("expansions"), "referenced_tweets.id.author_id") {
			t.Errorf("expansions = %q", q.Get("expansions"))
		}
		if !strings.Contains(q.Get("user.fields"), "profile_image_url") {
			t.Errorf("user.fields = %q", q.Get("user.fields"))
		}
	})

	t.Run("with cursor", func(t *testing.T) {
		u, _ := url.Parse(c.TimelineURL("999"))
		if got := u.Query().Get("since_id"); got != "999" {
			t.Errorf("since_id = %q, want 999", got)
		}
	})
}

func TestWithMaxResults_Clamps(t *testing.T) {
	c, _ := NewClient("42", "token", WithMaxResults(1000))
	if c.maxResults != 100 {
		t.Errorf("maxResults = %d, want 100", c.maxResults)
	}
	c, _ = NewClient("42", "token", WithMaxResults(1))
	if c.maxResults != 5 {
		t.Errorf("maxResults = %d, want 5", c.maxResults)
	}
}

func TestFetchSince_ParsesBatch(t *testing.T) {
	var gotAuth, gotSince string
	c := clientWithTransport(t, func(req *http.Request) (*http.Response, error) {
		gotAuth = req.Header.Get("Authorization")
		gotSince = req.URL.Query().Get("since_id")
		return response(http.StatusOK, timelineFixture), nil
	})

	res, err := c.FetchSince(context.Background(), "999")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotSince != "999" {
		t.Errorf("since_id = %q", gotSince)
	}
	if len(res.Posts) != 3 {
		t.Fatalf("posts = %d, want 3", len(res.Posts))
	}

	quote := res.Posts[0]
	if quote.ID != "1002" || quote.AuthorID != "42" {
		t.Errorf("unexpected post: %+v", quote)
	}
	if len(quote.ReferencedPosts) != 1 || quote.ReferencedPosts[0].Type != RefQuote || quote.ReferencedPosts[0].ID != "900" {
		t.Errorf("references = %+v", quote.ReferencedPosts)
	}
	want := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	if !quote.CreatedAt.Equal(want) {
		t.Errorf("created_at = %v, want %v", quote.CreatedAt, want)
	}
	if res.Posts[1].ReferencedPosts[0].Type != RefRepost {
		t.Errorf("retweeted should map to repost, got %q", res.Posts[1].ReferencedPosts[0].Type)
	}
	if len(res.Posts[2].ReferencedPosts) != 0 {
		t.Errorf("plain post should have no references")
	}

	author, ok := res.Includes.User("7")
	if !ok || author.Username != "other" || author.AvatarURL != "https://img.test/7.png" {
		t.Errorf("user 7 = %+v, %v", author, ok)
	}
	if _, ok := res.Includes.Post("901"); !ok {
		t.Error("included post 901 missing")
	}
	if res.Meta.NewestID != "1002" || res.Meta.ResultCount != 3 {
		t.Errorf("meta = %+v", res.Meta)
	}
}

func TestFetchSince_EmptyBatch(t *testing.T) {
	c := clientWithTransport(t, func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, `{"meta":{"result_count":0}}`), nil
	})

	res, err := c.FetchSince(context.Background(), "1000")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Posts == nil || len(res.Posts) != 0 {
		t.Errorf("expected empty non-nil posts, got %#v", res.Posts)
	}
}

func TestFetchSince_Errors(t *testing.T) {
	tests := []struct {
		name       string
		rt         roundTripFunc
		wantStatus int
	}{
		{
			name: "non-2xx",
			rt: func(*http.Request) (*http.Response, error) {
				return response(http.StatusUnauthorized, `{"title":"Unauthorized"}`), nil
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "malformed json",
			rt: func(*http.Request) (*http.Response, error) {
				return response(http.StatusOK, `{"data": [`), nil
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "api errors without data",
			rt: func(*http.Request) (*http.Response, error) {
				return response(http.StatusOK, `{"errors":[{"title":"Not Found Error","detail":"Could not find user"}]}`), nil
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "bad timestamp",
			rt: func(*http.Request) (*http.Response, error) {
				return response(http.StatusOK, `{"data":[{"id":"1","author_id":"42","text":"x","created_at":"yesterday"}]}`), nil
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "transport failure",
			rt: func(*http.Request) (*http.Response, error) {
				return nil, errors.New("connection refused")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := clientWithTransport(t, tt.rt)
			_, err := c.FetchSince(context.Background(), "")
			if err == nil {
				t.Fatal("expected error")
			}
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FetchError, got %T: %v", err, err)
			}
			if fe.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", fe.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestFetchSince_HTTPServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/users/42/tweets" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, timelineFixture)
	}))
	defer ts.Close()

	c, err := NewClient("42", "token", WithBaseURL(ts.URL), WithUserAgent("postmirror-test"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	res, err := c.FetchSince(context.Background(), "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Posts) != 3 {
		t.Errorf("posts = %d, want 3", len(res.Posts))
	}
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1", "2", -1},
		{"10", "9", 1},
		{"1750000000000000001", "1750000000000000001", 0},
		{"1750000000000000002", "1750000000000000001", 1},
		{"abc", "abd", -1},
		{"zz", "abc", -1},
	}
	for _, tt := range tests {
		if got := CompareIDs(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareIDs(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
