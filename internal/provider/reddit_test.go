package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/Akhilkandikonda/pipedream/internal/poll"
	"github.com/Akhilkandikonda/pipedream/internal/reddit"
	"github.com/Akhilkandikonda/pipedream/internal/state"
)

func rcomment(id, parent string, minutes int) reddit.Comment {
	return reddit.Comment{
		ID:         id,
		Name:       "t1_" + id,
		ParentID:   parent,
		Author:     "gopher",
		Body:       "body of " + id,
		CreatedUTC: float64(t0.Add(time.Duration(minutes) * time.Minute).Unix()),
		Raw:        json.RawMessage(fmt.Sprintf(`{"name":"t1_%s"}`, id)),
	}
}

// fakeReddit is an in-memory RedditAPI.
type fakeReddit struct {
	comments []reddit.Comment
	byName   map[string]*reddit.Comment
	links    map[string]*reddit.LinksPage // by before
	about    json.RawMessage
	err      error

	commentOpts []reddit.CommentOptions
	lookups     []string
	befores     []string
}

func (f *fakeReddit) PostComments(_ context.Context, _, _ string, opts reddit.CommentOptions) ([]reddit.Comment, error) {
	f.commentOpts = append(f.commentOpts, opts)

	if f.err != nil {
		return nil, f.err
	}

	return f.comments, nil
}

func (f *fakeReddit) NewLinks(_ context.Context, _, before string, _ int) (*reddit.LinksPage, error) {
	f.befores = append(f.befores, before)

	if p, ok := f.links[before]; ok {
		return p, nil
	}

	return &reddit.LinksPage{}, nil
}

func (f *fakeReddit) CommentByName(_ context.Context, fullname string) (*reddit.Comment, error) {
	f.lookups = append(f.lookups, fullname)

	if f.err != nil {
		return nil, f.err
	}

	if c, ok := f.byName[fullname]; ok {
		return c, nil
	}

	return nil, fmt.Errorf("%w: comment %s", reddit.ErrNotFound, fullname)
}

func (f *fakeReddit) About(_ context.Context, _ string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.about, nil
}

func TestRedditScope(t *testing.T) {
	a := RedditScope("r/golang", "abc")
	b := RedditScope("golang", "t3_abc")

	assert.Equal(t, a, b)
	assert.Equal(t, poll.ScopeResource, a.Kind)
	assert.Equal(t, "t3_abc", a.ID)
	assert.Equal(t, "reddit:resource:golang/t3_abc", a.Key())
}

func TestReddit_ListPageAppliesWatermark(t *testing.T) {
	api := &fakeReddit{comments: []reddit.Comment{
		rcomment("new", "t3_abc", 10),
		rcomment("edge", "t3_abc", 5),
		rcomment("old", "t3_abc", 1),
	}}

	r := NewReddit(api, RedditOptions{Limit: 50}, testLogger(t))
	scope := RedditScope("golang", "abc")
	cursor := poll.Cursor(t0.Add(5 * time.Minute).Format(time.RFC3339Nano))

	page, err := r.ListPage(context.Background(), poll.PageRequest{Scope: scope, Node: scope.ID, Cursor: cursor, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "t1_new", page.Items[0].ID)
	assert.Equal(t, "t1_edge", page.Items[1].ID, "items at the watermark are kept")
	assert.Equal(t, poll.KindComment, page.Items[0].Kind)
	assert.Equal(t, "body of new", page.Items[0].Summary)
	assert.Empty(t, page.NextPageToken)

	assert.Equal(t, []reddit.CommentOptions{{Depth: 1, Limit: 10}}, api.commentOpts, "smaller limit wins, depth defaults to 1")
}

func TestReddit_ListPageRejectsDescent(t *testing.T) {
	r := NewReddit(&fakeReddit{}, RedditOptions{}, testLogger(t))
	scope := RedditScope("golang", "abc")

	_, err := r.ListPage(context.Background(), poll.PageRequest{Scope: scope, Node: "t1_x"})
	require.ErrorIs(t, err, poll.ErrConfiguration)
}

func TestReddit_GetParent(t *testing.T) {
	parent := rcomment("p", "t3_abc", 1)
	api := &fakeReddit{byName: map[string]*reddit.Comment{"t1_p": &parent}}
	r := NewReddit(api, RedditOptions{}, testLogger(t))

	top := commentItem(&parent)
	got, err := r.GetParent(context.Background(), &top)
	require.NoError(t, err)
	assert.Nil(t, got, "post is not a comment ancestor")

	child := rcomment("c", "t1_p", 2)
	childItem := commentItem(&child)

	got, err = r.GetParent(context.Background(), &childItem)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t1_p", got.ID)
	assert.Equal(t, []string{"t1_p"}, api.lookups)

	orphan := rcomment("o", "t1_gone", 3)
	orphanItem := commentItem(&orphan)

	got, err = r.GetParent(context.Background(), &orphanItem)
	require.NoError(t, err, "a missing parent ends the chain")
	assert.Nil(t, got)
	assert.Equal(t, []string{"t1_p", "t1_gone"}, api.lookups)
}

func TestReddit_GetParentTransientError(t *testing.T) {
	api := &fakeReddit{err: fmt.Errorf("%w: status 503", reddit.ErrServerError)}
	r := NewReddit(api, RedditOptions{}, testLogger(t))

	child := rcomment("c", "t1_p", 2)
	childItem := commentItem(&child)

	_, err := r.GetParent(context.Background(), &childItem)
	require.ErrorIs(t, err, poll.ErrTransientProvider)
}

func TestReddit_ListCandidatesFollowsBefore(t *testing.T) {
	api := &fakeReddit{links: map[string]*reddit.LinksPage{
		"": {Links: []reddit.Link{
			{ID: "b", Name: "t3_b", Title: "Second"},
			{ID: "a", Name: "t3_a", Title: "First"},
		}},
		"t3_b": {Links: []reddit.Link{
			{ID: "c", Name: "t3_c", Title: "Third"},
			{ID: "b", Name: "t3_b", Title: "Second"},
		}},
	}}

	r := NewReddit(api, RedditOptions{}, testLogger(t))

	got, err := r.ListCandidates(context.Background(), RedditScope("golang", ""))
	require.NoError(t, err)
	assert.Equal(t, []poll.Candidate{
		{Label: "Second", Value: "b"},
		{Label: "First", Value: "a"},
		{Label: "Third", Value: "c"},
	}, got)
	assert.Equal(t, []string{"", "t3_b", "t3_c"}, api.befores)
}

func TestReddit_Classification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"not found", &reddit.APIError{StatusCode: 404, Err: reddit.ErrNotFound}, poll.ErrConfiguration},
		{"forbidden", &reddit.APIError{StatusCode: 403, Err: reddit.ErrForbidden}, poll.ErrConfiguration},
		{"throttled", &reddit.APIError{StatusCode: 429, Err: reddit.ErrThrottled}, poll.ErrTransientProvider},
		{"server", &reddit.APIError{StatusCode: 500, Err: reddit.ErrServerError}, poll.ErrTransientProvider},
		{"bad credentials", fmt.Errorf("reddit: obtaining token: %w",
			&oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusUnauthorized}}), poll.ErrConfiguration},
		{"network", errors.New("connection reset"), poll.ErrTransientProvider},
		{"deadline", context.DeadlineExceeded, context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReddit(&fakeReddit{err: tt.err}, RedditOptions{}, testLogger(t))
			scope := RedditScope("golang", "abc")

			_, err := r.ListPage(context.Background(), poll.PageRequest{Scope: scope, Node: scope.ID})
			require.ErrorIs(t, err, tt.sentinel)

			_, err = r.DescribeScope(context.Background(), scope)
			require.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestReddit_Advance(t *testing.T) {
	r := NewReddit(&fakeReddit{}, RedditOptions{}, testLogger(t))
	a, b := rcomment("a", "t3_x", 3), rcomment("b", "t3_x", 8)

	got := r.Advance("", []poll.Item{commentItem(&b), commentItem(&a)})
	assert.Equal(t, poll.Cursor("2024-05-01T09:08:00Z"), got)
	assert.Equal(t, got, r.Advance(got, nil))
}

// TestReddit_EndToEnd activates and runs a post watcher against a fake
// Reddit server: the deploy sample emits the existing comments with their
// parents and subreddit details, and the next run only the new reply.
func TestReddit_EndToEnd(t *testing.T) {
	var (
		mu    sync.Mutex
		reply string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		switch r.URL.Path {
		case "/r/golang/comments/abc":
			_, _ = w.Write([]byte(`[{"kind":"Listing","data":{"children":[]}},
				{"kind":"Listing","data":{"children":[
				  {"kind":"t1","data":{"id":"c1","name":"t1_c1","parent_id":"t3_abc","body":"first","created_utc":1714554000,
				   "replies":{"kind":"Listing","data":{"children":[` + reply + `]}}}}]}}]`))
		case "/api/info":
			assert.Equal(t, "t1_c1", r.URL.Query().Get("id"))
			_, _ = w.Write([]byte(`{"kind":"Listing","data":{"children":[
				{"kind":"t1","data":{"id":"c1","name":"t1_c1","parent_id":"t3_abc","body":"first","created_utc":1714554000}}]}}`))
		case "/r/golang/about":
			_, _ = w.Write([]byte(`{"kind":"t5","data":{"display_name":"golang"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	logger := testLogger(t)

	store, err := state.Open(ctx, filepath.Join(t.TempDir(), "state.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := reddit.NewClient(srv.URL, nil, staticToken("tok"), "", logger)

	var events []poll.Event

	sink := poll.SinkFunc(func(_ context.Context, ev poll.Event) error {
		events = append(events, ev)
		return nil
	})

	src, err := poll.NewSource(poll.SourceConfig{
		Name:                "thread",
		Scope:               RedditScope("golang", "abc"),
		NumberOfParents:     2,
		IncludeScopeDetails: true,
	}, NewReddit(client, RedditOptions{Depth: 2}, logger), store, sink, logger)
	require.NoError(t, err)

	_, err = src.Activate(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "t1_c1", events[0].ID)
	assert.Empty(t, events[0].Ancestors)
	assert.JSONEq(t, `{"display_name":"golang"}`, string(events[0].Scope))

	mu.Lock()
	reply = `{"kind":"t1","data":{"id":"c2","name":"t1_c2","parent_id":"t1_c1","body":"second","created_utc":1714554600}}`
	mu.Unlock()

	_, err = src.Run(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2, "sample id suppressed, reply emitted")
	assert.Equal(t, "t1_c2", events[1].ID)
	require.Len(t, events[1].Ancestors, 1)
	assert.Equal(t, "t1_c1", events[1].Ancestors[0].ID)

	data, err := json.Marshal(events[1])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ancestors":[{`)
}
