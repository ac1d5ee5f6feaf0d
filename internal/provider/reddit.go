package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/Akhilkandikonda/pipedream/internal/poll"
	"github.com/Akhilkandikonda/pipedream/internal/reddit"
)

// RedditName is the provider name used in scope keys.
const RedditName = "reddit"

const (
	candidatePageSize = 100
	maxCandidatePages = 10
)

// RedditAPI is the subset of reddit.Client the adapter uses.
type RedditAPI interface {
	PostComments(ctx context.Context, subreddit, article string, opts reddit.CommentOptions) ([]reddit.Comment, error)
	NewLinks(ctx context.Context, subreddit, before string, limit int) (*reddit.LinksPage, error)
	CommentByName(ctx context.Context, fullname string) (*reddit.Comment, error)
	About(ctx context.Context, subreddit string) (json.RawMessage, error)
}

// RedditOptions shape the comment request.
type RedditOptions struct {
	// Depth is the maximum reply depth fetched. Default 1.
	Depth int
	// Limit caps top-level comments per request. 0 lets Reddit decide.
	Limit int
}

// Reddit watches one post for new comments.
type Reddit struct {
	api    RedditAPI
	opts   RedditOptions
	logger *slog.Logger
}

// NewReddit creates the adapter.
func NewReddit(api RedditAPI, opts RedditOptions, logger *slog.Logger) *Reddit {
	if opts.Depth <= 0 {
		opts.Depth = 1
	}

	return &Reddit{api: api, opts: opts, logger: logger}
}

// RedditScope builds the resource scope for a post in a subreddit. The post
// may be given with or without its t3_ prefix.
func RedditScope(subreddit, post string) poll.Scope {
	return poll.Scope{
		Provider: RedditName,
		Kind:     poll.ScopeResource,
		ID:       reddit.KindLink + "_" + strings.TrimPrefix(post, reddit.KindLink+"_"),
		Parent:   strings.TrimPrefix(subreddit, "r/"),
	}
}

// Name implements poll.Provider.
func (r *Reddit) Name() string {
	return RedditName
}

// ListPage returns the post's comments that are not older than the
// watermark. The comment tree arrives in one response, so there is never a
// next page.
func (r *Reddit) ListPage(ctx context.Context, req poll.PageRequest) (*poll.Page, error) {
	if !req.TopLevel() {
		return nil, fmt.Errorf("reddit: %w: comments have no children to list (%s)", poll.ErrConfiguration, req.Node)
	}

	limit := r.opts.Limit
	if req.Limit > 0 && (limit == 0 || req.Limit < limit) {
		limit = req.Limit
	}

	comments, err := r.api.PostComments(ctx, req.Scope.Parent, req.Scope.ID,
		reddit.CommentOptions{Depth: r.opts.Depth, Limit: limit})
	if err != nil {
		return nil, r.classify(err)
	}

	wm, ok := parseWatermark(req.Cursor)
	page := &poll.Page{Items: make([]poll.Item, 0, len(comments))}

	for i := range comments {
		c := &comments[i]
		if belowWatermark(c.Created(), wm, ok) {
			continue
		}

		page.Items = append(page.Items, commentItem(c))
	}

	r.logger.Debug("listed post comments",
		slog.String("post", req.Scope.ID),
		slog.Int("fetched", len(comments)),
		slog.Int("returned", len(page.Items)),
	)

	return page, nil
}

// Advance implements poll.CursorAdvancer.
func (r *Reddit) Advance(current poll.Cursor, items []poll.Item) poll.Cursor {
	return advanceWatermark(current, items, func(*poll.Item) bool { return true })
}

// GetItem implements poll.Provider.
func (r *Reddit) GetItem(ctx context.Context, id string) (*poll.Item, error) {
	c, err := r.api.CommentByName(ctx, id)
	if err != nil {
		return nil, r.classify(err)
	}

	it := commentItem(c)

	return &it, nil
}

// GetParent implements poll.ParentResolver. Top-level comments have the
// post as parent, which ends the chain. So does a parent Reddit no longer
// returns (removed or purged).
func (r *Reddit) GetParent(ctx context.Context, item *poll.Item) (*poll.Item, error) {
	if !strings.HasPrefix(item.ParentID, reddit.KindComment+"_") {
		return nil, nil //nolint:nilnil // root-level comment
	}

	c, err := r.api.CommentByName(ctx, item.ParentID)
	if errors.Is(err, reddit.ErrNotFound) {
		r.logger.Warn("parent comment not found, ending ancestor chain",
			slog.String("comment", item.ID),
			slog.String("parent", item.ParentID),
		)

		return nil, nil //nolint:nilnil // missing ancestor
	}

	if err != nil {
		return nil, r.classify(err)
	}

	it := commentItem(c)

	return &it, nil
}

// DescribeScope implements poll.ScopeDescriber with the subreddit's about
// payload.
func (r *Reddit) DescribeScope(ctx context.Context, scope poll.Scope) (json.RawMessage, error) {
	raw, err := r.api.About(ctx, scope.Parent)
	if err != nil {
		return nil, r.classify(err)
	}

	return raw, nil
}

// ListCandidates implements poll.CandidateLister: the subreddit's posts, to
// pick the one to watch. Pages are followed with "before" until Reddit has
// nothing newer.
func (r *Reddit) ListCandidates(ctx context.Context, scope poll.Scope) ([]poll.Candidate, error) {
	var (
		out    []poll.Candidate
		before string
		seen   = make(map[string]bool)
	)

	for range maxCandidatePages {
		page, err := r.api.NewLinks(ctx, scope.Parent, before, candidatePageSize)
		if err != nil {
			return nil, r.classify(err)
		}

		if len(page.Links) == 0 {
			break
		}

		for _, l := range page.Links {
			if seen[l.ID] {
				continue
			}

			seen[l.ID] = true
			out = append(out, poll.Candidate{Label: l.Title, Value: l.ID})
		}

		before = page.Links[0].Name
	}

	return out, nil
}

func (r *Reddit) classify(err error) error {
	var re *oauth2.RetrieveError

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.As(err, &re) && re.Response != nil &&
		(re.Response.StatusCode == http.StatusUnauthorized || re.Response.StatusCode == http.StatusBadRequest):
		// Rejected client credentials.
		return wrap(RedditName, poll.ErrConfiguration, err)
	case errors.Is(err, reddit.ErrNotFound),
		errors.Is(err, reddit.ErrForbidden),
		errors.Is(err, reddit.ErrBadRequest),
		errors.Is(err, reddit.ErrUnauthorized),
		errors.Is(err, reddit.ErrNoCredentials):
		return wrap(RedditName, poll.ErrConfiguration, err)
	default:
		return wrap(RedditName, poll.ErrTransientProvider, err)
	}
}

func commentItem(c *reddit.Comment) poll.Item {
	return poll.Item{
		ID:        c.Name,
		ParentID:  c.ParentID,
		Name:      c.Author,
		Kind:      poll.KindComment,
		CreatedAt: c.Created(),
		Summary:   c.Body,
		Raw:       c.Raw,
	}
}
