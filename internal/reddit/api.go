package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
)

// CommentOptions shape a comment tree request.
type CommentOptions struct {
	// Depth is the maximum reply depth returned; 0 lets Reddit decide.
	Depth int
	// Limit caps the number of top-level comments; 0 lets Reddit decide.
	Limit int
}

// PostComments returns the comments of one post, newest first at each
// level, with reply trees flattened depth-first. "load more" stubs are
// skipped.
func (c *Client) PostComments(ctx context.Context, subreddit, article string, opts CommentOptions) ([]Comment, error) {
	q := url.Values{"sort": {"new"}}
	if opts.Depth > 0 {
		q.Set("depth", strconv.Itoa(opts.Depth))
	}

	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := fmt.Sprintf("/r/%s/comments/%s", url.PathEscape(subreddit), url.PathEscape(trimKind(article)))

	// The response is [post listing, comment listing].
	var listings []Listing
	if err := c.get(ctx, path, q, &listings); err != nil {
		return nil, err
	}

	if len(listings) < 2 {
		return nil, fmt.Errorf("reddit: %s returned %d listings, want 2", path, len(listings))
	}

	var out []Comment

	more, err := flatten(&listings[1], &out)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched post comments",
		slog.String("subreddit", subreddit),
		slog.String("article", article),
		slog.Int("comments", len(out)),
		slog.Int("collapsed", more),
	)

	return out, nil
}

// flatten appends every comment of l and its reply trees to out and returns
// how many "more" stubs were skipped.
func flatten(l *Listing, out *[]Comment) (int, error) {
	more := 0

	for _, child := range l.Data.Children {
		if child.Kind == kindMore {
			more++
			continue
		}

		cm, err := child.Comment()
		if err != nil {
			return more, err
		}

		*out = append(*out, *cm)

		replies, err := replyListing(cm.Replies)
		if err != nil {
			return more, err
		}

		if replies == nil {
			continue
		}

		n, err := flatten(replies, out)
		more += n

		if err != nil {
			return more, err
		}
	}

	return more, nil
}

// LinksPage is one page of a subreddit listing.
type LinksPage struct {
	Links  []Link
	Before string
	After  string
}

// NewLinks lists a subreddit's newest posts. A non-empty before returns the
// posts newer than that fullname.
func (c *Client) NewLinks(ctx context.Context, subreddit, before string, limit int) (*LinksPage, error) {
	q := url.Values{}
	if before != "" {
		q.Set("before", before)
	}

	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var l Listing
	if err := c.get(ctx, "/r/"+url.PathEscape(subreddit)+"/new", q, &l); err != nil {
		return nil, err
	}

	page := &LinksPage{Before: l.Data.Before, After: l.Data.After}

	for _, child := range l.Data.Children {
		link, err := child.Link()
		if err != nil {
			return nil, err
		}

		page.Links = append(page.Links, *link)
	}

	return page, nil
}

// Info looks up things by fullname (t1_..., t3_...). Unknown names are
// silently absent from the result.
func (c *Client) Info(ctx context.Context, fullnames ...string) ([]Thing, error) {
	if len(fullnames) == 0 {
		return nil, nil
	}

	var l Listing
	if err := c.get(ctx, "/api/info", url.Values{"id": {strings.Join(fullnames, ",")}}, &l); err != nil {
		return nil, err
	}

	return l.Data.Children, nil
}

// CommentByName fetches one comment by fullname. Returns ErrNotFound when
// Reddit does not know it.
func (c *Client) CommentByName(ctx context.Context, fullname string) (*Comment, error) {
	things, err := c.Info(ctx, fullname)
	if err != nil {
		return nil, err
	}

	for _, t := range things {
		if t.Kind == KindComment {
			return t.Comment()
		}
	}

	return nil, fmt.Errorf("%w: comment %s", ErrNotFound, fullname)
}

// About returns the raw "about" payload of a subreddit.
func (c *Client) About(ctx context.Context, subreddit string) (json.RawMessage, error) {
	var t Thing
	if err := c.get(ctx, "/r/"+url.PathEscape(subreddit)+"/about", nil, &t); err != nil {
		return nil, err
	}

	if t.Kind != KindSubreddit {
		return nil, fmt.Errorf("%w: subreddit %s", ErrNotFound, subreddit)
	}

	return t.Data, nil
}

// trimKind accepts both "abc123" and "t3_abc123".
func trimKind(id string) string {
	return strings.TrimPrefix(id, KindLink+"_")
}
