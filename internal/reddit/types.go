package reddit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Thing kind prefixes used in fullnames.
const (
	KindComment   = "t1"
	KindLink      = "t3"
	KindSubreddit = "t5"
	kindMore      = "more"
)

// Listing is Reddit's paginated collection envelope.
type Listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Before   string  `json:"before"`
		Children []Thing `json:"children"`
	} `json:"data"`
}

// Thing is one typed entry of a listing. Data stays raw until the caller
// knows the kind.
type Thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Comment is a t1 thing.
type Comment struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"` // fullname, t1_<id>
	ParentID   string  `json:"parent_id"`
	LinkID     string  `json:"link_id"`
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	Permalink  string  `json:"permalink"`
	Subreddit  string  `json:"subreddit"`
	CreatedUTC float64 `json:"created_utc"`
	Depth      int     `json:"depth"`

	// Replies is either "" or a Listing.
	Replies json.RawMessage `json:"replies"`

	Raw json.RawMessage `json:"-"`
}

// Created returns the creation time in UTC.
func (c *Comment) Created() time.Time {
	return unixFloat(c.CreatedUTC)
}

// Link is a t3 thing (a post).
type Link struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`

	Raw json.RawMessage `json:"-"`
}

// Created returns the creation time in UTC.
func (l *Link) Created() time.Time {
	return unixFloat(l.CreatedUTC)
}

// Comment decodes a t1 thing.
func (t Thing) Comment() (*Comment, error) {
	if t.Kind != KindComment {
		return nil, fmt.Errorf("reddit: thing kind %q is not a comment", t.Kind)
	}

	var c Comment
	if err := json.Unmarshal(t.Data, &c); err != nil {
		return nil, fmt.Errorf("reddit: decoding comment: %w", err)
	}

	c.Raw = stripReplies(t.Data)

	return &c, nil
}

// Link decodes a t3 thing.
func (t Thing) Link() (*Link, error) {
	if t.Kind != KindLink {
		return nil, fmt.Errorf("reddit: thing kind %q is not a link", t.Kind)
	}

	var l Link
	if err := json.Unmarshal(t.Data, &l); err != nil {
		return nil, fmt.Errorf("reddit: decoding link: %w", err)
	}

	l.Raw = t.Data

	return &l, nil
}

// stripReplies drops the nested reply tree from a comment payload so each
// emitted comment carries only itself.
func stripReplies(data json.RawMessage) json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return data
	}

	if _, ok := m["replies"]; !ok {
		return data
	}

	delete(m, "replies")

	out, err := json.Marshal(m)
	if err != nil {
		return data
	}

	return out
}

// replyListing decodes the replies field, which Reddit sends as "" when a
// comment has no replies.
func replyListing(raw json.RawMessage) (*Listing, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil //nolint:nilnil // no replies
	}

	var l Listing
	if err := json.Unmarshal(trimmed, &l); err != nil {
		return nil, fmt.Errorf("reddit: decoding replies: %w", err)
	}

	return &l, nil
}

func unixFloat(secs float64) time.Time {
	whole := int64(secs)
	frac := int64((secs - float64(whole)) * float64(time.Second))

	return time.Unix(whole, frac).UTC()
}
