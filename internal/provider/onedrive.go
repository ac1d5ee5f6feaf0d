package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Akhilkandikonda/pipedream/internal/graph"
	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

// OneDriveName is the provider name used in scope keys.
const OneDriveName = "onedrive"

// Traversal selects how a OneDrive scope is enumerated.
type Traversal string

const (
	// TraversalDelta uses the folder-scoped delta feed; the cursor is the
	// delta link.
	TraversalDelta Traversal = "delta"
	// TraversalWalk lists children and descends into subfolders; the cursor
	// is a creation watermark.
	TraversalWalk Traversal = "walk"
)

// ParseTraversal converts a config value. Empty selects delta.
func ParseTraversal(s string) (Traversal, error) {
	switch Traversal(s) {
	case "", TraversalDelta:
		return TraversalDelta, nil
	case TraversalWalk:
		return TraversalWalk, nil
	default:
		return "", fmt.Errorf("onedrive: unknown traversal %q (want delta or walk)", s)
	}
}

// DriveAPI is the subset of graph.Client the adapter uses.
type DriveAPI interface {
	Delta(ctx context.Context, driveID, folderID, link string) (*graph.Page, error)
	ListChildrenPage(ctx context.Context, driveID, folderID, pageLink string) (*graph.Page, error)
	GetItem(ctx context.Context, driveID, itemID string) (*graph.Item, error)
	GetItemByPath(ctx context.Context, driveID, remotePath string) (*graph.Item, error)
	DefaultDrive(ctx context.Context) (*graph.Drive, error)
}

// FolderRef names the watched folder by path or by item id. Both empty
// means the whole drive.
type FolderRef struct {
	Path string
	ID   string
}

// OneDrive watches a drive or folder for new files.
type OneDrive struct {
	api       DriveAPI
	driveID   string
	traversal Traversal
	logger    *slog.Logger
}

// NewOneDrive creates the adapter. An empty driveID is resolved to the
// signed-in user's default drive by ResolveScope.
func NewOneDrive(api DriveAPI, driveID string, traversal Traversal, logger *slog.Logger) *OneDrive {
	if traversal == "" {
		traversal = TraversalDelta
	}

	return &OneDrive{
		api:       api,
		driveID:   strings.ToLower(driveID),
		traversal: traversal,
		logger:    logger,
	}
}

// Name implements poll.Provider.
func (o *OneDrive) Name() string {
	return OneDriveName
}

// ResolveScope turns a folder reference into a poll.Scope. A whole-drive
// scope that is not recursive is anchored on the root folder so only its
// direct children are watched.
func (o *OneDrive) ResolveScope(ctx context.Context, ref FolderRef, recursive bool) (poll.Scope, error) {
	if o.driveID == "" {
		d, err := o.api.DefaultDrive(ctx)
		if err != nil {
			return poll.Scope{}, o.classify(err)
		}

		o.driveID = strings.ToLower(d.ID)

		o.logger.Debug("resolved default drive",
			slog.String("drive_id", d.ID),
			slog.String("drive_type", d.DriveType),
		)
	}

	scope := poll.Scope{Provider: OneDriveName, Parent: o.driveID, Recursive: recursive}

	wholeDrive := ref.ID == "" && strings.Trim(ref.Path, "/") == ""
	if wholeDrive && recursive {
		scope.Kind = poll.ScopeRoot
		return scope, nil
	}

	var (
		item *graph.Item
		err  error
	)

	if ref.ID != "" {
		item, err = o.api.GetItem(ctx, o.driveID, ref.ID)
	} else {
		item, err = o.api.GetItemByPath(ctx, o.driveID, ref.Path)
	}

	if err != nil {
		return poll.Scope{}, fmt.Errorf("onedrive: resolving folder %q: %w", ref.Path+ref.ID, o.classify(err))
	}

	if !item.IsFolder {
		return poll.Scope{}, fmt.Errorf("%w: onedrive: %q is not a folder", poll.ErrConfiguration, item.Name)
	}

	scope.Kind = poll.ScopeNode
	scope.ID = item.ID

	return scope, nil
}

// ListPage implements poll.Provider.
func (o *OneDrive) ListPage(ctx context.Context, req poll.PageRequest) (*poll.Page, error) {
	if o.traversal == TraversalWalk {
		return o.walkPage(ctx, req)
	}

	return o.deltaPage(ctx, req)
}

// deltaPage fetches one page of the folder-scoped delta feed. Delta returns
// every descendant, so no descent is requested.
func (o *OneDrive) deltaPage(ctx context.Context, req poll.PageRequest) (*poll.Page, error) {
	link := req.PageToken
	if link == "" && req.TopLevel() {
		link = string(req.Cursor)
	}

	gp, err := o.api.Delta(ctx, o.drive(req), req.Node, link)
	if err != nil {
		return nil, o.classify(err)
	}

	page := &poll.Page{
		Items:         make([]poll.Item, 0, len(gp.Items)),
		NextPageToken: gp.NextLink,
		DeltaCursor:   poll.Cursor(gp.DeltaLink),
	}

	for i := range gp.Items {
		page.Items = append(page.Items, toPollItem(&gp.Items[i]))
	}

	return page, nil
}

// walkPage lists one page of a folder's direct children. Files created
// before the watermark are dropped; folders are always returned so the walk
// can reach new files inside old folders.
func (o *OneDrive) walkPage(ctx context.Context, req poll.PageRequest) (*poll.Page, error) {
	node := req.Node
	if node == "" {
		node = "root"
	}

	gp, err := o.api.ListChildrenPage(ctx, o.drive(req), node, req.PageToken)
	if err != nil {
		return nil, o.classify(err)
	}

	wm, ok := parseWatermark(req.Cursor)
	page := &poll.Page{NextPageToken: gp.NextLink, Descend: true}

	for i := range gp.Items {
		gi := &gp.Items[i]
		if !gi.IsFolder && belowWatermark(gi.CreatedAt, wm, ok) {
			continue
		}

		page.Items = append(page.Items, toPollItem(gi))
	}

	return page, nil
}

// Advance implements poll.CursorAdvancer for walk mode. The watermark only
// counts files: a folder created after a file must not hide it.
func (o *OneDrive) Advance(current poll.Cursor, items []poll.Item) poll.Cursor {
	if o.traversal != TraversalWalk {
		return current
	}

	return advanceWatermark(current, items, func(it *poll.Item) bool {
		return !it.Kind.IsContainer() && !it.Deleted
	})
}

// GetItem implements poll.Provider.
func (o *OneDrive) GetItem(ctx context.Context, id string) (*poll.Item, error) {
	gi, err := o.api.GetItem(ctx, o.driveID, id)
	if err != nil {
		return nil, o.classify(err)
	}

	it := toPollItem(gi)

	return &it, nil
}

func (o *OneDrive) drive(req poll.PageRequest) string {
	if req.Scope.Parent != "" {
		return req.Scope.Parent
	}

	return o.driveID
}

// classify maps Graph failures onto poll sentinels. Missing or forbidden
// resources and lost sign-in need the user; everything else is retried.
func (o *OneDrive) classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, graph.ErrGone):
		return wrap(OneDriveName, poll.ErrCursorExpired, err)
	case errors.Is(err, graph.ErrNotFound),
		errors.Is(err, graph.ErrForbidden),
		errors.Is(err, graph.ErrBadRequest),
		errors.Is(err, graph.ErrUnauthorized),
		errors.Is(err, graph.ErrNotLoggedIn):
		return wrap(OneDriveName, poll.ErrConfiguration, err)
	default:
		return wrap(OneDriveName, poll.ErrTransientProvider, err)
	}
}

func toPollItem(gi *graph.Item) poll.Item {
	kind := poll.KindFile
	if gi.IsFolder {
		kind = poll.KindFolder
	}

	return poll.Item{
		ID:        gi.ID,
		ParentID:  gi.ParentID,
		Name:      gi.Name,
		Kind:      kind,
		MimeType:  gi.MimeType,
		CreatedAt: gi.CreatedAt,
		Deleted:   gi.IsDeleted,
		Summary:   gi.Name,
		Raw:       gi.Raw,
	}
}
