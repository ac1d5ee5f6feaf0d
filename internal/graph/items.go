package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// listChildrenPageSize is the largest $top Graph accepts for children.
const listChildrenPageSize = 200

// Accepted timestamp years.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// encodePathSegments URL-encodes each segment of a slash-separated path.
func encodePathSegments(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

// driveItemResponse is the subset of driveItem the watcher reads.
type driveItemResponse struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Size                 int64            `json:"size"`
	ETag                 string           `json:"eTag"`
	WebURL               string           `json:"webUrl"`
	CreatedDateTime      string           `json:"createdDateTime"`
	LastModifiedDateTime string           `json:"lastModifiedDateTime"`
	ParentReference      *parentRef       `json:"parentReference"`
	File                 *fileFacet       `json:"file"`
	Folder               *json.RawMessage `json:"folder"`
	Deleted              *json.RawMessage `json:"deleted"`
	Package              *json.RawMessage `json:"package"`
}

type parentRef struct {
	ID      string `json:"id"`
	DriveID string `json:"driveId"`
	Path    string `json:"path"`
}

type fileFacet struct {
	MimeType string `json:"mimeType"`
}

// collectionResponse is the shape of children and delta responses. Values
// stay raw so each item keeps its original payload.
type collectionResponse struct {
	Value     []json.RawMessage `json:"value"`
	NextLink  string            `json:"@odata.nextLink"`  //nolint:tagliatelle // OData annotation key
	DeltaLink string            `json:"@odata.deltaLink"` //nolint:tagliatelle // OData annotation key
}

// decodeItem normalizes one raw driveItem.
func decodeItem(raw json.RawMessage, logger *slog.Logger) (Item, error) {
	var d driveItemResponse
	if err := json.Unmarshal(raw, &d); err != nil {
		return Item{}, fmt.Errorf("graph: decoding drive item: %w", err)
	}

	item := d.toItem(logger)
	item.Raw = raw

	return item, nil
}

// toItem flattens the facets into an Item. Drive IDs are lowercased; Graph
// is inconsistent about their case.
func (d *driveItemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:        d.ID,
		Name:      d.Name,
		Size:      d.Size,
		ETag:      d.ETag,
		WebURL:    d.WebURL,
		IsFolder:  d.Folder != nil,
		IsDeleted: d.Deleted != nil,
		IsPackage: d.Package != nil,
	}

	if d.ParentReference != nil {
		item.DriveID = strings.ToLower(d.ParentReference.DriveID)
		item.ParentID = d.ParentReference.ID
		item.ParentPath = d.ParentReference.Path
	}

	if d.File != nil {
		item.MimeType = d.File.MimeType
	}

	// Deleted items in delta responses carry no timestamps.
	if !item.IsDeleted {
		item.CreatedAt = parseTimestamp(d.CreatedDateTime, "createdDateTime", d.ID, logger)
		item.ModifiedAt = parseTimestamp(d.LastModifiedDateTime, "lastModifiedDateTime", d.ID, logger)
	}

	return item
}

// parseTimestamp reads an RFC3339 driveItem timestamp. Graph occasionally
// returns empty or absurd values; those become the current time.
func parseTimestamp(raw, field, itemID string, logger *slog.Logger) time.Time {
	t, problem := time.Time{}, ""

	if raw == "" {
		problem = "empty"
	} else if parsed, err := time.Parse(time.RFC3339, raw); err != nil {
		problem = "unparsable"
	} else if y := parsed.Year(); y < minValidYear || y > maxValidYear {
		problem = "out of range"
	} else {
		t = parsed
	}

	if problem == "" {
		return t
	}

	logger.Warn("bad item timestamp, using current time",
		slog.String("problem", problem),
		slog.String("field", field),
		slog.String("item_id", itemID),
		slog.String("raw", raw),
	)

	return time.Now().UTC()
}

// fetchItem fetches a single drive item from the given API path.
func (c *Client) fetchItem(ctx context.Context, apiPath string) (*Item, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, apiPath, nil, &raw); err != nil {
		return nil, err
	}

	item, err := decodeItem(raw, c.logger)
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// GetItem retrieves a single drive item by ID. itemID "root" addresses the
// drive root.
func (c *Client) GetItem(ctx context.Context, driveID, itemID string) (*Item, error) {
	c.logger.Debug("getting item",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
	)

	return c.fetchItem(ctx, fmt.Sprintf("/drives/%s/items/%s", driveID, itemID))
}

// GetItemByPath retrieves a drive item by its path relative to the drive
// root. Leading and trailing slashes are ignored; an empty path is the root.
func (c *Client) GetItemByPath(ctx context.Context, driveID, remotePath string) (*Item, error) {
	remotePath = strings.Trim(remotePath, "/")
	if remotePath == "" {
		return c.GetItem(ctx, driveID, "root")
	}

	c.logger.Debug("getting item by path",
		slog.String("drive_id", driveID),
		slog.String("path", remotePath),
	)

	return c.fetchItem(ctx, fmt.Sprintf("/drives/%s/root:/%s:", driveID, encodePathSegments(remotePath)))
}

// ListChildrenPage fetches one page of a folder's children. Pass an empty
// pageLink for the first page and the returned NextLink afterwards.
func (c *Client) ListChildrenPage(ctx context.Context, driveID, folderID, pageLink string) (*Page, error) {
	path := fmt.Sprintf("/drives/%s/items/%s/children?$top=%d", driveID, folderID, listChildrenPageSize)

	if pageLink != "" {
		var err error

		if path, err = c.stripBaseURL(pageLink); err != nil {
			return nil, err
		}
	}

	page, err := c.fetchCollection(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched children page",
		slog.String("folder_id", folderID),
		slog.Int("count", len(page.Items)),
		slog.Bool("has_next_link", page.NextLink != ""),
	)

	return page, nil
}

// fetchCollection GETs a children or delta collection and normalizes it.
func (c *Client) fetchCollection(ctx context.Context, path string, headers http.Header) (*Page, error) {
	var cr collectionResponse
	if err := c.getJSON(ctx, path, headers, &cr); err != nil {
		return nil, err
	}

	page := &Page{
		Items:     make([]Item, 0, len(cr.Value)),
		NextLink:  cr.NextLink,
		DeltaLink: cr.DeltaLink,
	}

	for _, raw := range cr.Value {
		item, err := decodeItem(raw, c.logger)
		if err != nil {
			return nil, err
		}

		page.Items = append(page.Items, item)
	}

	return page, nil
}

// stripBaseURL removes the client's base URL prefix from a full URL,
// returning the path + query string for use with Do().
// Returns an error if the URL doesn't start with the expected base.
func (c *Client) stripBaseURL(fullURL string) (string, error) {
	if !strings.HasPrefix(fullURL, c.baseURL) {
		return "", fmt.Errorf("graph: link URL %q does not match base URL %q", fullURL, c.baseURL)
	}

	return fullURL[len(c.baseURL):], nil
}
