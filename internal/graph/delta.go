package graph

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// deltaPreferHeader requests that the Graph API include remote/shared items
// using stable alias IDs in delta responses. Without this header, Personal
// accounts may receive incomplete delta results for shared folders.
var deltaPreferHeader = http.Header{
	"Prefer": {"deltashowremoteitemsaliasid"},
}

// deltaHTTPPrefix is the scheme prefix used to detect full URL tokens
// returned by the Graph API delta endpoint.
const deltaHTTPPrefix = "http"

// Delta fetches one page of changes under folderID ("" or "root" for the
// whole drive). Pass an empty link for the initial enumeration, then the
// NextLink or DeltaLink of the previous page. The returned page carries
// NextLink while more pages remain and DeltaLink once the enumeration is
// complete. HTTP 410 (Gone) means the link has expired: ErrGone.
func (c *Client) Delta(ctx context.Context, driveID, folderID, link string) (*Page, error) {
	path, err := c.buildDeltaPath(driveID, folderID, link)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetching delta page",
		slog.String("drive_id", driveID),
		slog.String("folder_id", folderID),
		slog.Bool("initial", link == ""),
	)

	page, err := c.fetchCollection(ctx, path, deltaPreferHeader)
	if err != nil {
		return nil, err
	}

	raw := len(page.Items)
	page.Items = normalizeDeltaItems(page.Items, c.logger)

	c.logger.Debug("fetched delta page",
		slog.Int("raw_count", raw),
		slog.Int("normalized_count", len(page.Items)),
		slog.Bool("has_next_link", page.NextLink != ""),
		slog.Bool("has_delta_link", page.DeltaLink != ""),
	)

	return page, nil
}

// buildDeltaPath constructs the API path for a delta request. A link from a
// previous response is a full URL that gets stripped to a relative path.
func (c *Client) buildDeltaPath(driveID, folderID, link string) (string, error) {
	if link == "" || !strings.HasPrefix(link, deltaHTTPPrefix) {
		if folderID == "" || folderID == "root" {
			return fmt.Sprintf("/drives/%s/root/delta", driveID), nil
		}

		return fmt.Sprintf("/drives/%s/items/%s/delta", driveID, folderID), nil
	}

	path, err := c.stripBaseURL(link)
	if err != nil {
		return "", fmt.Errorf("graph: invalid delta link: %w", err)
	}

	return path, nil
}
