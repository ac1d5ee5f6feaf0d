package graph

import (
	"encoding/json"
	"time"
)

// Item represents a OneDrive drive item (file, folder, or package).
// Fields are normalized from the Graph API response; Raw keeps the original
// JSON for downstream payloads.
type Item struct {
	ID         string
	Name       string
	DriveID    string // normalized: lowercase (Graph API casing is inconsistent)
	ParentID   string
	ParentPath string // "/drive/root:/Pictures"; absent in delta responses
	Size       int64
	ETag       string
	IsFolder   bool
	IsDeleted  bool
	IsPackage  bool // OneNote packages
	MimeType   string
	WebURL     string
	CreatedAt  time.Time
	ModifiedAt time.Time

	Raw json.RawMessage
}

// Page is one page of a children listing or delta enumeration. Exactly one
// of NextLink and DeltaLink is set on a well-formed response.
type Page struct {
	Items     []Item
	NextLink  string
	DeltaLink string
}

// Drive is a OneDrive drive.
type Drive struct {
	ID        string
	Name      string
	DriveType string // "personal", "business", "documentLibrary"
	OwnerName string
}
