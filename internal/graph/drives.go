package graph

import (
	"context"
	"log/slog"
)

// driveResponse mirrors the Graph API drive JSON response.
type driveResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DriveType string `json:"driveType"`
	Owner     *struct {
		User struct {
			DisplayName string `json:"displayName"`
		} `json:"user"`
	} `json:"owner"`
}

// DefaultDrive returns the signed-in user's OneDrive.
func (c *Client) DefaultDrive(ctx context.Context) (*Drive, error) {
	var dr driveResponse
	if err := c.getJSON(ctx, "/me/drive", nil, &dr); err != nil {
		return nil, err
	}

	d := &Drive{
		ID:        dr.ID,
		Name:      dr.Name,
		DriveType: dr.DriveType,
	}

	if dr.Owner != nil {
		d.OwnerName = dr.Owner.User.DisplayName
	}

	c.logger.Debug("resolved default drive",
		slog.String("drive_id", d.ID),
		slog.String("drive_type", d.DriveType),
	)

	return d, nil
}
