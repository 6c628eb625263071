package api

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/neptunelabs/fsi-client/internal/models"
	"github.com/neptunelabs/fsi-client/internal/validation"
)

// listReply is the JSON shape of a directory listing.
type listReply struct {
	Summary struct {
		Dir           string `json:"dir"`
		ConnectorType string `json:"connectorType"`
	} `json:"summary"`
	Entries []wireEntry `json:"entries"`
}

type wireEntry struct {
	Name          string `json:"src"`
	Type          string `json:"type"`
	Size          int64  `json:"size"`
	LastModified  int64  `json:"lastmodified"` // epoch milliseconds
	ImportStatus  string `json:"importstatus"`
	ConnectorType string `json:"connectorType"`
}

func parseImportState(s string) models.ImportState {
	switch strings.ToLower(s) {
	case "imported", "1":
		return models.Imported
	case "pending", "queued", "2":
		return models.ImportPending
	case "failed", "error", "3":
		return models.ImportFailed
	default:
		return models.ImportNone
	}
}

// DirectoryListing is one level of a server directory.
type DirectoryListing struct {
	Dir           string
	ConnectorType models.ConnectorType
	Entries       []*models.Entry
}

// ListDirectory returns the immediate children of dir. The empty dir is the
// server root, whose children are the connector roots.
func (c *Client) ListDirectory(ctx context.Context, dir string) (*DirectoryListing, error) {
	dir = models.NormalizeDir(dir)
	if err := validation.ValidateRemotePath(dir); err != nil {
		return nil, invalidPath(dir, err)
	}
	if !c.LoggedIn() {
		return nil, ErrNotLoggedIn
	}

	query := url.Values{
		"type":   {"list"},
		"source": {dir},
		"tpl":    {"interface_thumbview_default.json"},
	}
	var reply listReply
	if err := c.transport.GetJSON(ctx, "/fsi/server", query, &reply, WithSubject(dir)); err != nil {
		return nil, err
	}

	out := &DirectoryListing{
		Dir:           dir,
		ConnectorType: models.ParseConnectorType(reply.Summary.ConnectorType),
	}
	for _, w := range reply.Entries {
		if validation.ValidateName(w.Name) != nil {
			// A name that cannot be addressed again is useless to every
			// batch operation.
			continue
		}
		mod := time.Time{}
		if w.LastModified > 0 {
			mod = time.UnixMilli(w.LastModified)
		}
		var e *models.Entry
		if strings.EqualFold(w.Type, "directory") || strings.EqualFold(w.Type, "dir") {
			e = models.NewDirectory(dir, w.Name, mod)
		} else {
			e = models.NewFile(dir, w.Name, w.Size, mod)
			e.ImportState = parseImportState(w.ImportStatus)
		}
		if w.ConnectorType != "" {
			e.ConnectorType = models.ParseConnectorType(w.ConnectorType)
		}
		out.Entries = append(out.Entries, e)
	}
	return out, nil
}
