package api

import (
	"context"
	"maps"
	nethttp "net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/neptunelabs/fsi-client/internal/models"
	"github.com/neptunelabs/fsi-client/internal/validation"
)

// servicePath returns the service endpoint for e: file or directory.
func servicePath(e *models.Entry) string {
	kind := "file"
	if e.IsDir() {
		kind = "directory"
	}
	return "/fsi/service/" + kind + "/" + escapePath(strings.TrimSuffix(e.FullPath(), "/"))
}

func (c *Client) checkEntry(e *models.Entry) error {
	if !c.LoggedIn() {
		return ErrNotLoggedIn
	}
	if e.IsLocal() {
		return invalidPath(e.FullPath(), validation.ErrUnsafePath)
	}
	if err := validation.ValidateRemotePath(e.FullPath()); err != nil {
		return invalidPath(e.FullPath(), err)
	}
	return nil
}

// CreateDirectory creates dir on the server. An existing directory is not an
// error.
func (c *Client) CreateDirectory(ctx context.Context, dir string) error {
	dir = models.NormalizeDir(dir)
	if dir == "" {
		return invalidPath(dir, validation.ErrUnsafePath)
	}
	if err := validation.ValidateRemotePath(dir); err != nil {
		return invalidPath(dir, err)
	}
	if !c.LoggedIn() {
		return ErrNotLoggedIn
	}
	_, err := c.transport.PostBool(ctx, "/fsi/service/directory/"+escapePath(strings.TrimSuffix(dir, "/")), nil,
		WithMethod(nethttp.MethodPut), WithSubject(dir),
		IgnoreStatus(nethttp.StatusConflict, func(int) error {
			log.Debug().Str("dir", dir).Msg("directory exists")
			return nil
		}))
	return err
}

// Delete removes e. Directories are removed with their content. An entry that
// is already gone counts as deleted.
func (c *Client) Delete(ctx context.Context, e *models.Entry) error {
	if err := c.checkEntry(e); err != nil {
		return err
	}
	_, err := c.transport.PostBool(ctx, servicePath(e), nil,
		WithMethod(nethttp.MethodDelete), WithSubject(e.FullPath()),
		IgnoreStatus(nethttp.StatusNotFound, nil))
	return err
}

// Rename gives e a new name in its directory.
func (c *Client) Rename(ctx context.Context, e *models.Entry, newName string) error {
	if err := c.checkEntry(e); err != nil {
		return err
	}
	if err := validation.ValidateName(newName); err != nil {
		return invalidPath(newName, err)
	}
	form := url.Values{"cmd": {"rename"}, "to": {newName}}
	_, err := c.transport.PostBool(ctx, servicePath(e), form, WithSubject(e.FullPath()))
	return err
}

// Move moves e into targetDir.
func (c *Client) Move(ctx context.Context, e *models.Entry, targetDir string, overwrite bool) error {
	return c.transfer(ctx, "move", e, targetDir, overwrite)
}

// Copy copies e into targetDir. Directories are copied recursively by the
// server.
func (c *Client) Copy(ctx context.Context, e *models.Entry, targetDir string, overwrite bool) error {
	return c.transfer(ctx, "copy", e, targetDir, overwrite)
}

func (c *Client) transfer(ctx context.Context, cmd string, e *models.Entry, targetDir string, overwrite bool) error {
	if err := c.checkEntry(e); err != nil {
		return err
	}
	targetDir = models.NormalizeDir(targetDir)
	if err := validation.ValidateRemotePath(targetDir); err != nil || targetDir == "" {
		return invalidPath(targetDir, err)
	}
	form := url.Values{
		"cmd":       {cmd},
		"to":        {targetDir},
		"overwrite": {strconv.FormatBool(overwrite)},
	}
	_, err := c.transport.PostBool(ctx, servicePath(e), form, WithSubject(targetDir+e.Name))
	return err
}

// Reimport asks the server to import e again. For directories the server
// re-imports everything below.
func (c *Client) Reimport(ctx context.Context, e *models.Entry) error {
	if err := c.checkEntry(e); err != nil {
		return err
	}
	form := url.Values{"cmd": {"reimport"}}
	_, err := c.transport.PostBool(ctx, servicePath(e), form, WithSubject(e.FullPath()))
	return err
}

// ServiceCommand sends an administrative command for e, such as
// "clearcache".
func (c *Client) ServiceCommand(ctx context.Context, e *models.Entry, command string) error {
	if err := c.checkEntry(e); err != nil {
		return err
	}
	if command == "" {
		return invalidPath(command, validation.ErrUnsafePath)
	}
	path := "/fsi/service/command/" + escapePath(strings.TrimSuffix(e.FullPath(), "/"))
	_, err := c.transport.PostBool(ctx, path, url.Values{"cmd": {command}}, WithSubject(e.FullPath()))
	return err
}

type metaReply struct {
	MetaData map[string]string `json:"metadata"`
}

func metaPath(e *models.Entry) string {
	return "/fsi/service/metadata/" + escapePath(strings.TrimSuffix(e.FullPath(), "/"))
}

// GetMetaData returns the metadata of e.
func (c *Client) GetMetaData(ctx context.Context, e *models.Entry) (map[string]string, error) {
	if err := c.checkEntry(e); err != nil {
		return nil, err
	}
	var reply metaReply
	if err := c.transport.GetJSON(ctx, metaPath(e), nil, &reply, WithSubject(e.FullPath())); err != nil {
		return nil, err
	}
	if reply.MetaData == nil {
		reply.MetaData = map[string]string{}
	}
	return reply.MetaData, nil
}

// SetMetaData adds or replaces the given metadata fields of e.
func (c *Client) SetMetaData(ctx context.Context, e *models.Entry, meta map[string]string) error {
	if err := c.checkEntry(e); err != nil {
		return err
	}
	form := url.Values{"cmd": {"set"}}
	for _, k := range sortedKeys(meta) {
		form.Add("key", k)
		form.Add("value", meta[k])
	}
	_, err := c.transport.PostBool(ctx, metaPath(e), form, WithSubject(e.FullPath()))
	return err
}

// DeleteMetaData removes the given metadata fields of e.
func (c *Client) DeleteMetaData(ctx context.Context, e *models.Entry, keys []string) error {
	if err := c.checkEntry(e); err != nil {
		return err
	}
	form := url.Values{"cmd": {"delete"}, "key": keys}
	_, err := c.transport.PostBool(ctx, metaPath(e), form, WithSubject(e.FullPath()))
	return err
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
