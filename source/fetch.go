package source

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/hashicorp/go-getter"

	"github.com/teranos/pegabatch/errors"
)

// Fetch downloads a single upload from src (a URL or local path, anything
// go-getter detects) into dir and returns the local path.
func Fetch(ctx context.Context, src, dir string) (string, error) {
	pwd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "failed to get working directory")
	}
	detected, err := getter.Detect(src, pwd, getter.Detectors)
	if err != nil {
		return "", errors.Wrapf(err, "unrecognised source %s", src)
	}

	name := remoteName(detected)
	if name == "" {
		return "", errors.Wrapf(errors.ErrInvalidRequest, "cannot derive a file name from %s", src)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", dir)
	}
	dst := filepath.Join(dir, name)

	getters := make(map[string]getter.Getter, len(getter.Getters))
	for k, g := range getter.Getters {
		getters[k] = g
	}
	// Local files are copied, never symlinked, since intake moves them
	getters["file"] = &getter.FileGetter{Copy: true}

	client := &getter.Client{
		Ctx:     ctx,
		Src:     detected,
		Dst:     dst,
		Pwd:     pwd,
		Mode:    getter.ClientModeFile,
		Getters: getters,
		// Zip uploads are expanded by the inbox, not on download
		Decompressors: map[string]getter.Decompressor{},
	}
	if err := client.Get(); err != nil {
		return "", errors.Wrapf(err, "failed to fetch %s", src)
	}
	return dst, nil
}

// remoteName is the last path segment of a detected source URL.
func remoteName(detected string) string {
	u, err := url.Parse(detected)
	if err != nil {
		return ""
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	name := path.Base(p)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
