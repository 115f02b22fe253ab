// Package source turns uploaded spreadsheets into ordered rows and moves
// uploads from the inbox into the work directory.
package source

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/teranos/pegabatch/errors"
)

// Accepted spreadsheet extensions, lowercase without the dot.
var Extensions = []string{"csv", "xls", "xlsx"}

// User-facing upload errors.
const (
	MsgInvalidExtension = "A extensão do arquivo adicionado não é válida, adicione apenas .csv, .xls, .xlsx ou um .zip com um desses dentro."
	MsgEmptyArchive     = "Não foi encontrado nenhum arquivo .csv dentro do .zip adicionado."
)

// ErrUnsupported is returned for files that are not spreadsheets.
var ErrUnsupported = errors.New("unsupported file type")

// IsInvalidFile reports whether name cannot be a spreadsheet upload: empty,
// macOS archive metadata, AppleDouble resource forks, no extension, or an
// extension other than csv, xls and xlsx. Zip files are handled before this
// check and count as invalid here.
func IsInvalidFile(name string) bool {
	if strings.TrimSpace(name) == "" {
		return true
	}
	slashed := filepath.ToSlash(name)
	if strings.HasPrefix(slashed, "__MACOSX") || strings.Contains(slashed, "/__MACOSX") {
		return true
	}
	if strings.HasPrefix(path.Base(slashed), "._") {
		return true
	}
	ext := Ext(slashed)
	if ext == "" {
		return true
	}
	for _, ok := range Extensions {
		if ext == ok {
			return false
		}
	}
	return true
}

// Ext returns the lowercase extension of name without the dot.
func Ext(name string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(filepath.ToSlash(name))), ".")
}

// IsArchive reports whether name is a zip upload.
func IsArchive(name string) bool {
	return Ext(name) == "zip"
}

// Ignore matches operator-configured glob patterns (doublestar syntax,
// e.g. "**/~$*" for Office lock files) against inbox entries.
type Ignore struct {
	patterns []string
}

// NewIgnore validates patterns.
func NewIgnore(patterns []string) (*Ignore, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.Newf("invalid ignore pattern %q", p)
		}
	}
	return &Ignore{patterns: patterns}, nil
}

// Match reports whether name matches any pattern. A nil Ignore matches nothing.
func (ig *Ignore) Match(name string) bool {
	if ig == nil {
		return false
	}
	name = filepath.ToSlash(name)
	for _, p := range ig.patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, path.Base(name)); ok {
			return true
		}
	}
	return false
}
