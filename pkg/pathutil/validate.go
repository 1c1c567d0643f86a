// Package pathutil provides name validation and path helpers for watched
// directories.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/autobackup-watch/autobackup/pkg/errclass"
)

// StateDelimiter separates fields of a persisted state record. Names that
// contain it cannot be tracked.
const StateDelimiter = "|"

// ValidateTrackedName checks that a directory entry name can be used as a
// registry key and survive a round trip through the state file.
func ValidateTrackedName(name string) error {
	if name == "" {
		return errclass.ErrNameInvalid.WithMessage("name must not be empty")
	}
	if !utf8.ValidString(name) {
		return errclass.ErrNameInvalid.WithMessagef("name is not valid UTF-8: %q", name)
	}

	// NFC normalize so decomposed forms are checked the same way.
	nfc := norm.NFC.String(name)

	if nfc == "." || nfc == ".." {
		return errclass.ErrNameInvalid.WithMessagef("reserved name: %s", name)
	}
	if strings.ContainsAny(nfc, "/\\") {
		return errclass.ErrNameInvalid.WithMessagef("name must not contain separators: %s", name)
	}
	if strings.Contains(nfc, StateDelimiter) {
		return errclass.ErrNameInvalid.WithMessagef("name must not contain %q: %s", StateDelimiter, name)
	}
	for _, r := range nfc {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("name must not contain control characters: %q", name)
		}
	}
	return nil
}

// SplitName splits a file name into base and extension the way backup
// artifact names are built: the extension starts at the last dot.
func SplitName(name string) (base, ext string) {
	ext = filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

// ResolveWatchDir returns the cleaned absolute form of dir, or
// ErrInvalidDirectory if it does not name an existing directory.
func ResolveWatchDir(dir string) (string, error) {
	if dir == "" {
		return "", errclass.ErrInvalidDirectory.WithMessage("no directory given")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errclass.ErrInvalidDirectory.WithMessage(dir).Wrap(err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", errclass.ErrInvalidDirectory.WithMessage(dir).Wrap(err)
	}
	if !info.IsDir() {
		return "", errclass.ErrInvalidDirectory.WithMessagef("not a directory: %s", dir)
	}
	return abs, nil
}

// DisplayWidth returns the number of terminal columns s occupies, counting
// East Asian wide and fullwidth runes as two.
func DisplayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

// PadRight pads s with spaces to the given display width.
func PadRight(s string, cols int) string {
	if w := DisplayWidth(s); w < cols {
		return s + strings.Repeat(" ", cols-w)
	}
	return s
}
