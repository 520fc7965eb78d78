package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
)

// ErrInvalidOutputDir wraps every ValidateOutputDir rejection.
var ErrInvalidOutputDir = errors.New("invalid export dir")

// SanitizeName turns a video or clip title into a file base name that is
// also safe inside an EDL comment. Control characters are dropped and each
// run of other disallowed runes becomes a single '_'. The result holds at
// most maxLen runes. A title with nothing usable left yields "".
func SanitizeName(title string, maxLen int) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch {
		case unicode.IsControl(r):
		case nameRune(r):
			out = append(out, r)
		case len(out) > 0 && out[len(out)-1] == '_':
		default:
			out = append(out, '_')
		}
	}
	if maxLen > 0 && len(out) > maxLen {
		out = out[:maxLen]
	}

	name := strings.TrimRight(strings.TrimSpace(string(out)), ".")
	if strings.Trim(name, "_ .") == "" {
		return ""
	}
	return name
}

var namePunct = []rune{' ', '-', '_', '.', ',', '(', ')'}

func nameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || slices.Contains(namePunct, r)
}

// ValidateOutputDir accepts only an existing directory given as a clean
// absolute path.
func ValidateOutputDir(dir string) error {
	reject := func(reason string) error { return fmt.Errorf("%w: %s", ErrInvalidOutputDir, reason) }

	switch {
	case strings.TrimSpace(dir) == "":
		return reject("path is required")
	case slices.Contains(strings.Split(filepath.ToSlash(dir), "/"), ".."):
		return reject("path cannot contain traversal")
	case !filepath.IsAbs(dir):
		return reject("path must be absolute")
	case filepath.Clean(dir) != dir:
		return reject("path must be clean")
	}

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return reject("directory does not exist")
	case err != nil:
		return fmt.Errorf("%w: %w", ErrInvalidOutputDir, err)
	case !info.IsDir():
		return reject("not a directory")
	}
	return nil
}
