package trees

import (
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/afero"
)

const volumeSeparator = `\`

// NormalizeRoot canonicalizes a root folder for display: surrounding quotes
// are dropped, the path is made absolute, a bare drive designator gets its
// root separator, trailing separators are trimmed except on a drive root and
// the first character is upper-cased.
func NormalizeRoot(p string) (string, error) {
	p = strings.Trim(p, `"`)
	cleaned, err := cleanPath(p)
	if err != nil {
		return "", err
	}

	r, size := utf8.DecodeRuneInString(cleaned)
	if r == utf8.RuneError {
		return "", fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidPath, p)
	}
	return string(unicode.ToUpper(r)) + cleaned[size:], nil
}

// ResolveRoot normalizes p and checks it is an existing, listable directory
// on fs.
func ResolveRoot(fs afero.Fs, p string) (string, error) {
	root, err := NormalizeRoot(p)
	if err != nil {
		return "", err
	}

	info, err := fs.Stat(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPath, root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, root)
	}
	if err := checkListable(fs, root); err != nil {
		return "", fmt.Errorf("%w: %s is not accessible: %v", ErrInvalidPath, root, err)
	}
	return root, nil
}

// checkListable opens dir and reads one entry. An empty directory is fine.
func checkListable(fs afero.Fs, dir string) error {
	f, err := fs.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// cleanPath resolves p to its absolute, cleaned form, preserving case.
// Paths carrying a drive letter are handled the same way on every OS.
func cleanPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: path contains a null character", ErrInvalidPath)
	}

	if hasVolume(p) {
		if len(p) == 2 {
			p += volumeSeparator
		}
		if !isSeparator(p[2]) {
			return "", fmt.Errorf("%w: drive relative path %q", ErrInvalidPath, p)
		}
		rest := path.Clean(strings.ReplaceAll(p[2:], `\`, "/"))
		return p[:2] + strings.ReplaceAll(rest, "/", volumeSeparator), nil
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPath, p, err)
	}
	return abs, nil
}

// foldKey is the case-insensitive comparison key of a cleaned path
func foldKey(p string) string {
	return strings.ToLower(p)
}

// parentPath returns the parent of a cleaned path, or "" for a filesystem root.
func parentPath(p string) string {
	if hasVolume(p) {
		if len(p) <= 3 {
			return ""
		}
		i := strings.LastIndex(p, volumeSeparator)
		if i <= 2 {
			return p[:3]
		}
		return p[:i]
	}

	dir := filepath.Dir(p)
	if dir == p {
		return ""
	}
	return dir
}

// baseName returns the last element of a cleaned path
func baseName(p string) string {
	if hasVolume(p) {
		if len(p) <= 3 {
			return p
		}
		return p[strings.LastIndex(p, volumeSeparator)+1:]
	}
	return filepath.Base(p)
}

// separatorFor returns the separator used below the given root.
func separatorFor(root string) string {
	if hasVolume(root) {
		return volumeSeparator
	}
	return string(filepath.Separator)
}

// within reports whether key names rootKey itself or something below it.
func within(rootKey, key string) bool {
	if key == rootKey {
		return true
	}
	sep := separatorFor(rootKey)
	if strings.HasSuffix(rootKey, sep) {
		return strings.HasPrefix(key, rootKey)
	}
	return strings.HasPrefix(key, rootKey+sep)
}

func hasVolume(p string) bool {
	return len(p) >= 2 && p[1] == ':' && p[0] < utf8.RuneSelf && unicode.IsLetter(rune(p[0]))
}

func isSeparator(c byte) bool {
	return c == '\\' || c == '/'
}
