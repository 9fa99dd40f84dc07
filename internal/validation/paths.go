package validation

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var ErrUnsafePath = errors.New("unsafe path")

// PathHandler validates the files streamview writes: the capture file, the
// search index and the log.
type PathHandler struct {
	// AllowedBaseDirs restricts paths to these directories. Empty allows all.
	AllowedBaseDirs []string
	MaxPathLength   int
}

// NewSecurePathHandler limits writes to streamview's own directories and
// the temp dir.
func NewSecurePathHandler() *PathHandler {
	homeDir, _ := os.UserHomeDir()
	return &PathHandler{
		AllowedBaseDirs: []string{
			filepath.Join(homeDir, ".streamview"),
			filepath.Join(homeDir, ".config", "streamview"),
			os.TempDir(),
		},
		MaxPathLength: 4096,
	}
}

func NewPermissivePathHandler() *PathHandler {
	return &PathHandler{MaxPathLength: 4096}
}

// ExpandAndValidatePath expands ~, makes path absolute and checks it.
func (ph *PathHandler) ExpandAndValidatePath(path string) (string, error) {
	if path == "" {
		return "", errors.Wrap(ErrUnsafePath, "path cannot be empty")
	}
	if len(path) > ph.MaxPathLength {
		return "", errors.Wrapf(ErrUnsafePath, "path too long (max %d characters)", ph.MaxPathLength)
	}
	if !IsPathSafe(path) {
		return "", errors.Wrapf(ErrUnsafePath, "%q", path)
	}
	for _, r := range path {
		if r < 32 && r != '\t' {
			return "", errors.Wrap(ErrUnsafePath, "path contains control characters")
		}
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "cannot determine home directory")
		}
		path = filepath.Join(homeDir, path[2:])
	} else if strings.HasPrefix(path, "~") {
		return "", errors.Wrap(ErrUnsafePath, "invalid tilde usage")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(err, "cannot make path absolute")
	}
	if err := ph.withinBaseDirs(abs); err != nil {
		return "", err
	}
	return abs, nil
}

func (ph *PathHandler) withinBaseDirs(abs string) error {
	if len(ph.AllowedBaseDirs) == 0 {
		return nil
	}
	for _, base := range ph.AllowedBaseDirs {
		absBase, err := filepath.Abs(base)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absBase, abs)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return errors.Wrapf(ErrUnsafePath, "%s is not within %v", abs, ph.AllowedBaseDirs)
}

// CapturePath validates the capture file. An existing directory is rejected.
func (ph *PathHandler) CapturePath(userPath string) (string, error) {
	return ph.file(userPath)
}

// LogPath validates the log file.
func (ph *PathHandler) LogPath(userPath string) (string, error) {
	if userPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		userPath = filepath.Join(homeDir, ".streamview", "streamview.log")
	}
	return ph.file(userPath)
}

// IndexPath validates the search index location. Bleve indexes are
// directories, so an existing regular file is rejected.
func (ph *PathHandler) IndexPath(userPath string) (string, error) {
	p, err := ph.ExpandAndValidatePath(userPath)
	if err != nil {
		return "", err
	}
	if info, statErr := os.Stat(p); statErr == nil && !info.IsDir() {
		return "", errors.Wrapf(ErrUnsafePath, "%s is a file, not a directory", p)
	}
	return p, nil
}

func (ph *PathHandler) file(userPath string) (string, error) {
	p, err := ph.ExpandAndValidatePath(userPath)
	if err != nil {
		return "", err
	}
	if info, statErr := os.Stat(p); statErr == nil && info.IsDir() {
		return "", errors.Wrapf(ErrUnsafePath, "%s is a directory, not a file", p)
	}
	return p, nil
}

// IsPathSafe performs a quick safety check on a path without full validation
func IsPathSafe(path string) bool {
	if strings.Contains(path, "\x00") {
		return false
	}
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return false
		}
	}
	return len(path) <= 4096
}
