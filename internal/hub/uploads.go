package hub

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	perrors "github.com/p-blackswan/synapse/internal/errors"
)

// uploadRoot normalises the configured upload directory. An empty dir keeps
// server-side file paths disabled.
func uploadRoot(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("upload dir %q: %w", dir, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return abs, nil
}

// resolveUpload maps a caller-supplied path onto the upload root. Relative
// paths are taken from the root; absolute paths must already lie inside it.
// Any ".." segment is refused before resolution.
func (s *Server) resolveUpload(p string) (string, error) {
	if s.uploadRoot == "" {
		return "", fmt.Errorf("%w: server-side file paths are disabled", perrors.ErrInvalidInput)
	}
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: file path is required", perrors.ErrInvalidInput)
	}
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: file path %q must not contain ..", perrors.ErrInvalidInput, p)
		}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.uploadRoot, p)
	}
	p = filepath.Clean(p)
	if !within(s.uploadRoot, p) {
		return "", fmt.Errorf("%w: file path %q is outside the upload directory", perrors.ErrInvalidInput, p)
	}

	// A symlink inside the root may still point elsewhere.
	real, err := filepath.EvalSymlinks(p)
	switch {
	case err == nil:
		if !within(s.uploadRoot, real) {
			return "", fmt.Errorf("%w: file path %q is outside the upload directory", perrors.ErrInvalidInput, p)
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("%w: file path %q: %v", perrors.ErrInvalidInput, p, err)
	}
	return p, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func badFilePath(c *fiber.Ctx, err error) error {
	return problemResponse(c, fiber.StatusBadRequest,
		"invalid_file_path", "Bad Request", err.Error())
}
