package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"alumnihub.org/internal/ids"
)

const maxUploadBytes = 8 << 20

// saveUpload stores the named multipart file under the uploads dir and
// returns its relative path. A missing file is not an error.
func (a *API) saveUpload(r *http.Request, field, subdir string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", err
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		return "", fmt.Errorf("%s exceeds the upload size limit", field)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".pdf", ".webp":
	default:
		return "", fmt.Errorf("unsupported file type %q", ext)
	}

	dir := filepath.Join(a.uploadsDir, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := ids.New() + ext
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		return "", err
	}
	return filepath.ToSlash(filepath.Join(subdir, name)), nil
}
