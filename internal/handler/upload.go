package handler

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNoFile       = errors.New("no file in request")
	ErrFileTooLarge = errors.New("file too large")
)

type uploadResponse struct {
	OK      bool   `json:"ok"`
	FileURL string `json:"fileUrl"`
}

// ServeUpload stores the multipart field "file" in dir under a random name
// and answers with the URL it will be served at below urlPrefix.
func ServeUpload(dir, urlPrefix string, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, err := saveUpload(w, r, dir, maxBytes)
		switch {
		case errors.Is(err, ErrFileTooLarge):
			respondError(w, r, http.StatusRequestEntityTooLarge, err.Error())
			return
		case errors.Is(err, ErrNoFile):
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			log.Printf("%v", err)
			respondError(w, r, http.StatusInternalServerError, "upload failed")
			return
		}

		respondJSON(w, r, http.StatusOK, uploadResponse{
			OK:      true,
			FileURL: path.Join(urlPrefix, name),
		})
	}
}

func saveUpload(w http.ResponseWriter, r *http.Request, dir string, maxBytes int64) (string, error) {
	// Leave room for the multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return "", ErrFileTooLarge
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return "", ErrNoFile
		default:
			return "", fmt.Errorf("internal/handler: failed to read upload: %w", err)
		}
	}
	defer file.Close()

	if header.Size > maxBytes {
		return "", ErrFileTooLarge
	}

	name := uuid.NewString() + safeExt(header)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("internal/handler: failed to create upload dir: %w", err)
	}

	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("internal/handler: failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(file, maxBytes)); err != nil {
		return "", fmt.Errorf("internal/handler: failed to write file: %w", err)
	}

	return name, nil
}

// safeExt keeps a short alphanumeric extension from the client's file name.
func safeExt(header *multipart.FileHeader) string {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
