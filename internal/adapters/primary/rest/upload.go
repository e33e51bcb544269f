package rest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/adapters/secondary/storage"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
)

const (
	imageField = "image"
	// Marge pour les champs texte du formulaire multipart.
	formOverhead   = 1 << 20
	maxFormMemory  = 1 << 20
	maxRequestSize = storage.MaxImageSize + formOverhead
)

// parseForm lit le formulaire (multipart ou urlencoded) avec une taille bornée.
func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		err = r.ParseMultipartForm(maxFormMemory)
	} else {
		err = r.ParseForm()
	}
	if err == nil {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &domain.ValidationError{
			Message: "Image is too large",
			Fields:  []domain.FieldError{{Field: imageField, Message: "image must not exceed 5 MB"}},
		}
	}
	return domain.Invalid("Malformed form data")
}

// spoolImage écrit le fichier "image" dans uploadDir sous "<date>-<nom>".
// Retourne nil, nil s'il n'y a pas de fichier. L'appelant supprime le fichier
// via cleanup (sans effet si le Media Gateway l'a déjà supprimé).
func (s *Server) spoolImage(r *http.Request) (*domain.LocalFile, func(), error) {
	noop := func() {}
	if r.MultipartForm == nil {
		return nil, noop, nil
	}

	src, header, err := r.FormFile(imageField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, noop, nil
		}
		return nil, noop, fmt.Errorf("read form file: %w", err)
	}
	defer src.Close()

	name := sanitizeName(header.Filename)
	dst, err := os.CreateTemp(s.uploadDir, time.Now().UTC().Format("20060102T150405Z")+"-*-"+name)
	if err != nil {
		return nil, noop, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(dst.Name()); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove temporary upload", "path", dst.Name(), "error", err)
		}
	}

	size, err := io.Copy(dst, src)
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("write temp file: %w", err)
	}

	return &domain.LocalFile{
		Path:        dst.Name(),
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        size,
	}, cleanup, nil
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}
