package domain

import (
	"strings"
	"time"
)

// Image est le handle d'un asset stocké chez l'object storage.
// AssetID et PublicID sont les clés nécessaires pour le supprimer.
type Image struct {
	URL      string
	AssetID  string
	PublicID string
}

type Post struct {
	ID        string
	Title     string
	Content   string
	CreatorID string
	Image     Image
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Creator est la projection publique d'un User (pas de gestion de compte ici).
type Creator struct {
	ID   string
	Name string
}

type User struct {
	ID   string
	Name string
}

// NewPost est la commande de création, avant persistance (pas encore d'ID).
type NewPost struct {
	Title     string
	Content   string
	CreatorID string
	Image     Image
}

// PostChanges décrit une mise à jour demandée par le client.
// ImageURL est l'URL que le client pense être l'image courante ;
// NewImage est le fichier uploadé, s'il y en a un.
type PostChanges struct {
	Title    string
	Content  string
	ImageURL string
	NewImage *LocalFile
}

// PostUpdate est l'écriture envoyée au store. Image nil : les colonnes image
// ne sont pas touchées. Sinon l'écriture n'a lieu que si le post référence
// encore PreviousPublicID.
type PostUpdate struct {
	ID               string
	Title            string
	Content          string
	Image            *Image
	PreviousPublicID string
}

// LocalFile est un fichier temporaire déjà écrit sur disque par l'adapter HTTP.
type LocalFile struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
}

type Page struct {
	Posts      []*Post
	TotalItems int
}

// ValidatePostFields : title et content sont obligatoires (hors espaces).
func ValidatePostFields(title, content string) error {
	var fields []FieldError
	if strings.TrimSpace(title) == "" {
		fields = append(fields, FieldError{Field: "title", Message: "title is required"})
	}
	if strings.TrimSpace(content) == "" {
		fields = append(fields, FieldError{Field: "content", Message: "content is required"})
	}
	if len(fields) > 0 {
		return &ValidationError{Message: "Validation failed. Entered data is incorrect", Fields: fields}
	}
	return nil
}
