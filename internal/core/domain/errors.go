package domain

import "errors"

// --- ERREURS DU DOMAINE ---
var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("could not find post")
	ErrForbidden       = errors.New("not authorized")
	ErrUploadFailed    = errors.New("image upload failed")
	ErrUserNotFound    = errors.New("user not found")
	ErrConflict        = errors.New("post image changed concurrently")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError porte le détail par champ renvoyé au client (422).
// errors.Is(err, ErrInvalidInput) est vrai.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Invalid construit une ValidationError sans détail par champ.
func Invalid(message string) error {
	return &ValidationError{Message: message}
}
