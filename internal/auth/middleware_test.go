package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubVerifier map[string]string

func (s stubVerifier) Validate(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

func TestMiddleware(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ForContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(stubVerifier{"good": "u-1"})(next)

	cases := []struct {
		name   string
		header string
		code   int
		user   string
	}{
		{"anonymous", "", http.StatusNoContent, ""},
		{"valid bearer", "Bearer good", http.StatusNoContent, "u-1"},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, ""},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, ""},
		{"invalid token", "Bearer forged", http.StatusUnauthorized, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/feed/posts", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, c.code, rec.Code)
			assert.Equal(t, c.user, seen)
			if c.code == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), "message")
			}
		})
	}
}
