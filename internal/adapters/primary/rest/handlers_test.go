package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/adapters/secondary/broadcast"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/adapters/wire"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/auth"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/services"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/testutil"
)

// tokenVerifier : "Bearer <userID>" est accepté tel quel.
type tokenVerifier struct{}

func (tokenVerifier) Validate(token string) (string, error) {
	if token == "forged" {
		return "", errors.New("bad signature")
	}
	return token, nil
}

type env struct {
	handler   http.Handler
	hub       *broadcast.Hub
	media     *testutil.FakeMedia
	uploadDir string
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	e := &env{
		hub:       broadcast.NewHub(16),
		media:     testutil.NewFakeMedia(),
		uploadDir: t.TempDir(),
	}
	store := services.NewPostStore(testutil.NewMemoryPosts(), testutil.NewMemoryIndex(),
		services.WithIndexRetry(1, func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
	users := testutil.NewMemoryUsers(domain.User{ID: "alice", Name: "Alice"}, domain.User{ID: "bob", Name: "Bob"})
	svc := services.NewFeedService(store, users, e.media, e.hub)

	opts = append([]Option{WithUploadDir(e.uploadDir), WithCORS(NewCORS([]string{"*"}))}, opts...)
	api := NewServer(svc, e.hub, opts...)
	e.handler = auth.Middleware(tokenVerifier{})(api.Handler())
	return e
}

type formFile struct {
	name        string
	contentType string
}

func multipartBody(t *testing.T, fields map[string]string, file *formFile) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, file.name))
		h.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("\x89PNG\r\n\x1a\nfake"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func (e *env) do(t *testing.T, method, path, user string, fields map[string]string, file *formFile) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if fields != nil || file != nil {
		body, ct := multipartBody(t, fields, file)
		req = httptest.NewRequest(method, path, body)
		req.Header.Set("Content-Type", ct)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func (e *env) createPost(t *testing.T, user, title string) map[string]any {
	t.Helper()
	rec, body := e.do(t, http.MethodPost, "/feed/post", user,
		map[string]string{"title": title, "content": "content"}, &formFile{"cat.png", "image/png"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return body["post"].(map[string]any)
}

func TestCreateAndReadPosts(t *testing.T) {
	e := newEnv(t)

	rec, body := e.do(t, http.MethodPost, "/feed/post", "alice",
		map[string]string{"title": "A", "content": "B"}, &formFile{"cat.png", "image/png"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Post created successfully!", body["message"])
	assert.Equal(t, "Alice", body["creator"].(map[string]any)["name"])

	post := body["post"].(map[string]any)
	id := post["id"].(string)
	assert.NotEmpty(t, post["imageUrl"])
	assert.NotEmpty(t, post["imagePublicId"])
	assert.Equal(t, "alice", post["creatorId"])

	rec, body = e.do(t, http.MethodGet, "/feed/post/"+id, "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "A", body["post"].(map[string]any)["title"])

	rec, body = e.do(t, http.MethodGet, "/feed/posts?page=1", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["totalItems"])
	assert.Len(t, body["posts"], 1)

	// Le fichier temporaire ne survit pas à la requête
	entries, err := os.ReadDir(e.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListPostsPages(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 3; i++ {
		e.createPost(t, "alice", fmt.Sprintf("post-%d", i))
	}

	_, body := e.do(t, http.MethodGet, "/feed/posts", "", nil, nil)
	assert.Len(t, body["posts"], 2)
	assert.EqualValues(t, 3, body["totalItems"])

	_, body = e.do(t, http.MethodGet, "/feed/posts?page=2", "", nil, nil)
	posts := body["posts"].([]any)
	require.Len(t, posts, 1)
	assert.Equal(t, "post-0", posts[0].(map[string]any)["title"])

	_, body = e.do(t, http.MethodGet, "/feed/posts?page=9", "", nil, nil)
	assert.Equal(t, []any{}, body["posts"])

	rec, _ := e.do(t, http.MethodGet, "/feed/posts?page=abc", "", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreatePostErrors(t *testing.T) {
	e := newEnv(t)

	rec, body := e.do(t, http.MethodPost, "/feed/post", "",
		map[string]string{"title": "A", "content": "B"}, &formFile{"cat.png", "image/png"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authenticated!", body["message"])

	rec, _ = e.do(t, http.MethodPost, "/feed/post", "forged",
		map[string]string{"title": "A", "content": "B"}, &formFile{"cat.png", "image/png"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body = e.do(t, http.MethodPost, "/feed/post", "alice",
		map[string]string{"content": "B"}, &formFile{"cat.png", "image/png"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Len(t, body["data"], 1)
	assert.Equal(t, "title", body["data"].([]any)[0].(map[string]any)["field"])

	rec, body = e.do(t, http.MethodPost, "/feed/post", "alice",
		map[string]string{"title": "A", "content": "B"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "No image provided", body["message"])

	rec, _ = e.do(t, http.MethodPost, "/feed/post", "alice",
		map[string]string{"title": "A", "content": "B"}, &formFile{"cat.gif", "image/gif"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	e.media.UploadErr = errors.New("storage down")
	rec, body = e.do(t, http.MethodPost, "/feed/post", "alice",
		map[string]string{"title": "A", "content": "B"}, &formFile{"cat.png", "image/png"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Image upload failed", body["message"])

	assert.Zero(t, e.media.Uploads())
}

func TestUpdateAndDeletePost(t *testing.T) {
	e := newEnv(t)
	post := e.createPost(t, "alice", "A")
	id := post["id"].(string)
	url := post["imageUrl"].(string)

	rec, _ := e.do(t, http.MethodPut, "/feed/post/"+id, "bob",
		map[string]string{"title": "X", "content": "Y", "image": url}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := e.do(t, http.MethodPut, "/feed/post/"+id, "alice",
		map[string]string{"title": "A2", "content": "B2", "image": url}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Post updated!", body["message"])
	assert.Equal(t, "A2", body["post"].(map[string]any)["title"])
	assert.Equal(t, url, body["post"].(map[string]any)["imageUrl"])

	rec, body = e.do(t, http.MethodPut, "/feed/post/"+id, "alice",
		map[string]string{"title": "A3", "content": "B3", "image": url}, &formFile{"dog.png", "image/png"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, url, body["post"].(map[string]any)["imageUrl"])
	assert.Equal(t, []string{post["imagePublicId"].(string)}, e.media.Deleted())

	rec, _ = e.do(t, http.MethodDelete, "/feed/post/"+id, "bob", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = e.do(t, http.MethodDelete, "/feed/post/"+id, "alice", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Post deleted!", body["message"])

	rec, body = e.do(t, http.MethodGet, "/feed/post/"+id, "", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Could not find post!", body["message"])

	rec, _ = e.do(t, http.MethodDelete, "/feed/post/"+id, "alice", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadImageEndpoint(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(t, http.MethodPut, "/post-image", "", nil, &formFile{"a.png", "image/png"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := e.do(t, http.MethodPut, "/post-image", "alice", map[string]string{}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No file provided", body["message"])

	rec, body = e.do(t, http.MethodPut, "/post-image", "alice", nil, &formFile{"a.png", "image/png"})
	require.Equal(t, http.StatusCreated, rec.Code)
	first := body["filePublicId"].(string)
	assert.NotEmpty(t, body["filePath"])
	assert.NotEmpty(t, body["fileAssetId"])

	rec, _ = e.do(t, http.MethodPut, "/post-image", "alice",
		map[string]string{"oldPublicId": first}, &formFile{"b.png", "image/png"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{first}, e.media.Deleted())
}

func TestStreamDeliversMutations(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/feed/stream", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return e.hub.ActiveSubscribers() == 1 }, time.Second, 10*time.Millisecond)

	post := e.createPost(t, "alice", "live")
	rec, _ := e.do(t, http.MethodDelete, "/feed/post/"+post["id"].(string), "alice", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var created wire.FeedEvent
	require.NoError(t, conn.ReadJSON(&created))
	assert.Equal(t, domain.ActionCreate, created.Action)
	var p wire.Post
	require.NoError(t, json.Unmarshal(created.Post, &p))
	assert.Equal(t, "live", p.Title)
	require.NotNil(t, p.Creator)
	assert.Equal(t, "Alice", p.Creator.Name)

	var deleted wire.FeedEvent
	require.NoError(t, conn.ReadJSON(&deleted))
	assert.Equal(t, domain.ActionDelete, deleted.Action)
	assert.JSONEq(t, `"`+p.ID+`"`, string(deleted.Post))
	assert.Greater(t, deleted.Seq, created.Seq)
}

func TestListUserPosts(t *testing.T) {
	e := newEnv(t)
	e.createPost(t, "alice", "one")
	e.createPost(t, "bob", "two")

	rec, body := e.do(t, http.MethodGet, "/feed/users/alice/posts", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	posts := body["posts"].([]any)
	require.Len(t, posts, 1)
	assert.Equal(t, "one", posts[0].(map[string]any)["title"])
}

func dialStream(t *testing.T, e *env, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	srv := httptest.NewServer(e.handler)
	t.Cleanup(srv.Close)

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/feed/stream", header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func TestStreamFollowsCORSPolicy(t *testing.T) {
	t.Run("any origin", func(t *testing.T) {
		e := newEnv(t)
		_, _, err := dialStream(t, e, "http://localhost:3000")
		require.NoError(t, err)
	})

	t.Run("listed origins only", func(t *testing.T) {
		e := newEnv(t, WithCORS(NewCORS([]string{"https://app.example.com"})))

		_, _, err := dialStream(t, e, "https://app.example.com")
		require.NoError(t, err)

		_, resp, err := dialStream(t, e, "http://localhost:3000")
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		_, _, err = dialStream(t, e, "")
		require.NoError(t, err, "non-browser clients send no Origin")
	})
}

func TestAnonymousMutationsAreRejectedBeforeSpooling(t *testing.T) {
	// Dossier absent : toute écriture du fichier temporaire échoue en 500.
	missing := filepath.Join(t.TempDir(), "missing")
	e := newEnv(t, WithUploadDir(missing))

	rec, _ := e.do(t, http.MethodPost, "/feed/post", "",
		map[string]string{"title": "A", "content": "B"}, &formFile{"cat.png", "image/png"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = e.do(t, http.MethodPut, "/feed/post/any", "",
		map[string]string{"title": "A", "content": "B"}, &formFile{"cat.png", "image/png"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, err := os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
	assert.Zero(t, e.media.Uploads())

	rec, _ = e.do(t, http.MethodPost, "/feed/post", "alice",
		map[string]string{"title": "A", "content": "B"}, &formFile{"cat.png", "image/png"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "authenticated requests do reach the spool")
}

func TestListPostsHugePage(t *testing.T) {
	e := newEnv(t)
	e.createPost(t, "alice", "only")

	rec, body := e.do(t, http.MethodGet, "/feed/posts?page=9223372036854775807", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["posts"])
	assert.EqualValues(t, 1, body["totalItems"])
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
