package rest

import (
	"net/http"
	"strconv"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/adapters/wire"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/auth"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/ports"
)

type listResponse struct {
	Message    string      `json:"message"`
	Posts      []wire.Post `json:"posts"`
	TotalItems int         `json:"totalItems"`
}

type userPostsResponse struct {
	Message string      `json:"message"`
	Posts   []wire.Post `json:"posts"`
}

type postResponse struct {
	Message string        `json:"message"`
	Post    wire.Post     `json:"post"`
	Creator *wire.Creator `json:"creator,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type imageResponse struct {
	Message      string `json:"message"`
	FilePath     string `json:"filePath"`
	FilePublicID string `json:"filePublicId"`
	FileAssetID  string `json:"fileAssetId"`
}

// --- QUERIES (Read) ---

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, domain.Invalid("page must be a positive integer"))
			return
		}
		page = n
	}

	result, err := s.service.ListPosts(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Message:    "Fetched posts successfully",
		Posts:      wire.NewPosts(result.Posts),
		TotalItems: result.TotalItems,
	})
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.service.GetPost(r.Context(), r.PathValue("postId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, postResponse{Message: "Post fetched successfully", Post: wire.NewPost(post)})
}

func (s *Server) listUserPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.service.ListUserPosts(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userPostsResponse{Message: "Fetched user posts", Posts: wire.NewPosts(posts)})
}

// --- COMMANDS (Write) ---

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	userID := auth.ForContext(r.Context())
	if userID == "" {
		writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	image, cleanup, ok := s.readForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	result, err := s.service.CreatePost(r.Context(), userID, ports.CreatePostCmd{
		Title:   r.FormValue("title"),
		Content: r.FormValue("content"),
		Image:   image,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, postResponse{
		Message: "Post created successfully!",
		Post:    wire.NewPost(result.Post),
		Creator: &wire.Creator{ID: result.Creator.ID, Name: result.Creator.Name},
	})
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	userID := auth.ForContext(r.Context())
	if userID == "" {
		writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	image, cleanup, ok := s.readForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	post, err := s.service.UpdatePost(r.Context(), userID, r.PathValue("postId"), domain.PostChanges{
		Title:    r.FormValue("title"),
		Content:  r.FormValue("content"),
		ImageURL: r.FormValue(imageField),
		NewImage: image,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, postResponse{Message: "Post updated!", Post: wire.NewPost(post)})
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeletePost(r.Context(), auth.ForContext(r.Context()), r.PathValue("postId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Post deleted!"})
}

// uploadImage : upload seul, avec reclamation optionnelle de oldPublicId.
func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	userID := auth.ForContext(r.Context())
	if userID == "" {
		writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	image, cleanup, ok := s.readForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	if image == nil {
		writeJSON(w, http.StatusOK, messageResponse{Message: "No file provided"})
		return
	}

	handle, err := s.service.UploadAsset(r.Context(), userID, ports.UploadAssetCmd{
		File:        image,
		OldPublicID: r.FormValue("oldPublicId"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, imageResponse{
		Message:      "File saved",
		FilePath:     handle.URL,
		FilePublicID: handle.PublicID,
		FileAssetID:  handle.AssetID,
	})
}

// readForm parse le formulaire et dépose l'éventuelle image sur disque.
// ok=false : la réponse d'erreur est déjà écrite.
func (s *Server) readForm(w http.ResponseWriter, r *http.Request) (*domain.LocalFile, func(), bool) {
	if err := parseForm(w, r); err != nil {
		writeError(w, r, err)
		return nil, nil, false
	}

	image, cleanup, err := s.spoolImage(r)
	if err != nil {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
		writeError(w, r, err)
		return nil, nil, false
	}

	return image, func() {
		cleanup()
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}, true
}
