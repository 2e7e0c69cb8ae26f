package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/ccoveille/go-safecast"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/jon4hz/sweepcrew/internal/auth"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/jon4hz/sweepcrew/internal/engine"
)

type handler struct {
	*Server
}

func newHandler(s *Server) *handler {
	return &handler{Server: s}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, user, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Error("Login failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.SetCookie(sessionCookie, token, h.cfg.SessionMaxAge, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"username": user.Username,
		"isAdmin":  user.IsAdmin,
	})
}

type registerRequest struct {
	Invite   string `json:"invite" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invite, username and password are required"})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req.Invite, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidInvite) {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired invite token"})
			return
		}
		log.Error("Registration failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"username": user.Username})
}

func (h *handler) Logout(c *gin.Context) {
	if token, err := c.Cookie(sessionCookie); err == nil {
		if err := h.auth.Logout(c.Request.Context(), token); err != nil {
			log.Warn("Failed to delete session", "error", err)
		}
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

func (h *handler) Me(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"username": user.Username,
		"isAdmin":  user.IsAdmin,
	})
}

func (h *handler) ListMedia(c *gin.Context) {
	filter := database.MediaFilter{
		Kind:   database.MediaKind(c.Query("kind")),
		Status: database.MediaStatus(c.Query("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status filter"})
		return
	}

	views, err := h.engine.ListMedia(c.Request.Context(), filter, currentUser(c).ID)
	if err != nil {
		log.Error("Failed to list media", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list media"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": views})
}

func (h *handler) Mark(c *gin.Context) {
	mediaID, ok := mediaIDParam(c)
	if !ok {
		return
	}
	if err := h.engine.Mark(c.Request.Context(), currentUser(c).ID, mediaID); err != nil {
		if errors.Is(err, engine.ErrMediaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
			return
		}
		log.Error("Failed to mark media", "media", mediaID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark media"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) Unmark(c *gin.Context) {
	mediaID, ok := mediaIDParam(c)
	if !ok {
		return
	}
	if err := h.engine.Unmark(c.Request.Context(), currentUser(c).ID, mediaID); err != nil {
		log.Error("Failed to unmark media", "media", mediaID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unmark media"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) Persist(c *gin.Context) {
	mediaID, ok := mediaIDParam(c)
	if !ok {
		return
	}
	if err := h.engine.Persist(c.Request.Context(), currentUser(c).ID, mediaID); err != nil {
		if errors.Is(err, engine.ErrMediaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
			return
		}
		log.Error("Failed to persist media", "media", mediaID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist media"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) Poster(c *gin.Context) {
	if h.cfg.TMDB == nil || !h.cfg.TMDB.Enabled {
		c.Status(http.StatusNotFound)
		return
	}
	// The file param is a bare name; never let path elements escape the
	// poster directory.
	name := filepath.Base(c.Param("file"))
	c.File(filepath.Join(h.cfg.TMDB.PosterDir, name))
}

func mediaIDParam(c *gin.Context) (uint, bool) {
	raw, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid media id"})
		return 0, false
	}
	id, err := safecast.ToUint(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid media id"})
		return 0, false
	}
	return id, true
}
