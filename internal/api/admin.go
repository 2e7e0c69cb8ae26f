package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ccoveille/go-safecast"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/jon4hz/sweepcrew/internal/auth"
	"github.com/jon4hz/sweepcrew/internal/database"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

func (h *handler) Stats(c *gin.Context) {
	stats, err := h.engine.GetStats(c.Request.Context())
	if err != nil {
		log.Error("Failed to gather stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to gather stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) ListTrash(c *gin.Context) {
	items, err := h.db.ListTrashed(c.Request.Context())
	if err != nil {
		log.Error("Failed to list trash", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list trash"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trash": items})
}

type userView struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}

func (h *handler) ListUsers(c *gin.Context) {
	users, err := h.db.GetAllUsers(c.Request.Context())
	if err != nil {
		log.Error("Failed to list users", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	views := lo.Map(users, func(u database.User, _ int) userView {
		return userView{ID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin}
	})
	c.JSON(http.StatusOK, gin.H{"users": views})
}

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"isAdmin"`
}

func (h *handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Error("Failed to hash password", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	user, err := h.db.CreateUser(c.Request.Context(), req.Username, hash, req.IsAdmin)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
			return
		}
		log.Error("Failed to create user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusCreated, userView{ID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin})
}

// DeleteUser removes a user and immediately re-evaluates consensus: the
// shrunken eligible set can complete thresholds that were previously short.
func (h *handler) DeleteUser(c *gin.Context) {
	raw, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userID, err := safecast.ToUint(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if userID == currentUser(c).ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete own account"})
		return
	}

	if err := h.db.DeleteUser(c.Request.Context(), userID); err != nil {
		log.Error("Failed to delete user", "user", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
		return
	}

	if err := h.engine.EvaluateAll(c.Request.Context()); err != nil {
		log.Error("Consensus re-evaluation after user deletion failed", "error", err)
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) CreateInvite(c *gin.Context) {
	token, err := h.auth.CreateInvite(c.Request.Context())
	if err != nil {
		log.Error("Failed to create invite", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create invite"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invite": token})
}

func (h *handler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.engine.GetScheduler().GetJobs()})
}

func (h *handler) RunJob(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.engine.GetScheduler().GetJob(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err := h.engine.GetScheduler().RunJobNow(id); err != nil {
		log.Error("Failed to trigger job", "job", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to trigger job"})
		return
	}
	c.Status(http.StatusAccepted)
}
