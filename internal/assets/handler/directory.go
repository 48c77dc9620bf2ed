package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/directory"
)

// DirectoryHandler exposes the read-only directory integration.
type DirectoryHandler struct {
	dir    *directory.Fixture
	logger *zap.Logger
}

// NewDirectoryHandler creates a new DirectoryHandler.
func NewDirectoryHandler(dir *directory.Fixture, logger *zap.Logger) *DirectoryHandler {
	return &DirectoryHandler{dir: dir, logger: logger}
}

// Register registers the directory routes on the given router group.
func (h *DirectoryHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/integrations/directory", h.Query)
}

// Query handles GET /integrations/directory?action=status|users|computers|groups|privileged.
func (h *DirectoryHandler) Query(c *gin.Context) {
	ctx := c.Request.Context()
	switch action := c.DefaultQuery("action", "status"); action {
	case "status":
		c.JSON(http.StatusOK, h.dir.Status(ctx))
	case "users":
		users := h.dir.Users(ctx)
		c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
	case "computers":
		computers := h.dir.Computers(ctx)
		c.JSON(http.StatusOK, gin.H{"computers": computers, "total": len(computers)})
	case "groups":
		groups := h.dir.Groups(ctx)
		c.JSON(http.StatusOK, gin.H{"groups": groups, "total": len(groups)})
	case "privileged":
		accounts, err := h.dir.PrivilegedAccounts(ctx)
		if err != nil {
			writeError(c, h.logger, err, "privileged accounts")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"privileged_users":  accounts,
			"privileged_groups": h.dir.PrivilegedGroups(ctx),
			"total":             len(accounts),
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action " + action})
	}
}
