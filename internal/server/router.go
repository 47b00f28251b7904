package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/VellumResearchLab/vellum/internal/auth"
	"github.com/VellumResearchLab/vellum/internal/notebooks"
	"github.com/VellumResearchLab/vellum/internal/tenancy"
	"github.com/VellumResearchLab/vellum/internal/users"
)

const identityContextKey = "vellum_identity"

var (
	errMissingTokenService     = errors.New("token service dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingNotebooksService = errors.New("notebooks service dependency required")
)

// TokenValidator validates bearer tokens and returns their decoded claims.
type TokenValidator interface {
	Validate(token string) (auth.Claims, error)
}

// TokenIssuer issues bearer tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID, role string) (string, time.Time, error)
}

// TokenManager combines issuance and validation; *auth.TokenService
// satisfies it.
type TokenManager interface {
	TokenIssuer
	TokenValidator
}

// Dependencies wires the HTTP layer. Tokens may be nil only when
// AuthDisabled is set.
type Dependencies struct {
	Tokens       TokenManager
	Users        *users.Service
	Notebooks    *notebooks.Service
	Realtime     *RealtimeDispatcher
	Logger       *zap.Logger
	AuthDisabled bool
	Version      string
}

// NewHTTPHandler builds the gin router: public endpoints, then everything
// else behind the authorization middleware.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil && !deps.AuthDisabled {
		return nil, errMissingTokenService
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Notebooks == nil {
		return nil, errMissingNotebooksService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:       deps.Tokens,
		users:        deps.Users,
		notebooks:    deps.Notebooks,
		realtime:     realtime,
		logger:       logger,
		authDisabled: deps.AuthDisabled,
		version:      deps.Version,
	}

	// Public surface: health probes and the authentication flow itself.
	router.GET("/", handler.handleRoot)
	router.GET("/health", handler.handleHealth)

	api := router.Group("/api")
	api.GET("/auth/status", handler.handleAuthStatus)
	api.GET("/config", handler.handleConfig)
	if !deps.AuthDisabled {
		api.POST("/auth/signup", handler.handleSignup)
		api.POST("/auth/signin", handler.handleSignin)
	}

	protected := api.Group("")
	protected.Use(handler.authorizeRequest)
	protected.GET("/users/me", handler.handleCurrentUser)
	protected.PUT("/users/me", handler.handleRenameCurrentUser)
	protected.PUT("/users/:id/role", handler.handleSetUserRole)
	protected.GET("/notebooks", handler.handleListNotebooks)
	protected.POST("/notebooks", handler.handleCreateNotebook)
	protected.GET("/notebooks/:id", handler.handleGetNotebook)
	protected.PUT("/notebooks/:id", handler.handleUpdateNotebook)
	protected.DELETE("/notebooks/:id", handler.handleDeleteNotebook)
	protected.PUT("/notebooks/:id/owner", handler.handleAssignNotebookOwner)
	protected.GET("/notebooks/:id/notes", handler.handleListNotes)
	protected.POST("/notebooks/:id/notes", handler.handleCreateNote)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.PUT("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	tokens       TokenManager
	users        *users.Service
	notebooks    *notebooks.Service
	realtime     *RealtimeDispatcher
	logger       *zap.Logger
	authDisabled bool
	version      string

	adminOnce     sync.Once
	adminIdentity tenancy.Identity
	adminErr      error
}

func (h *httpHandler) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Vellum API is running"})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// authorizeRequest gates every non-excluded route. The request either
// leaves with an identity attached or is rejected here; handlers never see
// an anonymous caller.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	if h.authDisabled {
		identity, err := h.resolveAdminIdentity(c.Request.Context())
		if err != nil {
			h.logger.Error("single-user identity resolution failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "bootstrap_incomplete"})
			return
		}
		c.Set(identityContextKey, identity)
		c.Next()
		return
	}

	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
		return
	}

	claims, err := h.tokens.Validate(token)
	if err != nil {
		// Expired tokens are routine; anything else deserves attention.
		if errors.Is(err, auth.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	c.Set(identityContextKey, tenancy.Identity{
		UserID: claims.UserID,
		Role:   users.ParseRole(claims.Role),
	})
	c.Next()
}

// resolveAdminIdentity looks up the bootstrap admin once and reuses it for
// every request in single-user deployments.
func (h *httpHandler) resolveAdminIdentity(ctx context.Context) (tenancy.Identity, error) {
	h.adminOnce.Do(func() {
		admin, err := h.users.FindAdmin(ctx)
		if err != nil {
			h.adminErr = err
			return
		}
		h.adminIdentity = tenancy.Identity{UserID: admin.ID, Role: admin.Role}
	})
	return h.adminIdentity, h.adminErr
}

func identityFromContext(c *gin.Context) (tenancy.Identity, bool) {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return tenancy.Identity{}, false
	}
	identity, ok := value.(tenancy.Identity)
	return identity, ok
}
