package http

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sujalbistaa/confessly/internal/auth"
	"github.com/sujalbistaa/confessly/internal/service"
	"github.com/sujalbistaa/confessly/internal/validate"
	"github.com/sujalbistaa/confessly/internal/ws"
)

// --- Configuration Constants ---
const (
	rateLimitRPS   = 1.0 / 3.0 // 1 request every 3 seconds
	rateLimitBurst = 1
	maxTagLimit    = 50
)

// --- Structs for request binding ---
// Length limits are enforced by the services after trimming.
type CreateConfessionInput struct {
	Content string `json:"content"`
}

type CreateCommentInput struct {
	Content string `json:"content"`
}

type CredentialsInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// NavItem is one entry of the navigation shell.
type NavItem struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}

// --- Handlers ---

// Env carries the services the handlers call.
type Env struct {
	Confessions *service.Confessions
	Reactions   *service.Reactions
	Feed        *service.Feed
	Admin       *service.Admin
	Auth        *auth.Service
	Hub         *ws.Hub
	Log         *zap.Logger
	SessionTTL  time.Duration
}

// respondError maps service errors to status codes. Anything unexpected is
// logged and reported with the generic fallback message.
func (e *Env) respondError(c *gin.Context, err error, fallback string) {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Confession not found"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
	case errors.Is(err, auth.ErrAlreadyRegistered):
		c.JSON(http.StatusConflict, gin.H{"error": "This email is already registered. Please login instead."})
	default:
		e.Log.Error(fallback, zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback + " Please try again."})
	}
}

func clientID(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return service.UnknownClient
}

func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return n, true
}

// --- Feed ---

func (e *Env) GetConfessions(c *gin.Context) {
	list, err := e.Feed.Recent(c.Request.Context())
	if err != nil {
		e.respondError(c, err, "Failed to fetch confessions.")
		return
	}
	c.JSON(http.StatusOK, list)
}

func (e *Env) GetTrending(c *gin.Context) {
	days, ok := intQuery(c, "days", 0)
	if !ok {
		return
	}
	list, err := e.Feed.Trending(c.Request.Context(), days)
	if err != nil {
		e.respondError(c, err, "Failed to fetch trending confessions.")
		return
	}
	c.JSON(http.StatusOK, list)
}

func (e *Env) GetMostLiked(c *gin.Context) {
	list, err := e.Feed.MostLiked(c.Request.Context())
	if err != nil {
		e.respondError(c, err, "Failed to fetch confessions.")
		return
	}
	c.JSON(http.StatusOK, list)
}

func (e *Env) GetMostCommented(c *gin.Context) {
	list, err := e.Feed.MostCommented(c.Request.Context())
	if err != nil {
		e.respondError(c, err, "Failed to fetch confessions.")
		return
	}
	c.JSON(http.StatusOK, list)
}

func (e *Env) GetTags(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	if limit > maxTagLimit {
		limit = maxTagLimit
	}
	tags, err := e.Feed.PopularTags(c.Request.Context(), limit)
	if err != nil {
		e.respondError(c, err, "Failed to fetch tags.")
		return
	}
	c.JSON(http.StatusOK, tags)
}

// --- Submission ---

func (e *Env) CreateConfession(c *gin.Context) {
	var input CreateConfessionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	confession, err := e.Confessions.Submit(c.Request.Context(), input.Content, clientID(c))
	if err != nil {
		e.respondError(c, err, "Failed to submit confession.")
		return
	}
	c.JSON(http.StatusCreated, confession)
}

// --- Reactions ---

func (e *Env) GetLikes(c *gin.Context) {
	state, err := e.Reactions.LikeState(c.Request.Context(), c.Param("id"), clientID(c))
	if err != nil {
		e.respondError(c, err, "Failed to fetch likes.")
		return
	}
	c.JSON(http.StatusOK, state)
}

func (e *Env) ToggleLike(c *gin.Context) {
	state, err := e.Reactions.ToggleLike(c.Request.Context(), c.Param("id"), clientID(c))
	if err != nil {
		e.respondError(c, err, "Failed to update like.")
		return
	}
	c.JSON(http.StatusOK, state)
}

func (e *Env) GetComments(c *gin.Context) {
	comments, err := e.Reactions.Comments(c.Request.Context(), c.Param("id"))
	if err != nil {
		e.respondError(c, err, "Failed to fetch comments.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(comments), "comments": comments})
}

func (e *Env) CreateComment(c *gin.Context) {
	var input CreateCommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	comment, err := e.Reactions.AddComment(c.Request.Context(), c.Param("id"), input.Content)
	if err != nil {
		e.respondError(c, err, "Failed to add comment.")
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// --- Auth ---

func (e *Env) SignUp(c *gin.Context) {
	var input CredentialsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	user, err := e.Auth.SignUp(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		e.respondError(c, err, "Failed to create account.")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "email": user.Email, "message": "Account created! You can now login."})
}

func (e *Env) SignIn(c *gin.Context) {
	var input CredentialsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	sess, err := e.Auth.SignIn(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		e.respondError(c, err, "Failed to sign in.")
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, sess.Token, int(e.SessionTTL.Seconds()), "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, gin.H{"token": sess.Token, "session": sess})
}

func (e *Env) SignOut(c *gin.Context) {
	e.Auth.SignOut(sessionToken(c))
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

func (e *Env) GetSession(c *gin.Context) {
	sess := SessionFrom(c)
	if sess == nil {
		c.JSON(http.StatusOK, gin.H{"session": nil, "isAdmin": false})
		return
	}
	isAdmin, err := e.Auth.IsAdmin(c.Request.Context(), sess)
	if err != nil {
		e.respondError(c, err, "Failed to load session.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "isAdmin": isAdmin})
}

// GetNav lists the routes the caller may see.
func (e *Env) GetNav(c *gin.Context) {
	items := []NavItem{
		{Path: "/", Label: "Home"},
		{Path: "/trending", Label: "Trending"},
		{Path: "/most-liked", Label: "Most Liked"},
		{Path: "/most-commented", Label: "Most Commented"},
	}

	sess := SessionFrom(c)
	isAdmin := false
	if sess != nil {
		var err error
		if isAdmin, err = e.Auth.IsAdmin(c.Request.Context(), sess); err != nil {
			e.respondError(c, err, "Failed to load navigation.")
			return
		}
	}
	if isAdmin {
		items = append(items, NavItem{Path: "/admin", Label: "Admin"})
	}
	if sess != nil {
		items = append(items, NavItem{Path: "/api/auth/signout", Label: "Logout"})
	} else {
		items = append(items, NavItem{Path: "/auth", Label: "Admin Login"})
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "signedIn": sess != nil, "isAdmin": isAdmin})
}

// --- Admin ---

func (e *Env) GetStats(c *gin.Context) {
	stats, err := e.Admin.Stats(c.Request.Context())
	if err != nil {
		e.respondError(c, err, "Failed to fetch stats.")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (e *Env) GetAdminConfessions(c *gin.Context) {
	order, err := service.ParseSortOrder(c.Query("sort"))
	if err != nil {
		e.respondError(c, err, "Failed to fetch confessions.")
		return
	}
	list, err := e.Admin.List(c.Request.Context(), c.Query("q"), order)
	if err != nil {
		e.respondError(c, err, "Failed to fetch confessions.")
		return
	}
	c.JSON(http.StatusOK, list)
}

func (e *Env) DeleteConfession(c *gin.Context) {
	if err := e.Admin.Delete(c.Request.Context(), c.Param("id")); err != nil {
		e.respondError(c, err, "Failed to delete confession.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Confession deleted"})
}

// AdminPage gates the dashboard page: no session goes to /auth, a
// non-admin goes home.
func (e *Env) AdminPage(staticDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := SessionFrom(c)
		if sess == nil {
			c.Redirect(http.StatusFound, "/auth")
			return
		}
		isAdmin, err := e.Auth.IsAdmin(c.Request.Context(), sess)
		if err != nil || !isAdmin {
			c.Redirect(http.StatusFound, "/")
			return
		}
		c.File(filepath.Join(staticDir, "index.html"))
	}
}
