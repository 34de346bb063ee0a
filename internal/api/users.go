package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"chathistory/internal/account"
	"chathistory/internal/auth"
)

// formMessages holds the wording shown on the signup and login forms.
var formMessages = map[error]string{
	account.ErrMissingFields:      "All fields are required",
	account.ErrPasswordMismatch:   "Passwords do not match",
	account.ErrEmailExists:        "Email already exists",
	account.ErrOwnerDetails:       "Truck name and cuisine are required for owners",
	account.ErrInvalidCuisine:     "Unknown cuisine",
	account.ErrInvalidRole:        "Unknown role",
	account.ErrInvalidCredentials: "Invalid email or password",
}

// formMessage returns the form wording for a known account error.
func formMessage(err error) (string, bool) {
	for target, msg := range formMessages {
		if errors.Is(err, target) {
			return msg, true
		}
	}
	return "", false
}

func (h *Handler) signup(c *gin.Context) {
	var req account.SignupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Signup(c.Request.Context(), req)
	if err != nil {
		msg, known := formMessage(err)
		switch {
		case errors.Is(err, account.ErrEmailExists):
			c.JSON(http.StatusConflict, gin.H{"error": msg})
		case known:
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		default:
			log.Error().Err(err).Msg("signup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "redirect": "/login"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := h.accounts.Login(c.Request.Context(), auth.ClientIDFromContext(c), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			msg, _ := formMessage(err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		log.Error().Err(err).Msg("login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), res.User.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"user":       res.User,
		"redirect":   res.Redirect,
		"auth_token": authToken,
	})
}

func (h *Handler) currentUser(c *gin.Context) {
	user, err := h.accounts.CurrentUser(c.Request.Context(), auth.ClientIDFromContext(c))
	if err != nil {
		if errors.Is(err, account.ErrNotLoggedIn) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.accounts.Logout(c.Request.Context(), auth.ClientIDFromContext(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if token := h.auth.RequestToken(c); token != "" {
		_ = h.auth.RevokeToken(c.Request.Context(), token)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
