package handler

import (
	"errors"
	"net/http"

	"comerse-go/internal/model"
	"comerse-go/internal/service"
	"comerse-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles account registration, sessions, and widget API keys.
type AuthHandler struct {
	accounts service.AccountService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(accounts service.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	tenant, err := h.accounts.Register(&req)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		log.Errorf("Register: failed to create tenant, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "registered successfully",
		"data":    tenant,
	})
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	tenant, pair, err := h.accounts.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		log.Errorf("Login: failed, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "login successful",
		"data": gin.H{
			"tenant":       tenant,
			"token":        pair.AccessToken,
			"refreshToken": pair.RefreshToken,
		},
	})
}

// RefreshTokenRequest is the refresh payload.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshToken handles POST /api/v1/auth/refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload: refreshToken is required"})
		return
	}

	pair, err := h.accounts.Refresh(req.RefreshToken)
	if err != nil {
		log.Warnf("RefreshToken: failed to refresh token, error: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "token refreshed successfully",
		"data": gin.H{
			"token":        pair.AccessToken,
			"refreshToken": pair.RefreshToken,
		},
	})
}

// Profile handles GET /api/v1/auth/profile (session auth).
func (h *AuthHandler) Profile(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    tenant,
	})
}

// UpdateProfileRequest is the profile-update payload.
type UpdateProfileRequest struct {
	Company     string `json:"company"`
	Industry    string `json:"industry"`
	ToneOfVoice string `json:"toneOfVoice"`
}

// UpdateProfile handles PUT /api/v1/auth/profile (session auth).
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	updated, err := h.accounts.UpdateProfile(tenant.ID, req.Company, req.Industry, req.ToneOfVoice)
	if err != nil {
		log.Errorf("UpdateProfile: failed, tenant=%d error: %v", tenant.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "profile updated",
		"data":    updated,
	})
}

// CreateAPIKeyRequest names a new widget key.
type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}

// CreateAPIKey handles POST /api/v1/auth/apikeys (session auth). The
// plaintext key appears only in this response.
func (h *AuthHandler) CreateAPIKey(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	var req CreateAPIKeyRequest
	_ = c.ShouldBindJSON(&req)

	plaintext, key, err := h.accounts.CreateAPIKey(tenant.ID, req.Name)
	if err != nil {
		log.Errorf("CreateAPIKey: failed, tenant=%d error: %v", tenant.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "api key creation failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "api key created",
		"data": gin.H{
			"apiKey": plaintext,
			"name":   key.Name,
		},
	})
}

// ListAPIKeys handles GET /api/v1/auth/apikeys (session auth). Only hashes
// and metadata come back; plaintexts are unrecoverable.
func (h *AuthHandler) ListAPIKeys(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	keys, err := h.accounts.ListAPIKeys(tenant.ID)
	if err != nil {
		log.Errorf("ListAPIKeys: failed, tenant=%d error: %v", tenant.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list api keys"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    keys,
	})
}

// mustTenant pulls the tenant stored by the session middleware; writes the
// 401 itself when absent.
func mustTenant(c *gin.Context) *model.Tenant {
	v, ok := c.Get("tenant")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return nil
	}
	tenant, ok := v.(*model.Tenant)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return nil
	}
	return tenant
}
