package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"comerse-go/internal/model"
	"comerse-go/internal/repository"
	"comerse-go/pkg/log"
	"comerse-go/pkg/token"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrEmailTaken reports a registration against an existing account email.
var ErrEmailTaken = errors.New("email already registered")

// RegisterRequest is the signup payload.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	Company     string `json:"company" binding:"required"`
	Industry    string `json:"industry"`
	ToneOfVoice string `json:"toneOfVoice"`
}

// TokenPair is an access/refresh token pair issued on login.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AccountService manages merchant accounts, sessions, and widget API keys.
type AccountService interface {
	Register(req *RegisterRequest) (*model.Tenant, error)
	Login(email, password string) (*model.Tenant, *TokenPair, error)
	// Refresh exchanges a valid refresh token for a new token pair.
	Refresh(refreshToken string) (*TokenPair, error)
	GetProfile(tenantID uint) (*model.Tenant, error)
	UpdateProfile(tenantID uint, company, industry, tone string) (*model.Tenant, error)
	// CreateAPIKey mints a widget key. The plaintext is returned exactly
	// once; only its hash is stored.
	CreateAPIKey(tenantID uint, name string) (string, *model.APIKey, error)
	ListAPIKeys(tenantID uint) ([]model.APIKey, error)
}

type accountService struct {
	tenantRepo repository.TenantRepository
	apiKeyRepo repository.APIKeyRepository
	jwtManager *token.JWTManager
}

// NewAccountService creates an AccountService.
func NewAccountService(tenantRepo repository.TenantRepository, apiKeyRepo repository.APIKeyRepository, jwtManager *token.JWTManager) AccountService {
	return &accountService{
		tenantRepo: tenantRepo,
		apiKeyRepo: apiKeyRepo,
		jwtManager: jwtManager,
	}
}

func (s *accountService) Register(req *RegisterRequest) (*model.Tenant, error) {
	if _, err := s.tenantRepo.FindByEmail(req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	tone := req.ToneOfVoice
	if tone == "" {
		tone = "friendly"
	}

	tenant := &model.Tenant{
		Email:            req.Email,
		Password:         string(hashed),
		Company:          req.Company,
		Industry:         req.Industry,
		ToneOfVoice:      tone,
		Namespace:        newNamespace(req.Company),
		SubscriptionTier: "trial",
		UsageLimit:       model.PlanLimit("trial"),
		PeriodStart:      time.Now(),
	}
	if err := s.tenantRepo.Create(tenant); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	log.Infof("tenant registered: id=%d namespace=%s", tenant.ID, tenant.Namespace)
	return tenant, nil
}

func (s *accountService) Login(email, password string) (*model.Tenant, *TokenPair, error) {
	tenant, err := s.tenantRepo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(tenant.Password), []byte(password)); err != nil {
		return nil, nil, ErrUnauthenticated
	}

	pair, err := s.issueTokens(tenant)
	if err != nil {
		return nil, nil, err
	}
	return tenant, pair, nil
}

func (s *accountService) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := s.jwtManager.VerifyToken(refreshToken)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	tenant, err := s.tenantRepo.FindByID(claims.TenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	return s.issueTokens(tenant)
}

func (s *accountService) issueTokens(tenant *model.Tenant) (*TokenPair, error) {
	access, err := s.jwtManager.GenerateToken(tenant.ID, tenant.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := s.jwtManager.GenerateRefreshToken(tenant.ID, tenant.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *accountService) GetProfile(tenantID uint) (*model.Tenant, error) {
	tenant, err := s.tenantRepo.FindByID(tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return tenant, nil
}

func (s *accountService) UpdateProfile(tenantID uint, company, industry, tone string) (*model.Tenant, error) {
	tenant, err := s.GetProfile(tenantID)
	if err != nil {
		return nil, err
	}
	if company != "" {
		tenant.Company = company
	}
	if industry != "" {
		tenant.Industry = industry
	}
	if tone != "" {
		tenant.ToneOfVoice = tone
	}
	if err := s.tenantRepo.Update(tenant); err != nil {
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}
	return tenant, nil
}

func (s *accountService) CreateAPIKey(tenantID uint, name string) (string, *model.APIKey, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("failed to generate api key: %w", err)
	}
	plaintext := "ck_live_" + hex.EncodeToString(raw)

	if name == "" {
		name = "default"
	}
	key := &model.APIKey{
		TenantID: tenantID,
		KeyHash:  HashAPIKey(plaintext),
		Name:     name,
	}
	if err := s.apiKeyRepo.Create(key); err != nil {
		return "", nil, fmt.Errorf("failed to store api key: %w", err)
	}
	return plaintext, key, nil
}

func (s *accountService) ListAPIKeys(tenantID uint) ([]model.APIKey, error) {
	return s.apiKeyRepo.ListByTenant(tenantID)
}

var namespaceSanitizer = regexp.MustCompile(`[^a-z0-9-]+`)

// newNamespace derives a unique, index-name-safe namespace from the company
// name plus a random suffix.
func newNamespace(company string) string {
	base := strings.ToLower(strings.TrimSpace(company))
	base = namespaceSanitizer.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if len(base) > 24 {
		base = base[:24]
	}
	if base == "" {
		base = "tenant"
	}

	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// extremely unlikely; fall back to a time-derived suffix
		return fmt.Sprintf("%s-%d", base, time.Now().UnixNano()%100000000)
	}
	return fmt.Sprintf("%s-%s", base, hex.EncodeToString(suffix))
}
