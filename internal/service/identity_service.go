package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"comerse-go/internal/model"
	"comerse-go/internal/repository"
	"comerse-go/pkg/log"
	"comerse-go/pkg/token"

	"gorm.io/gorm"
)

// Credential carries exactly one of the two accepted credential types:
// a dashboard session token or a widget API key.
type Credential struct {
	SessionToken string
	APIKey       string
}

// IdentityService resolves an inbound credential to the tenant it belongs to.
type IdentityService interface {
	Resolve(ctx context.Context, cred Credential) (*model.Tenant, error)
}

type identityService struct {
	tenantRepo repository.TenantRepository
	apiKeyRepo repository.APIKeyRepository
	jwtManager *token.JWTManager
}

// NewIdentityService creates an IdentityService.
func NewIdentityService(tenantRepo repository.TenantRepository, apiKeyRepo repository.APIKeyRepository, jwtManager *token.JWTManager) IdentityService {
	return &identityService{
		tenantRepo: tenantRepo,
		apiKeyRepo: apiKeyRepo,
		jwtManager: jwtManager,
	}
}

// HashAPIKey returns the hex SHA-256 digest under which a key is stored.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Resolve maps a credential to a tenant, failing fast before any downstream
// work when no valid credential is present.
func (s *identityService) Resolve(ctx context.Context, cred Credential) (*model.Tenant, error) {
	switch {
	case cred.APIKey != "":
		return s.resolveAPIKey(ctx, cred.APIKey)
	case cred.SessionToken != "":
		return s.resolveSession(cred.SessionToken)
	default:
		return nil, ErrUnauthenticated
	}
}

func (s *identityService) resolveAPIKey(ctx context.Context, key string) (*model.Tenant, error) {
	keyHash := HashAPIKey(key)

	apiKey, err := s.apiKeyRepo.FindByHash(keyHash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	tenant, err := s.tenantRepo.FindByID(apiKey.TenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	// last_used is best-effort and off the request path
	go func() {
		if err := s.apiKeyRepo.TouchLastUsed(keyHash); err != nil {
			log.Warnf("failed to touch api key last_used: %v", err)
		}
	}()

	return tenant, nil
}

func (s *identityService) resolveSession(tokenString string) (*model.Tenant, error) {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	tenant, err := s.tenantRepo.FindByID(claims.TenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	return tenant, nil
}
