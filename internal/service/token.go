package service

import (
	"github.com/forgo/hiretrack/api/internal/model"
	"github.com/forgo/hiretrack/api/pkg/jwt"
)

// TokenService issues and validates access tokens
type TokenService struct {
	jwtService *jwt.Service
}

// TokenServiceConfig holds configuration for the token service
type TokenServiceConfig struct {
	JWTService *jwt.Service
}

// NewTokenService creates a new token service
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	return &TokenService{jwtService: cfg.JWTService}
}

// AccessToken is the login/register response body
type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// Issue signs an access token carrying the user's id, email and role
func (s *TokenService) Issue(user *model.User) (*AccessToken, error) {
	token, err := s.jwtService.Sign(jwt.Claims{
		Subject: user.ID,
		UserID:  user.ID,
		Email:   user.Email,
		Role:    string(user.Role),
	})
	if err != nil {
		return nil, err
	}

	return &AccessToken{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.jwtService.GetExpiration().Seconds()),
	}, nil
}

// Validate checks a bearer token and returns its claims
func (s *TokenService) Validate(token string) (*model.TokenClaims, error) {
	claims, err := s.jwtService.Validate(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &model.TokenClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   model.UserRole(claims.Role),
	}, nil
}
