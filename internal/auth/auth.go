// Package auth mints and verifies the HMAC-signed access tokens carried by
// HTTP requests and websocket logins.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pcahill/chartroom/internal/chat"
)

// userIDClaim is the custom claim carrying the account id.
const userIDClaim = "userId"

// UserSource resolves token subjects to live accounts, so tokens for deleted
// accounts stop working immediately.
type UserSource interface {
	GetByID(ctx context.Context, id string) (*chat.User, error)
}

// Service implements chat.TokenVerifier on top of HS256 JWTs.
type Service struct {
	secret []byte
	ttl    time.Duration
	users  UserSource
	now    func() time.Time
}

// NewService constructs a token service. ttl bounds how long minted tokens
// stay valid.
func NewService(secret string, ttl time.Duration, users UserSource) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		users:  users,
		now:    time.Now,
	}
}

// Mint issues a signed token for userID.
func (s *Service) Mint(userID string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIDClaim: userID,
		"iat":       jwt.NewNumericDate(now),
		"exp":       jwt.NewNumericDate(now.Add(s.ttl)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token's signature and expiry and resolves its user.
// Every failure mode collapses to chat.ErrInvalidToken; callers have no
// business distinguishing a forged token from an expired one.
func (s *Service) Verify(ctx context.Context, tokenString string) (*chat.User, error) {
	token, err := jwt.Parse(tokenString,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil || !token.Valid {
		return nil, chat.ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, chat.ErrInvalidToken
	}
	userID, ok := claims[userIDClaim].(string)
	if !ok || userID == "" {
		return nil, chat.ErrInvalidToken
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, chat.ErrInvalidToken
	}
	return user, nil
}
