package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleOwner = "owner"

var ErrWrongPoll = errors.New("token was issued for another poll")

// Claims identify the creator of a single poll. Voters never get a token.
type Claims struct {
	PollID string `json:"poll_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	issuer string
}

func NewManager(secret, issuer string) *Manager {
	if issuer == "" {
		issuer = "livepoll"
	}
	return &Manager{secret: []byte(secret), issuer: issuer}
}

// GenerateOwner signs a token that lets its holder manage pollID until ttl
// elapses. The poll's own expiry is the natural ttl.
func (m *Manager) GenerateOwner(pollID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		PollID: pollID,
		Role:   RoleOwner,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   pollID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

// AuthorizeOwner parses tokenStr and checks it was issued for pollID.
func (m *Manager) AuthorizeOwner(tokenStr, pollID string) error {
	claims, err := m.Parse(tokenStr)
	if err != nil {
		return err
	}
	if claims.Role != RoleOwner || claims.PollID != pollID {
		return ErrWrongPoll
	}
	return nil
}
