package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ava/cmd/identity/ids"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenPair is a freshly minted access/refresh pair. RefreshExp is persisted
// with the session row and is the source of truth for refresh expiry.
type TokenPair struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// AccessClaims is the identity envelope carried by an access token.
type AccessClaims struct {
	UserID    ids.UserID
	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
}

// TokenGenerator issues and checks signed tokens.
type TokenGenerator interface {
	Generate(userID ids.UserID, now time.Time) (TokenPair, error)

	// VerifyAccess fully validates an access token at now.
	VerifyAccess(token string, now time.Time) (AccessClaims, error)

	// RefreshSubject checks signature, issuer and token type of a refresh token
	// and returns its subject. Expiry is left to the session row.
	RefreshSubject(token string) (ids.UserID, error)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// JWTGenerator implements TokenGenerator with HS256.
type JWTGenerator struct {
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	secret     []byte
}

// NewJWTGenerator builds a generator from a validated Config.
func NewJWTGenerator(cfg Config) (*JWTGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &JWTGenerator{
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		leeway:     cfg.ClockSkew,
		secret:     append([]byte(nil), cfg.JWTSecret...),
	}, nil
}

func (g *JWTGenerator) Generate(userID ids.UserID, now time.Time) (TokenPair, error) {
	if userID.IsZero() {
		return TokenPair{}, ErrInvalidToken
	}

	accessExp := now.Add(g.accessTTL)
	access, err := g.sign(tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    g.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
		Type: tokenTypeAccess,
	})
	if err != nil {
		return TokenPair{}, err
	}

	// jti keeps two refresh tokens minted within the same second distinct.
	refreshExp := now.Add(g.refreshTTL)
	refresh, err := g.sign(tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			Issuer:    g.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
		},
		Type: tokenTypeRefresh,
	})
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   refreshExp,
	}, nil
}

func (g *JWTGenerator) VerifyAccess(token string, now time.Time) (AccessClaims, error) {
	c, err := g.parse(token,
		jwt.WithIssuer(g.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(g.leeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return AccessClaims{}, err
	}
	if c.Type != tokenTypeAccess {
		return AccessClaims{}, ErrInvalidToken
	}

	out := AccessClaims{UserID: ids.UserID(c.Subject), Issuer: c.Issuer}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}

func (g *JWTGenerator) RefreshSubject(token string) (ids.UserID, error) {
	c, err := g.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return "", err
	}
	// Claims validation is off, so the issuer is checked by hand.
	if c.Issuer != g.issuer || c.Type != tokenTypeRefresh {
		return "", ErrInvalidToken
	}
	return ids.UserID(c.Subject), nil
}

func (g *JWTGenerator) sign(c tokenClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(g.secret)
}

func (g *JWTGenerator) parse(token string, opts ...jwt.ParserOption) (*tokenClaims, error) {
	if token == "" || len(token) > 4096 {
		return nil, ErrInvalidToken
	}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	var c tokenClaims
	t, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return g.secret, nil
	}, opts...)
	if err != nil || !t.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := ids.ParseUserID(c.Subject); err != nil {
		return nil, ErrInvalidToken
	}
	return &c, nil
}

// IsInvalidToken reports whether err is ErrInvalidToken.
func IsInvalidToken(err error) bool { return errors.Is(err, ErrInvalidToken) }

var _ TokenGenerator = (*JWTGenerator)(nil)
