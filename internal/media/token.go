package media

import (
	"errors"
	"time"

	"call-platform/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Credential is what a client needs to join a room on the media relay.
type Credential struct {
	Token    string `json:"token"`
	Endpoint string `json:"endpoint"`
}

// Claims bind a media token to one user in one room. The relay verifies
// these; the API never accepts a media token back.
type Claims struct {
	jwt.RegisteredClaims

	UserID      string `json:"user_id"`
	RoomID      string `json:"room_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// Issuer mints media-session credentials.
type Issuer struct {
	secret   []byte
	endpoint string
	ttl      time.Duration
	clock    func() time.Time
}

func NewIssuer(cfg config.MediaConfig) (*Issuer, error) {
	if cfg.TokenSecret == "" {
		return nil, errors.New("MEDIA_TOKEN_SECRET is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("MEDIA_ENDPOINT is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{
		secret:   []byte(cfg.TokenSecret),
		endpoint: cfg.Endpoint,
		ttl:      ttl,
		clock:    time.Now,
	}, nil
}

func (i *Issuer) Issue(userID, roomID, displayName string) (Credential, error) {
	if userID == "" || roomID == "" {
		return Credential{}, errors.New("media: user_id and room_id are required")
	}

	now := i.clock().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
			Subject:   userID,
		},
		UserID:      userID,
		RoomID:      roomID,
		DisplayName: displayName,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.secret)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Token: signed, Endpoint: i.endpoint}, nil
}

// Verify is used by tests and by relay-side tooling; the API itself only issues.
func (i *Issuer) Verify(tokenString string, now time.Time) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if claims.UserID == "" || claims.RoomID == "" {
		return Claims{}, errors.New("media: user_id or room_id missing")
	}
	return claims, nil
}
