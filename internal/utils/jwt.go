package utils // package utils provides the token, cipher and password primitives used by auth

import (
	"encoding/json" // claim serialization before encryption
	"errors"        // classification of jwt parse errors
	"fmt"
	"time" // expiry computation

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and verifying signed tokens

	"github.com/iliyamo/igotyouboo-api/internal/model"
)

// DefaultTokenTTL is the lifetime of an issued token and of the cookie that
// carries it.
const DefaultTokenTTL = 14 * 24 * time.Hour

// AccessToken represents a signed token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// tokenClaims is the JWT body.  Data holds the encrypted identity claim so
// holders of the signing key alone cannot read it.
type tokenClaims struct {
	Data string `json:"data"`
	jwt.RegisteredClaims
}

// VerifiedToken is a token whose signature and expiry have been checked.
// Payload is still ciphertext.
type VerifiedToken struct {
	Payload   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec issues and parses access tokens: an HS256 envelope around an
// AES encrypted identity claim.
type TokenCodec struct {
	key    []byte
	cipher *Cipher
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec builds a codec signing with signingKey and encrypting with c.
// A non-positive ttl selects DefaultTokenTTL.
func NewTokenCodec(signingKey string, c *Cipher, ttl time.Duration) (*TokenCodec, error) {
	if signingKey == "" {
		return nil, errors.New("token codec: signing key is required")
	}
	if c == nil {
		return nil, errors.New("token codec: cipher is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{key: []byte(signingKey), cipher: c, ttl: ttl, now: time.Now}, nil
}

// TTL reports the lifetime of issued tokens.
func (tc *TokenCodec) TTL() time.Duration { return tc.ttl }

// Issue serializes claim, encrypts it and signs the result.
func (tc *TokenCodec) Issue(claim model.IdentityClaim) (AccessToken, error) {
	raw, err := json.Marshal(claim)
	if err != nil {
		return AccessToken{}, fmt.Errorf("marshal claim: %w", err)
	}
	payload, err := tc.cipher.Encrypt(string(raw))
	if err != nil {
		return AccessToken{}, fmt.Errorf("encrypt claim: %w", err)
	}

	now := tc.now().UTC()
	exp := now.Add(tc.ttl)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Data: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := t.SignedString(tc.key)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign token: %w", err)
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// Verify checks the signature and expiry of raw without decrypting it.
func (tc *TokenCodec) Verify(raw string) (*VerifiedToken, error) {
	claims := &tokenClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return tc.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(tc.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.Data == "" {
		return nil, ErrInvalidToken
	}

	vt := &VerifiedToken{Payload: claims.Data}
	if claims.IssuedAt != nil {
		vt.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		vt.ExpiresAt = claims.ExpiresAt.Time
	}
	return vt, nil
}

// ExtractClaim verifies raw, then decrypts and decodes its payload.
func (tc *TokenCodec) ExtractClaim(raw string) (model.IdentityClaim, error) {
	vt, err := tc.Verify(raw)
	if err != nil {
		return model.IdentityClaim{}, err
	}
	plain, err := tc.cipher.Decrypt(vt.Payload)
	if err != nil {
		return model.IdentityClaim{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var claim model.IdentityClaim
	if err := json.Unmarshal([]byte(plain), &claim); err != nil {
		return model.IdentityClaim{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if claim.UserID == "" {
		return model.IdentityClaim{}, fmt.Errorf("%w: claim has no user id", ErrMalformedPayload)
	}
	return claim, nil
}
