package utils

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/igotyouboo-api/internal/model"
)

func newTestCodec(t *testing.T, signingKey string) *TokenCodec {
	t.Helper()
	tc, err := NewTokenCodec(signingKey, newTestCipher(t, "enc-key", "enc-iv", "enc-salt"), DefaultTokenTTL)
	require.NoError(t, err)
	return tc
}

func sampleClaim() model.IdentityClaim {
	return model.IdentityClaim{
		UserID:       "65a1f0c2e4b0a1b2c3d4e5f6",
		Username:     "alice",
		Email:        "a@x.com",
		PasswordHash: "$2a$12$0123456789012345678901uABCDEFGHIJKLMNOPQRSTUVWXYZabcd",
		RoleID:       "65a1f0c2e4b0a1b2c3d4e5f0",
	}
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	tc := newTestCodec(t, "jwt-secret")

	claims := []model.IdentityClaim{
		sampleClaim(),
		{UserID: "1", Username: "bob", RoleID: "2"},
		{UserID: "42", Username: "ünïcödé", Email: "u@x.com", PasswordHash: "h", RoleID: "1"},
	}
	for _, c := range claims {
		tok, err := tc.Issue(c)
		require.NoError(t, err)
		got, err := tc.ExtractClaim(tok.Token)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestTokenCodec_PayloadIsOpaque(t *testing.T) {
	tc := newTestCodec(t, "jwt-secret")
	tok, err := tc.Issue(sampleClaim())
	require.NoError(t, err)

	parts := strings.Split(tok.Token, ".")
	require.Len(t, parts, 3)
	body, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	assert.NotContains(t, string(body), "alice")
	assert.NotContains(t, string(body), "a@x.com")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Contains(t, decoded, "data")
	assert.Contains(t, decoded, "exp")
}

func TestTokenCodec_TamperDetection(t *testing.T) {
	tc := newTestCodec(t, "jwt-secret")
	tok, err := tc.Issue(sampleClaim())
	require.NoError(t, err)

	for i := 0; i < len(tok.Token); i++ {
		b := []byte(tok.Token)
		b[i] ^= 0x01
		_, err := tc.Verify(string(b))
		require.ErrorIs(t, err, ErrInvalidToken, "flipped byte %d went undetected", i)
	}
}

func TestTokenCodec_WrongSigningKey(t *testing.T) {
	issuer := newTestCodec(t, "right-secret")
	verifier := newTestCodec(t, "wrong-secret")

	tok, err := issuer.Issue(sampleClaim())
	require.NoError(t, err)

	_, err = verifier.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenCodec_Expiry(t *testing.T) {
	tc := newTestCodec(t, "jwt-secret")
	issuedAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tc.now = func() time.Time { return issuedAt }

	tok, err := tc.Issue(sampleClaim())
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(DefaultTokenTTL), tok.Exp)

	tc.now = func() time.Time { return tok.Exp.Add(-time.Second) }
	vt, err := tc.Verify(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, tok.Exp, vt.ExpiresAt.UTC())
	assert.Equal(t, issuedAt, vt.IssuedAt.UTC())

	tc.now = func() time.Time { return tok.Exp.Add(time.Second) }
	_, err = tc.Verify(tok.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = tc.ExtractClaim(tok.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenCodec_RejectsOtherAlgorithms(t *testing.T) {
	tc := newTestCodec(t, "jwt-secret")

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, tokenClaims{
		Data: "00",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tc.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenCodec_RequiresExpiry(t *testing.T) {
	tc := newTestCodec(t, "jwt-secret")

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{Data: "00"})
	raw, err := noExp.SignedString([]byte("jwt-secret"))
	require.NoError(t, err)

	_, err = tc.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenCodec_MalformedPayload(t *testing.T) {
	tc := newTestCodec(t, "jwt-secret")

	sign := func(data string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
			Data: data,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		raw, err := tok.SignedString([]byte("jwt-secret"))
		require.NoError(t, err)
		return raw
	}

	// Signed correctly but not our ciphertext.
	raw := sign("not-hex")
	_, err := tc.Verify(raw)
	require.NoError(t, err)
	_, err = tc.ExtractClaim(raw)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	// Valid ciphertext that is not a claim.
	enc, err := tc.cipher.Encrypt("[1,2,3]")
	require.NoError(t, err)
	_, err = tc.ExtractClaim(sign(enc))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	// Encrypted under different secrets.
	other := newTestCipher(t, "other-key", "other-iv", "enc-salt")
	foreign, err := other.Encrypt(`{"_id":"1","username":"mallory"}`)
	require.NoError(t, err)
	_, err = tc.ExtractClaim(sign(foreign))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestNewTokenCodec_Validation(t *testing.T) {
	c := newTestCipher(t, "enc-key", "enc-iv", "enc-salt")

	_, err := NewTokenCodec("", c, time.Hour)
	assert.Error(t, err)
	_, err = NewTokenCodec("k", nil, time.Hour)
	assert.Error(t, err)

	tc, err := NewTokenCodec("k", c, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, tc.TTL())
}
