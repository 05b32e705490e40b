package utils

import "errors"

// ErrDecryption is returned when ciphertext cannot be decrypted with the
// configured key and IV: bad encoding, bad length, bad padding, or output
// that is not text.
var ErrDecryption = errors.New("decryption failed")

// ErrInvalidToken covers malformed tokens, unexpected algorithms and
// signature mismatches.
var ErrInvalidToken = errors.New("invalid token")

// ErrExpiredToken is returned when a correctly signed token is past its exp.
var ErrExpiredToken = errors.New("token expired")

// ErrMalformedPayload is returned when a verified token's payload does not
// decrypt or does not decode into an identity claim.
var ErrMalformedPayload = errors.New("malformed token payload")
