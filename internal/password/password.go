package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters used for newly produced digests. Verification reads
// the parameters back out of the digest, so these can change between
// releases without invalidating stored hashes.
const (
	defaultMemoryKiB   = 64 * 1024
	defaultIterations  = 1
	defaultParallelism = 4
	defaultSaltLength  = 16
	defaultKeyLength   = 32
)

var (
	// ErrMalformedDigest indicates a stored digest could not be decoded.
	ErrMalformedDigest = errors.New("password: malformed digest")
	// ErrUnsupportedDigest indicates a digest uses an algorithm or version
	// this build cannot verify.
	ErrUnsupportedDigest = errors.New("password: unsupported digest")
)

// Hash derives an Argon2id digest for the plaintext. Each call draws a fresh
// random salt, so hashing the same plaintext twice yields distinct digests.
// The result is PHC formatted and self-describing:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt-b64>$<key-b64>
func Hash(plaintext string) (string, error) {
	salt := make([]byte, defaultSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, defaultIterations, defaultMemoryKiB, defaultParallelism, defaultKeyLength)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		defaultMemoryKiB,
		defaultIterations,
		defaultParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// Verify reports whether the plaintext matches the encoded digest. The
// comparison is constant time in the derived key. A digest that cannot be
// decoded returns an error rather than false so callers can distinguish
// corrupt storage from a wrong password.
func Verify(plaintext, encoded string) (bool, error) {
	params, salt, expectedKey, err := decodeDigest(encoded)
	if err != nil {
		return false, err
	}

	derivedKey := argon2.IDKey([]byte(plaintext), salt, params.iterations, params.memoryKiB, params.parallelism, uint32(len(expectedKey)))
	return subtle.ConstantTimeCompare(derivedKey, expectedKey) == 1, nil
}

type digestParams struct {
	memoryKiB   uint32
	iterations  uint32
	parallelism uint8
}

func decodeDigest(encoded string) (digestParams, []byte, []byte, error) {
	segments := strings.Split(encoded, "$")
	if len(segments) != 6 || segments[0] != "" {
		return digestParams{}, nil, nil, ErrMalformedDigest
	}
	if segments[1] != "argon2id" {
		return digestParams{}, nil, nil, fmt.Errorf("%w: algorithm %q", ErrUnsupportedDigest, segments[1])
	}

	var version int
	if _, err := fmt.Sscanf(segments[2], "v=%d", &version); err != nil {
		return digestParams{}, nil, nil, ErrMalformedDigest
	}
	if version != argon2.Version {
		return digestParams{}, nil, nil, fmt.Errorf("%w: version %d", ErrUnsupportedDigest, version)
	}

	var params digestParams
	if _, err := fmt.Sscanf(segments[3], "m=%d,t=%d,p=%d", &params.memoryKiB, &params.iterations, &params.parallelism); err != nil {
		return digestParams{}, nil, nil, ErrMalformedDigest
	}
	if params.memoryKiB == 0 || params.iterations == 0 || params.parallelism == 0 {
		return digestParams{}, nil, nil, ErrMalformedDigest
	}

	salt, err := base64.RawStdEncoding.DecodeString(segments[4])
	if err != nil {
		return digestParams{}, nil, nil, ErrMalformedDigest
	}
	key, err := base64.RawStdEncoding.DecodeString(segments[5])
	if err != nil || len(key) == 0 {
		return digestParams{}, nil, nil, ErrMalformedDigest
	}

	return params, salt, key, nil
}
