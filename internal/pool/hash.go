package pool

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// scramIterations matches the PostgreSQL default for scram-sha-256.
const scramIterations = 4096

// MD5Hash returns the legacy PostgreSQL md5 credential: "md5" followed by
// the hex md5 of secret concatenated with the role name.
func MD5Hash(role, secret string) string {
	sum := md5.Sum([]byte(secret + role))
	return fmt.Sprintf("md5%x", sum)
}

// SCRAMVerifier builds a SCRAM-SHA-256 verifier in the format PostgreSQL
// and PgBouncer store: SCRAM-SHA-256$<iter>:<salt>$<storedkey>:<serverkey>.
func SCRAMVerifier(secret string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate scram salt: %w", err)
	}
	return scramVerifierWithSalt(secret, salt, scramIterations), nil
}

func scramVerifierWithSalt(secret string, salt []byte, iterations int) string {
	salted := pbkdf2.Key([]byte(secret), salt, iterations, sha256.Size, sha256.New)
	storedKey := sha256.Sum256(hmacSHA256(salted, "Client Key"))
	serverKey := hmacSHA256(salted, "Server Key")

	b64 := base64.StdEncoding
	return fmt.Sprintf("SCRAM-SHA-256$%d:%s$%s:%s",
		iterations,
		b64.EncodeToString(salt),
		b64.EncodeToString(storedKey[:]),
		b64.EncodeToString(serverKey))
}

func hmacSHA256(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}

// HashFor returns the stored credential for the given auth type.
func HashFor(authType, role, secret string) (string, error) {
	switch authType {
	case "md5":
		return MD5Hash(role, secret), nil
	case "scram-sha-256":
		return SCRAMVerifier(secret)
	default:
		return "", fmt.Errorf("unsupported auth type %q", authType)
	}
}

// Verify reports whether stored validates the given role and secret. It
// accepts both md5 credentials and SCRAM-SHA-256 verifiers.
func Verify(role, secret, stored string) bool {
	if strings.HasPrefix(stored, "md5") {
		return subtle.ConstantTimeCompare([]byte(stored), []byte(MD5Hash(role, secret))) == 1
	}
	if strings.HasPrefix(stored, "SCRAM-SHA-256$") {
		iterations, salt, ok := parseSCRAMParams(stored)
		if !ok {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(stored), []byte(scramVerifierWithSalt(secret, salt, iterations))) == 1
	}
	return false
}

// parseSCRAMParams extracts the iteration count and salt from a stored
// SCRAM-SHA-256 verifier.
func parseSCRAMParams(stored string) (int, []byte, bool) {
	rest := strings.TrimPrefix(stored, "SCRAM-SHA-256$")
	params, _, ok := strings.Cut(rest, "$")
	if !ok {
		return 0, nil, false
	}
	iterStr, saltB64, ok := strings.Cut(params, ":")
	if !ok {
		return 0, nil, false
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations <= 0 {
		return 0, nil, false
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return 0, nil, false
	}
	return iterations, salt, true
}
