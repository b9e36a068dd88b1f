// Package auth - jwt.go issues and verifies the HMAC-signed session tokens.
// The signing secret comes from the environment and is latched once at startup.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const jwtIssuer = "medtrack-inventory"

var (
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// ErrInvalidToken is returned when a presented token fails signature or claims validation.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the token payload for an authenticated session.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func isDevMode() bool {
	dev := os.Getenv("DEV_MODE")
	return dev == "true" || dev == "1" || os.Getenv("GIN_MODE") == "debug"
}

// ValidateJWTSecret resolves the signing secret from MED_JWT_SECRET and latches
// it for the process lifetime. Without the variable, production startup fails;
// dev mode gets a throwaway random secret, so sessions die with the process.
// Call once at startup.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv("MED_JWT_SECRET")

		switch {
		case secret != "":
			if len(secret) < 32 {
				log.Printf("WARNING: MED_JWT_SECRET is shorter than the recommended 32 characters")
			}
			jwtSecret = secret
		case isDevMode():
			buf := make([]byte, 32)
			if _, err := rand.Read(buf); err != nil {
				jwtSecretErr = fmt.Errorf("auth: cannot generate dev secret: %w", err)
				return
			}
			jwtSecret = hex.EncodeToString(buf)
			log.Printf("WARNING: MED_JWT_SECRET not set, using a generated dev secret; sessions will not survive a restart")
		default:
			jwtSecretErr = errors.New("MED_JWT_SECRET is required outside dev mode; generate one with: openssl rand -hex 32")
		}
	})

	return jwtSecretErr
}

// GetJWTSecret returns the latched signing secret, panicking if secret
// resolution failed. ValidateJWTSecret at startup is what surfaces the error
// cleanly first.
func GetJWTSecret() string {
	if jwtSecret == "" {
		if err := ValidateJWTSecret(); err != nil {
			panic(err)
		}
	}
	return jwtSecret
}

// GenerateJWT issues a signed session token. A zero expiresIn means one
// shift (8 hours).
func GenerateJWT(userID, email, role string, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = 8 * time.Hour
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    jwtIssuer,
			Subject:   userID,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(GetJWTSecret()))
}

// ValidateJWT parses and verifies a token string, returning its claims. Only
// HMAC-signed tokens are accepted.
func ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(GetJWTSecret()), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
