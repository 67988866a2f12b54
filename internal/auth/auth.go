// Package auth implements operator authentication for the Control API:
// bcrypt password hashing, TOTP second factor, and JWT session tokens with
// a logout blacklist, adapted from the teacher's auth package. Unlike the
// teacher, which keeps the blacklist in a package-local map private to one
// process, this one keeps revoked tokens in the internal/cache.Cache
// installed by SetCache — the same ephemeral-state store internal/ratelimit
// and internal/breaker persist their state to — so a revocation is visible
// to every process sharing that cache. The cache.InMemory instance that
// cmd/controlapi and cmd/mastertrade install is process-local: with it a
// revocation is seen only by that process and is lost on restart.
package auth

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"mastertrade/internal/cache"
)

// JWTSecret signs and verifies session tokens; set once at process startup
// from configuration.
var JWTSecret []byte

// OTPIssuer names the TOTP account in authenticator apps.
const OTPIssuer = "MasterTrade"

const jwtTTL = 24 * time.Hour

const blacklistKeyPrefix = "auth:blacklist:"

// blacklistCache backs BlacklistToken/IsTokenBlacklisted. SetCache installs
// the process's shared cache at startup; until then an unexported in-memory
// fallback keeps package tests self-contained without requiring a wired
// cache.
var blacklistCache cache.Cache = cache.NewInMemory()

// SetCache points the logout blacklist at the process's shared cache
// instance; revocations are shared and retained exactly as far as that
// cache shares and retains its entries, as for every other ephemeral-state
// package in this repo.
func SetCache(c cache.Cache) {
	if c != nil {
		blacklistCache = c
	}
}

func SetJWTSecret(secret string) { JWTSecret = []byte(secret) }

// BlacklistToken marks a session token invalid until its natural
// expiration, for logout and forced-revocation flows.
func BlacklistToken(token string, exp time.Time) {
	ttl := time.Until(exp)
	if ttl <= 0 {
		return
	}
	blacklistCache.SetTTL(blacklistKeyPrefix+token, true, ttl)
}

// IsTokenBlacklisted reports whether token was explicitly revoked and
// hasn't yet reached its natural expiry. The cache's own TTL expiry handles
// eviction, so there's no separate sweep to run here.
func IsTokenBlacklisted(token string) bool {
	_, ok := blacklistCache.Get(blacklistKeyPrefix + token)
	return ok
}

// Claims is the JWT payload for an authenticated operator session.
type Claims struct {
	OperatorID string `json:"operator_id"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateOTPSecret mints a new TOTP secret for enrolling an operator.
func GenerateOTPSecret(accountName string) (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: OTPIssuer, AccountName: accountName})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

func VerifyOTP(secret, code string) bool {
	return totp.Validate(code, secret)
}

// GenerateJWT issues a session token for an operator.
func GenerateJWT(operatorID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		OperatorID: operatorID,
		Email:      email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "mastertrade",
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JWTSecret)
}

// ValidateJWT parses and verifies a session token.
func ValidateJWT(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func OTPQRCodeURL(secret, email string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s", OTPIssuer, email, secret, OTPIssuer)
}
