package jwt

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tm2pc/txmanager/pkg/config"
)

// Manager issues and validates the bearer tokens the governance HTTP
// surface gates on. HS256 covers local/dev use with a shared secret;
// RS256 is available for deployments that want asymmetric verification
// keys distributed to other services.
type Manager struct {
	privateKey    *rsa.PrivateKey
	publicKey     *rsa.PublicKey
	secretKey     []byte
	issuer        string
	expiry        time.Duration
	refreshExpiry time.Duration
	algorithm     string
}

// Claims identifies the operator (or service principal) behind a request
// and the roles the Casbin enforcer checks against.
type Claims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"userId"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type RefreshClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	m := &Manager{
		issuer:        cfg.JWT.Issuer,
		expiry:        time.Duration(cfg.JWT.ExpiryHours) * time.Hour,
		refreshExpiry: time.Duration(cfg.JWT.RefreshDays) * 24 * time.Hour,
		algorithm:     cfg.JWT.Algorithm,
	}

	if cfg.JWT.Algorithm == "RS256" {
		if cfg.PrivateKeyPath != "" {
			privateKey, err := loadPrivateKey(cfg.PrivateKeyPath)
			if err != nil {
				return nil, fmt.Errorf("load private key: %w", err)
			}
			m.privateKey = privateKey
		}
		if cfg.PublicKeyPath != "" {
			publicKey, err := loadPublicKey(cfg.PublicKeyPath)
			if err != nil {
				return nil, fmt.Errorf("load public key: %w", err)
			}
			m.publicKey = publicKey
		}
		if m.privateKey == nil || m.publicKey == nil {
			return nil, errors.New("jwt: RS256 requires both private and public keys")
		}
	} else {
		if cfg.JWT.SecretKey == "" {
			return nil, errors.New("jwt: HS256 requires a secret key")
		}
		m.secretKey = []byte(cfg.JWT.SecretKey)
	}

	return m, nil
}

func (m *Manager) GenerateToken(userID, email string, roles, permissions []string) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.expiry)),
			ID:        uuid.New().String(),
		},
		UserID:      userID,
		Email:       email,
		Roles:       roles,
		Permissions: permissions,
	}
	return m.sign(claims)
}

func (m *Manager) GenerateRefreshToken(userID string) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.refreshExpiry)),
			ID:        uuid.New().String(),
		},
		UserID: userID,
	}
	return m.sign(claims)
}

func (m *Manager) sign(claims jwt.Claims) (string, error) {
	if m.algorithm == "RS256" {
		return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.privateKey)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}

func (m *Manager) keyFunc(token *jwt.Token) (interface{}, error) {
	if m.algorithm == "RS256" {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("jwt: unexpected signing method %v", token.Header["alg"])
		}
		return m.publicKey, nil
	}
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("jwt: unexpected signing method %v", token.Header["alg"])
	}
	return m.secretKey, nil
}

func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, m.keyFunc)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("jwt: invalid token")
	}
	return claims, nil
}

func (m *Manager) ValidateRefreshToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, m.keyFunc)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid {
		return "", errors.New("jwt: invalid refresh token")
	}
	return claims.UserID, nil
}

// RefreshToken mints a fresh access token from the claims of an existing
// one, even if that token has already expired.
func (m *Manager) RefreshToken(oldToken string) (string, error) {
	token, _ := jwt.ParseWithClaims(oldToken, &Claims{}, m.keyFunc)
	if token == nil {
		return "", errors.New("jwt: invalid token format")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return "", errors.New("jwt: invalid token claims")
	}
	return m.GenerateToken(claims.UserID, claims.Email, claims.Roles, claims.Permissions)
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("jwt: failed to decode PEM block")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("jwt: failed to decode PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("jwt: not an RSA public key")
	}
	return key, nil
}
