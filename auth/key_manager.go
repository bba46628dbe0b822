package auth

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// KeyConfig describes the key material used to verify (and, in development,
// mint) connection tokens.
type KeyConfig struct {
	// SigningMethod is one of HS256, RS256 or ES256
	SigningMethod string
	// Secret is the shared secret for HS256
	Secret string
	// PublicKeyFile is a PEM file holding the verification key for RS256/ES256
	PublicKeyFile string
	// PrivateKeyFile is optional; required only when this process mints tokens
	PrivateKeyFile string
}

// KeyManager manages JWT signing and verification keys
type KeyManager struct {
	config        KeyConfig
	signingKey    interface{} // []byte, *rsa.PrivateKey or *ecdsa.PrivateKey
	verifyingKey  interface{} // []byte, *rsa.PublicKey or *ecdsa.PublicKey
	signingMethod jwt.SigningMethod
}

// NewKeyManager creates a new JWT key manager
func NewKeyManager(config KeyConfig) (*KeyManager, error) {
	manager := &KeyManager{config: config}
	if err := manager.loadKeys(); err != nil {
		return nil, fmt.Errorf("failed to load JWT keys: %w", err)
	}
	return manager, nil
}

func (m *KeyManager) loadKeys() error {
	switch m.config.SigningMethod {
	case "HS256":
		return m.loadHMACKeys()
	case "RS256":
		return m.loadRSAKeys()
	case "ES256":
		return m.loadECDSAKeys()
	default:
		return fmt.Errorf("unsupported signing method: %s", m.config.SigningMethod)
	}
}

func (m *KeyManager) loadHMACKeys() error {
	if m.config.Secret == "" {
		return fmt.Errorf("hmac secret is required for HS256")
	}
	m.signingMethod = jwt.SigningMethodHS256
	secret := []byte(m.config.Secret)
	m.signingKey = secret
	m.verifyingKey = secret
	return nil
}

func (m *KeyManager) loadRSAKeys() error {
	m.signingMethod = jwt.SigningMethodRS256

	publicKeyData, err := os.ReadFile(m.config.PublicKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read RSA public key file: %w", err)
	}
	publicKey, err := parseRSAPublicKey(publicKeyData)
	if err != nil {
		return fmt.Errorf("failed to parse RSA public key: %w", err)
	}
	m.verifyingKey = publicKey

	// Private key is only needed for local token minting
	if m.config.PrivateKeyFile != "" {
		privateKeyData, err := os.ReadFile(m.config.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("failed to read RSA private key file: %w", err)
		}
		privateKey, err := parseRSAPrivateKey(privateKeyData)
		if err != nil {
			return fmt.Errorf("failed to parse RSA private key: %w", err)
		}
		m.signingKey = privateKey
	}

	return nil
}

func (m *KeyManager) loadECDSAKeys() error {
	m.signingMethod = jwt.SigningMethodES256

	publicKeyData, err := os.ReadFile(m.config.PublicKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read ECDSA public key file: %w", err)
	}
	publicKey, err := parseECDSAPublicKey(publicKeyData)
	if err != nil {
		return fmt.Errorf("failed to parse ECDSA public key: %w", err)
	}
	m.verifyingKey = publicKey

	if m.config.PrivateKeyFile != "" {
		privateKeyData, err := os.ReadFile(m.config.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("failed to read ECDSA private key file: %w", err)
		}
		privateKey, err := parseECDSAPrivateKey(privateKeyData)
		if err != nil {
			return fmt.Errorf("failed to parse ECDSA private key: %w", err)
		}
		m.signingKey = privateKey
	}

	return nil
}

// CreateToken creates a new JWT token with the configured signing method.
// Production tokens come from the task-management backend; this is for
// development tooling and tests.
func (m *KeyManager) CreateToken(claims jwt.Claims) (string, error) {
	if m.signingKey == nil {
		return "", fmt.Errorf("no signing key configured")
	}
	token := jwt.NewWithClaims(m.signingMethod, claims)
	return token.SignedString(m.signingKey)
}

// VerifyToken verifies a JWT token using the configured verification key
func (m *KeyManager) VerifyToken(tokenString string, claims jwt.Claims) (*jwt.Token, error) {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != m.signingMethod {
			return nil, fmt.Errorf("unexpected signing method: %v (expected %v)", token.Header["alg"], m.signingMethod.Alg())
		}
		return m.verifyingKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}
	return token, nil
}

// GetSigningMethod returns the current signing method
func (m *KeyManager) GetSigningMethod() string {
	return m.config.SigningMethod
}

// Key parsing utility functions

func parseRSAPrivateKey(keyData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA private key")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported private key type: %s", block.Type)
	}
}

func parseRSAPublicKey(keyData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA public key")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported public key type: %s", block.Type)
	}
}

func parseECDSAPrivateKey(keyData []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		ecdsaKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an ECDSA private key")
		}
		return ecdsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported private key type: %s", block.Type)
	}
}

func parseECDSAPublicKey(keyData []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		ecdsaKey, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("not an ECDSA public key")
		}
		return ecdsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported public key type: %s", block.Type)
	}
}
