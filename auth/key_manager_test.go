package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRSAKeyPair(t *testing.T) (publicPath, privatePath string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privatePath = filepath.Join(dir, "rsa_private.pem")
	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	require.NoError(t, os.WriteFile(privatePath, privatePEM, 0o600))

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicPath = filepath.Join(dir, "rsa_public.pem")
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	require.NoError(t, os.WriteFile(publicPath, publicPEM, 0o600))

	return publicPath, privatePath
}

func writeECDSAKeyPair(t *testing.T) (publicPath, privatePath string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	dir := t.TempDir()
	privateDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	privatePath = filepath.Join(dir, "ec_private.pem")
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privateDER})
	require.NoError(t, os.WriteFile(privatePath, privatePEM, 0o600))

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicPath = filepath.Join(dir, "ec_public.pem")
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	require.NoError(t, os.WriteFile(publicPath, publicPEM, 0o600))

	return publicPath, privatePath
}

func testClaims(subject string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
}

func TestKeyManagerHS256RoundTrip(t *testing.T) {
	manager, err := NewKeyManager(KeyConfig{SigningMethod: "HS256", Secret: "roundtrip-secret"})
	require.NoError(t, err)
	assert.Equal(t, "HS256", manager.GetSigningMethod())

	token, err := manager.CreateToken(testClaims("user-1"))
	require.NoError(t, err)

	parsed := jwt.MapClaims{}
	_, err = manager.VerifyToken(token, parsed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", parsed["sub"])
}

func TestKeyManagerHS256RequiresSecret(t *testing.T) {
	_, err := NewKeyManager(KeyConfig{SigningMethod: "HS256"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hmac secret is required")
}

func TestKeyManagerRejectsUnknownMethod(t *testing.T) {
	_, err := NewKeyManager(KeyConfig{SigningMethod: "none"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported signing method")
}

func TestKeyManagerRS256RoundTrip(t *testing.T) {
	publicPath, privatePath := writeRSAKeyPair(t)

	manager, err := NewKeyManager(KeyConfig{
		SigningMethod:  "RS256",
		PublicKeyFile:  publicPath,
		PrivateKeyFile: privatePath,
	})
	require.NoError(t, err)

	token, err := manager.CreateToken(testClaims("user-2"))
	require.NoError(t, err)

	parsed := jwt.MapClaims{}
	_, err = manager.VerifyToken(token, parsed)
	require.NoError(t, err)
	assert.Equal(t, "user-2", parsed["sub"])
}

func TestKeyManagerRS256PublicKeyOnlyVerifies(t *testing.T) {
	publicPath, privatePath := writeRSAKeyPair(t)

	// Production shape: the relay only verifies, the backend signs
	verifier, err := NewKeyManager(KeyConfig{SigningMethod: "RS256", PublicKeyFile: publicPath})
	require.NoError(t, err)

	_, err = verifier.CreateToken(testClaims("user-3"))
	require.Error(t, err, "without the private key there is nothing to sign with")

	signer, err := NewKeyManager(KeyConfig{
		SigningMethod:  "RS256",
		PublicKeyFile:  publicPath,
		PrivateKeyFile: privatePath,
	})
	require.NoError(t, err)
	token, err := signer.CreateToken(testClaims("user-3"))
	require.NoError(t, err)

	parsed := jwt.MapClaims{}
	_, err = verifier.VerifyToken(token, parsed)
	require.NoError(t, err)
	assert.Equal(t, "user-3", parsed["sub"])
}

func TestKeyManagerRS256MissingPublicKeyFile(t *testing.T) {
	_, err := NewKeyManager(KeyConfig{
		SigningMethod: "RS256",
		PublicKeyFile: filepath.Join(t.TempDir(), "does-not-exist.pem"),
	})
	require.Error(t, err)
}

func TestKeyManagerES256RoundTrip(t *testing.T) {
	publicPath, privatePath := writeECDSAKeyPair(t)

	manager, err := NewKeyManager(KeyConfig{
		SigningMethod:  "ES256",
		PublicKeyFile:  publicPath,
		PrivateKeyFile: privatePath,
	})
	require.NoError(t, err)

	token, err := manager.CreateToken(testClaims("user-4"))
	require.NoError(t, err)

	parsed := jwt.MapClaims{}
	_, err = manager.VerifyToken(token, parsed)
	require.NoError(t, err)
	assert.Equal(t, "user-4", parsed["sub"])
}

func TestKeyManagerRejectsCrossMethodTokens(t *testing.T) {
	publicPath, _ := writeRSAKeyPair(t)

	hmacManager, err := NewKeyManager(KeyConfig{SigningMethod: "HS256", Secret: "cross-method-secret"})
	require.NoError(t, err)
	token, err := hmacManager.CreateToken(testClaims("user-5"))
	require.NoError(t, err)

	rsaManager, err := NewKeyManager(KeyConfig{SigningMethod: "RS256", PublicKeyFile: publicPath})
	require.NoError(t, err)

	_, err = rsaManager.VerifyToken(token, jwt.MapClaims{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected signing method")
}
