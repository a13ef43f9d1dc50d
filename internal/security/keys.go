package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidKey is returned for unreadable PEM and for key types other than RSA and ECDSA.
var ErrInvalidKey = errors.New("invalid key")

// privateParsers and publicParsers are keyed by PEM block type.
var (
	privateParsers = map[string]func([]byte) (any, error){
		"RSA PRIVATE KEY": func(b []byte) (any, error) { return x509.ParsePKCS1PrivateKey(b) },
		"EC PRIVATE KEY":  func(b []byte) (any, error) { return x509.ParseECPrivateKey(b) },
		"PRIVATE KEY":     x509.ParsePKCS8PrivateKey,
	}
	publicParsers = map[string]func([]byte) (any, error){
		"RSA PUBLIC KEY": func(b []byte) (any, error) { return x509.ParsePKCS1PublicKey(b) },
		"PUBLIC KEY":     x509.ParsePKIXPublicKey,
	}
)

// LoadPEM returns s itself when it is inline PEM, with literal "\n" sequences from env vars
// expanded; otherwise it reads the file at path s.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, ErrInvalidKey
	case strings.HasPrefix(s, "-----BEGIN"):
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	default:
		return os.ReadFile(s)
	}
}

// ParsePrivateKey parses an RSA or ECDSA private key from inline PEM or a file path.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	key, err := parseKey(s, privateParsers)
	if err != nil {
		return nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok || KeyAlg(signer.Public()) == "" {
		return nil, ErrInvalidKey
	}
	return signer, nil
}

// ParsePublicKey parses an RSA or ECDSA public key from inline PEM or a file path.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	key, err := parseKey(s, publicParsers)
	if err != nil {
		return nil, err
	}
	if KeyAlg(key) == "" {
		return nil, ErrInvalidKey
	}
	return key, nil
}

func parseKey(s string, parsers map[string]func([]byte) (any, error)) (any, error) {
	raw, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, ErrInvalidKey
	}
	parse, ok := parsers[block.Type]
	if !ok {
		return nil, ErrInvalidKey
	}
	return parse(block.Bytes)
}

// KeyAlg is the JWS algorithm used with pub: RS256 for RSA, ES256 for ECDSA, "" otherwise.
func KeyAlg(pub crypto.PublicKey) string {
	switch pub.(type) {
	case *rsa.PublicKey:
		return jwt.SigningMethodRS256.Alg()
	case *ecdsa.PublicKey:
		return jwt.SigningMethodES256.Alg()
	}
	return ""
}

func signingMethod(pub crypto.PublicKey) (jwt.SigningMethod, error) {
	if m := jwt.GetSigningMethod(KeyAlg(pub)); m != nil {
		return m, nil
	}
	return nil, ErrInvalidKey
}
