package authn

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// KeyPair is a single RSA signing key with a stable kid, the unit the
// issuer signs with and the JWKS document publishes the public half of.
type KeyPair struct {
	KID        string
	PrivateKey *rsa.PrivateKey
}

// GenerateKeyPair creates a fresh 2048-bit RSA key pair under kid.
func GenerateKeyPair(kid string) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("authn: generate key: %w", err)
	}
	return &KeyPair{KID: kid, PrivateKey: priv}, nil
}

// ParsePKCS1OrPKCS8PEM loads an RSA private key from a PEM block, accepting
// either PKCS1 ("RSA PRIVATE KEY") or PKCS8 ("PRIVATE KEY") encoding.
func ParsePKCS1OrPKCS8PEM(kid string, pemBytes []byte) (*KeyPair, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("authn: no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &KeyPair{KID: kid, PrivateKey: key}, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("authn: parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("authn: private key is not RSA")
	}
	return &KeyPair{KID: kid, PrivateKey: rsaKey}, nil
}

// JWK is the public half of a KeyPair in RFC 7517 form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSDocument is the body served from GET /.well-known/jwks.json.
type JWKSDocument struct {
	Keys []JWK `json:"keys"`
}

func publicJWK(kp *KeyPair) JWK {
	pub := kp.PrivateKey.PublicKey
	eBytes := bigEndianBytes(pub.E)
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: kp.KID,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(eBytes),
	}
}

func bigEndianBytes(e int) []byte {
	if e == 0 {
		return []byte{0}
	}
	var b []byte
	for e > 0 {
		b = append([]byte{byte(e & 0xff)}, b...)
		e >>= 8
	}
	return b
}
