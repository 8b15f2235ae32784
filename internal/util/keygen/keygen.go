// Package keygen generates SSH key pairs for server access.
//
// Private keys are PEM encoded, public keys use the OpenSSH authorized_keys
// format so they can be appended to ~/.ssh/authorized_keys on a server.
package keygen

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// Supported key types.
const (
	TypeRSA     = "rsa"
	TypeEd25519 = "ed25519"
)

// KeyPair holds a key pair in ready-to-use formats.
type KeyPair struct {
	// PrivateKey is the private key in PEM format.
	PrivateKey []byte
	// PublicKey is the public key in OpenSSH authorized_keys format.
	PublicKey []byte
}

// Generate creates a key pair of the given type. bits only applies to RSA.
func Generate(keyType string, bits int) (*KeyPair, error) {
	switch keyType {
	case TypeRSA:
		return GenerateRSAKeyPair(bits)
	case TypeEd25519, "":
		return GenerateEd25519KeyPair("")
	default:
		return nil, fmt.Errorf("unsupported key type %q", keyType)
	}
}

// GenerateRSAKeyPair generates a new RSA key pair with the specified bit size.
func GenerateRSAKeyPair(bits int) (*KeyPair, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA private key: %w", err)
	}
	if err := privateKey.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate RSA private key: %w", err)
	}

	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	return newKeyPair(privateKeyPEM, &privateKey.PublicKey)
}

// GenerateEd25519KeyPair generates a new Ed25519 key pair in OpenSSH format.
func GenerateEd25519KeyPair(comment string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 private key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ed25519 private key: %w", err)
	}
	return newKeyPair(pem.EncodeToMemory(block), pub)
}

func newKeyPair(privateKeyPEM []byte, pub crypto.PublicKey) (*KeyPair, error) {
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH public key: %w", err)
	}
	return &KeyPair{
		PrivateKey: privateKeyPEM,
		PublicKey:  ssh.MarshalAuthorizedKey(sshPub),
	}, nil
}

// Signer parses the private key for use as an SSH identity or host key.
func (k *KeyPair) Signer() (ssh.Signer, error) {
	return ssh.ParsePrivateKey(k.PrivateKey)
}

// WriteFiles writes the private key to path (mode 0600) and the public key
// to path.pub (mode 0644). Existing files are not overwritten.
func (k *KeyPair) WriteFiles(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := writeNew(path, k.PrivateKey, 0o600); err != nil {
		return err
	}
	return writeNew(path+".pub", k.PublicKey, 0o644)
}

func writeNew(path string, data []byte, perm os.FileMode) error {
	// #nosec G304
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
