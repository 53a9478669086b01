// Package credential loads the operator-supplied PIV credential: an
// RSA private key and its certificate, bundled as a PKCS#12 file. This
// is the "Key material" spec.md §3 requires the handler to be
// constructed around; the core never reads a PFX itself.
package credential

import (
	"crypto/rsa"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"

	"github.com/pivert/pivert/internal/piv"
)

// LoadPFX decodes a PKCS#12 bundle already read into memory and
// extracts the RSA key material the card handler signs with. Only RSA
// keys are supported, matching spec.md §3's "RSA private key" wording.
func LoadPFX(der []byte, password string) (*piv.KeyMaterial, error) {
	key, cert, err := pkcs12.Decode(der, password)
	if err != nil {
		return nil, fmt.Errorf("decode pkcs12 bundle: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("pkcs12 bundle holds a %T private key, want *rsa.PrivateKey", key)
	}
	return &piv.KeyMaterial{PrivateKey: rsaKey, CertDER: cert.Raw}, nil
}

// LoadPFXFile reads path from disk and decodes it as a PKCS#12 bundle.
func LoadPFXFile(path, password string) (*piv.KeyMaterial, error) {
	der, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pfx file %q: %w", path, err)
	}
	return LoadPFX(der, password)
}
