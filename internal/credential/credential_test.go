package credential

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"golang.org/x/crypto/pkcs12"
)

func buildTestPFX(t *testing.T, password string) ([]byte, *rsa.PrivateKey) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "pivert test operator"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).AddDate(10, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}

	pfx, err := pkcs12.Encode(rand.Reader, priv, cert, nil, password)
	if err != nil {
		t.Fatalf("pkcs12.Encode: %v", err)
	}
	return pfx, priv
}

func TestLoadPFX(t *testing.T) {
	pfx, priv := buildTestPFX(t, "swordfish")

	key, err := LoadPFX(pfx, "swordfish")
	if err != nil {
		t.Fatalf("LoadPFX: %v", err)
	}
	if key.PrivateKey.N.Cmp(priv.N) != 0 {
		t.Error("recovered RSA modulus does not match the original key")
	}
	if len(key.CertDER) == 0 {
		t.Error("CertDER is empty")
	}
}

func TestLoadPFX_WrongPassword(t *testing.T) {
	pfx, _ := buildTestPFX(t, "swordfish")

	if _, err := LoadPFX(pfx, "wrong"); err == nil {
		t.Fatal("expected an error decoding with the wrong password")
	}
}

func TestLoadPFX_Malformed(t *testing.T) {
	if _, err := LoadPFX([]byte("not a pkcs12 bundle"), ""); err == nil {
		t.Fatal("expected an error for a malformed bundle")
	}
}

func TestLoadPFXFile_MissingFile(t *testing.T) {
	if _, err := LoadPFXFile("/nonexistent/path.pfx", ""); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
