package certwatch

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeSelfSigned writes a throwaway certificate pair with the given
// common name and returns the file paths.
func writeSelfSigned(t *testing.T, dir, commonName string) (certPath, keyPath string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath
}

func commonName(t *testing.T, cert *tls.Certificate) string {
	t.Helper()
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return leaf.Subject.CommonName
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewLoadsCertificate(t *testing.T) {
	certPath, keyPath := writeSelfSigned(t, t.TempDir(), "beacon-initial")

	r, err := New(certPath, keyPath, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cert, err := r.GetCertificate(nil)
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	if got := commonName(t, cert); got != "beacon-initial" {
		t.Errorf("common name = %q, want beacon-initial", got)
	}
}

func TestNewFailsOnMissingFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := New(filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem"), testLogger()); err == nil {
		t.Fatal("New with missing files succeeded")
	}
}

func TestReloadPicksUpRotation(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSigned(t, dir, "beacon-v1")

	r, err := New(certPath, keyPath, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	writeSelfSigned(t, dir, "beacon-v2")
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	cert, _ := r.GetCertificate(nil)
	if got := commonName(t, cert); got != "beacon-v2" {
		t.Errorf("common name after rotation = %q, want beacon-v2", got)
	}
}

func TestReloadKeepsOldCertOnFailure(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSigned(t, dir, "beacon-v1")

	r, err := New(certPath, keyPath, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := os.WriteFile(certPath, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("corrupt cert: %v", err)
	}
	if err := r.Reload(); err == nil {
		t.Fatal("Reload of corrupt certificate succeeded")
	}

	cert, _ := r.GetCertificate(nil)
	if got := commonName(t, cert); got != "beacon-v1" {
		t.Errorf("common name after failed reload = %q, want beacon-v1", got)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSigned(t, dir, "beacon-v1")

	r, err := New(certPath, keyPath, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stop, err := r.Watch()
	if err != nil {
		t.Skipf("watcher unavailable: %v", err)
	}
	defer stop()

	writeSelfSigned(t, dir, "beacon-v2")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		cert, _ := r.GetCertificate(nil)
		if commonName(t, cert) == "beacon-v2" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("certificate not reloaded after file change")
}
