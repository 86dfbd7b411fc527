package tls

import (
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	certName = "tls.crt"
	keyName  = "tls.key"
)

// Options selects the certificate served by the status API. CertFile and
// KeyFile win when both are set; otherwise Dir holds tls.crt and tls.key,
// generated on first use when AutoGenerate is on.
type Options struct {
	CertFile     string
	KeyFile      string
	Dir          string
	AutoGenerate bool
	MinVersion   string   // "1.2" or "1.3" (default)
	Hosts        []string // DNS names and IPs of a generated certificate
}

// Enabled reports whether any certificate source is configured.
func (o Options) Enabled() bool {
	return (o.CertFile != "" && o.KeyFile != "") || o.Dir != ""
}

func parseTLSVersion(ver string) (uint16, error) {
	switch strings.ToLower(strings.TrimSpace(ver)) {
	case "", "default", "1.3", "tls1.3":
		return tls.VersionTLS13, nil
	case "1.2", "tls1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported tls version %q", ver)
	}
}

// getCertificateFunc reloads the pair on every handshake so renewed
// certificates are picked up without a restart.
func getCertificateFunc(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		certPEM, err := os.ReadFile(filepath.Clean(certFile))
		if err != nil {
			return nil, err
		}
		keyPEM, err := os.ReadFile(filepath.Clean(keyFile))
		if err != nil {
			return nil, err
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, err
		}
		return &cert, nil
	}
}

// Setup builds the server TLS configuration. It returns nil, nil when TLS
// is not configured.
func Setup(o Options) (*tls.Config, error) {
	if !o.Enabled() {
		return nil, nil
	}
	minVer, err := parseTLSVersion(o.MinVersion)
	if err != nil {
		return nil, err
	}

	certPath, keyPath := o.CertFile, o.KeyFile
	if certPath == "" || keyPath == "" {
		certPath = filepath.Join(o.Dir, certName)
		keyPath = filepath.Join(o.Dir, keyName)
		if !certificatesExist(certPath, keyPath) {
			if !o.AutoGenerate {
				return nil, fmt.Errorf("no certificate in %s (enable auto_generate or set cert_file and key_file)", o.Dir)
			}
			if err := os.MkdirAll(o.Dir, 0o750); err != nil {
				return nil, fmt.Errorf("create certificate dir: %w", err)
			}
			if err := GenerateSelfSignedCert(CertConfig{Hosts: o.Hosts, CertPath: certPath, KeyPath: keyPath}); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}
	// fail at startup rather than on the first handshake
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	return &tls.Config{
		GetCertificate: getCertificateFunc(certPath, keyPath),
		MinVersion:     minVer,
	}, nil
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}
