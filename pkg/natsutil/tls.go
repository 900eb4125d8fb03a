package natsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/carverauto/astreg/pkg/config"
	"github.com/carverauto/astreg/pkg/models"
)

var (
	ErrMTLSRequired    = errors.New("mtls security required")
	ErrTLSIncomplete   = errors.New("mtls requires cert_file, key_file and ca_file")
	ErrCAParsingFailed = errors.New("failed to parse CA certificate")
)

// TLSConfig builds the client side of an mTLS connection to NATS. Relative
// file names resolve against sec.CertDir; sec itself is left untouched.
func TLSConfig(sec *models.SecurityConfig) (*tls.Config, error) {
	if sec == nil || sec.Mode != models.SecurityModeMTLS {
		return nil, ErrMTLSRequired
	}

	files := sec.TLS
	config.NormalizeTLSPaths(&files, sec.CertDir)

	if files.CertFile == "" || files.KeyFile == "" || files.CAFile == "" {
		return nil, ErrTLSIncomplete
	}

	cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caPEM, err := os.ReadFile(files.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("%w: %s", ErrCAParsingFailed, files.CAFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      roots,
		ServerName:   sec.ServerName,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
