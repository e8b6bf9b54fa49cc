package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// ProviderTLS builds a *tls.Config for the provider API client.
// Returns nil, nil if nothing is configured (system roots, no client cert).
func (c *Config) ProviderTLS() (*tls.Config, error) {
	if c.ProviderTLSCert == "" && c.ProviderTLSKey == "" && c.ProviderTLSCACert == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if c.ProviderTLSCert != "" || c.ProviderTLSKey != "" {
		cert, err := tls.LoadX509KeyPair(c.ProviderTLSCert, c.ProviderTLSKey)
		if err != nil {
			return nil, fmt.Errorf("load provider client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if c.ProviderTLSCACert != "" {
		caPEM, err := os.ReadFile(c.ProviderTLSCACert)
		if err != nil {
			return nil, fmt.Errorf("read provider CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse provider CA cert")
		}
		tlsConfig.RootCAs = pool
	}

	if c.ProviderTLSServerName != "" {
		tlsConfig.ServerName = c.ProviderTLSServerName
	}

	return tlsConfig, nil
}
