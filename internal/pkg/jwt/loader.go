// internal/pkg/jwt/loader.go
package jwt

import (
	"fmt"
	"time"
)

type Config struct {
	PrivPath string // optional; only services that mint tokens need it
	PubPath  string
	Issuer   string
	Audience string
	TTL      time.Duration
	KID      string
}

type Manager struct {
	Generator *Generator
	Verifier  *Verifier
}

// LoadAndBuild always builds a verifier. The generator is built only when
// a private key path is configured.
func LoadAndBuild(cfg Config) (*Manager, error) {
	pub, err := LoadRSAPublicKeyFromPEM(cfg.PubPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load public key from %s: %w", cfg.PubPath, err)
	}

	m := &Manager{Verifier: NewVerifier(pub, cfg.Issuer, cfg.Audience)}

	if cfg.PrivPath != "" {
		priv, err := LoadRSAPrivateKeyFromPEM(cfg.PrivPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key from %s: %w", cfg.PrivPath, err)
		}
		m.Generator = NewGenerator(priv, cfg.Issuer, cfg.Audience, cfg.KID, cfg.TTL)
	}

	return m, nil
}
