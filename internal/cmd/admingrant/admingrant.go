// Package admingrant generates grant keypairs and mints admin grants.
package admingrant

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/jsantora/replycore/internal/auth"
	entrypoint "github.com/jsantora/replycore/internal/platform/cmd"
)

// Config holds admin-grant command configuration.
type Config struct {
	Keygen     bool
	Issuer     string `env:"REPLYCORE_GRANT_ISSUER"`
	Audience   string `env:"REPLYCORE_GRANT_AUDIENCE"`
	PrivateKey string `env:"REPLYCORE_GRANT_PRIVATE_KEY"`
	Subject    string
	TTL        time.Duration
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.BoolVar(&cfg.Keygen, "keygen", cfg.Keygen, "Generate a grant keypair instead of minting")
	fs.StringVar(&cfg.Issuer, "issuer", cfg.Issuer, "Grant issuer")
	fs.StringVar(&cfg.Audience, "audience", cfg.Audience, "Grant audience")
	fs.StringVar(&cfg.Subject, "subject", cfg.Subject, "Reviewer identity the grant acts as")
	fs.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "Grant lifetime (0 for default)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates a keypair or mints an admin grant and writes it to out.
func Run(out io.Writer, reader io.Reader, cfg Config) error {
	if out == nil {
		return errors.New("output is required")
	}
	if cfg.Keygen {
		return keygen(out, reader)
	}
	return mint(out, cfg)
}

// keygen writes env exports for a fresh ed25519 keypair.
func keygen(out io.Writer, reader io.Reader) error {
	if reader == nil {
		reader = rand.Reader
	}
	publicKey, privateKey, err := ed25519.GenerateKey(reader)
	if err != nil {
		return fmt.Errorf("generate grant key: %w", err)
	}
	if _, err := fmt.Fprintf(out, "export REPLYCORE_GRANT_PRIVATE_KEY=%s\n", auth.EncodeKey(privateKey)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "export REPLYCORE_GRANT_PUBLIC_KEY=%s\n", auth.EncodeKey(publicKey)); err != nil {
		return err
	}
	return nil
}

// mint signs a grant for the configured subject.
func mint(out io.Writer, cfg Config) error {
	if cfg.PrivateKey == "" {
		return errors.New("REPLYCORE_GRANT_PRIVATE_KEY is required to mint")
	}
	keyBytes, err := auth.DecodeKey(cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("decode grant private key: %w", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return fmt.Errorf("grant private key must be %d bytes", ed25519.PrivateKeySize)
	}

	grant, err := auth.Mint(ed25519.PrivateKey(keyBytes), auth.MintParams{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		Subject:  cfg.Subject,
		TTL:      cfg.TTL,
	})
	if err != nil {
		return fmt.Errorf("mint grant: %w", err)
	}
	_, err = fmt.Fprintln(out, grant)
	return err
}
