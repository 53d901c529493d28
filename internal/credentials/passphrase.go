package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/tis24dev/stackrestore/internal/input"
)

// PassphraseEnv overrides the interactive prompt when set.
const PassphraseEnv = "STACKRESTORE_CREDENTIAL_PASSPHRASE"

// ErrNoPassphrase means a source had nothing to offer.
var ErrNoPassphrase = errors.New("no credential passphrase available")

// PassphraseSource yields the passphrase protecting the credential blob.
type PassphraseSource interface {
	Passphrase(ctx context.Context) (string, error)
}

// Static returns a fixed passphrase.
type Static string

// Passphrase implements PassphraseSource.
func (s Static) Passphrase(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoPassphrase
	}
	return string(s), nil
}

var lookupEnv = os.LookupEnv

// Env reads the passphrase from an environment variable.
type Env struct{ Name string }

// Passphrase implements PassphraseSource.
func (e Env) Passphrase(context.Context) (string, error) {
	name := e.Name
	if name == "" {
		name = PassphraseEnv
	}
	v, ok := lookupEnv(name)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s not set", ErrNoPassphrase, name)
	}
	return v, nil
}

// TTY prompts on the controlling terminal. Piped stdin is never read, so an
// unattended run without a terminal fails instead of consuming its input.
type TTY struct {
	Path   string
	Prompt string
}

var readPassword = term.ReadPassword

// Passphrase implements PassphraseSource.
func (t TTY) Passphrase(ctx context.Context) (string, error) {
	path := t.Path
	if path == "" {
		path = "/dev/tty"
	}
	prompt := t.Prompt
	if prompt == "" {
		prompt = "Credential passphrase: "
	}

	tty, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrNoPassphrase, path, err)
	}
	defer tty.Close()
	fd := int(tty.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%w: %s is not a terminal", ErrNoPassphrase, path)
	}

	fmt.Fprint(tty, prompt)
	secret, err := input.ReadPasswordWithContext(ctx, readPassword, fd)
	fmt.Fprintln(tty)
	if err != nil {
		return "", err
	}
	pass := strings.TrimRight(string(secret), "\r\n")
	if pass == "" {
		return "", fmt.Errorf("%w: empty passphrase", ErrNoPassphrase)
	}
	return pass, nil
}

// Chain tries each source in order and returns the first passphrase.
type Chain []PassphraseSource

// Passphrase implements PassphraseSource.
func (c Chain) Passphrase(ctx context.Context) (string, error) {
	var errs []error
	for _, src := range c {
		pass, err := src.Passphrase(ctx)
		if err == nil {
			return pass, nil
		}
		if !errors.Is(err, ErrNoPassphrase) {
			return "", err
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrNoPassphrase
	}
	return "", errors.Join(errs...)
}

// DefaultSource checks PassphraseEnv, then prompts on /dev/tty.
func DefaultSource() PassphraseSource {
	return Chain{Env{Name: PassphraseEnv}, TTY{Path: "/dev/tty"}}
}
