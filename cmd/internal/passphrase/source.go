// Package passphrase resolves the operator keystore passphrase for the
// command line tools.
package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrUnavailable is returned when no environment value is set and there is no
// terminal to prompt on.
var ErrUnavailable = errors.New("operator keystore passphrase unavailable")

// Source yields the passphrase once and caches the outcome, successful or not.
type Source struct {
	envVar string
	prompt io.Writer

	isTerminal func() bool
	readSecret func() ([]byte, error)

	once   sync.Once
	secret string
	err    error
}

// NewSource reads envVar first and falls back to prompting on stderr when
// stdin is a terminal.
func NewSource(envVar string) *Source {
	fd := int(os.Stdin.Fd())
	return &Source{
		envVar:     strings.TrimSpace(envVar),
		prompt:     os.Stderr,
		isTerminal: func() bool { return term.IsTerminal(fd) },
		readSecret: func() ([]byte, error) { return term.ReadPassword(fd) },
	}
}

// Get returns the passphrase. Blank values are rejected whatever their origin.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.secret, s.err = s.resolve()
	})
	return s.secret, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if !s.isTerminal() {
		if s.envVar == "" {
			return "", ErrUnavailable
		}
		return "", fmt.Errorf("%w: set %s or run interactively", ErrUnavailable, s.envVar)
	}

	fmt.Fprint(s.prompt, "Operator keystore passphrase: ")
	raw, err := s.readSecret()
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", errors.New("operator keystore passphrase cannot be empty")
	}
	return string(raw), nil
}
