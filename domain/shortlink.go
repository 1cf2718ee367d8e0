package domain

import (
	"context"
	"crypto/rand"
	"io"
)

const (
	shortLinkAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	// largest multiple of 36 below 256; bytes above it are redrawn
	shortLinkCutoff = 252

	DefaultShortLinkLength      = 8
	DefaultShortLinkMaxAttempts = 1000
)

// ExistsFunc reports whether a candidate token is already taken.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// ShortLinkGenerator draws random lowercase base-36 tokens.
type ShortLinkGenerator struct {
	Length      int
	MaxAttempts int
	Rand        io.Reader
}

func NewShortLinkGenerator(length, maxAttempts int) ShortLinkGenerator {
	return ShortLinkGenerator{Length: length, MaxAttempts: maxAttempts}
}

// Generate returns a token for which exists reports false. A nil exists
// accepts the first draw. It gives up with ErrGenerationExhausted after
// MaxAttempts taken candidates.
func (g ShortLinkGenerator) Generate(ctx context.Context, exists ExistsFunc) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultShortLinkMaxAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate, err := g.draw()
		if err != nil {
			return "", err
		}
		if exists == nil {
			return candidate, nil
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrGenerationExhausted
}

func (g ShortLinkGenerator) draw() (string, error) {
	n := g.Length
	if n <= 0 {
		n = DefaultShortLinkLength
	}
	r := g.Rand
	if r == nil {
		r = rand.Reader
	}
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= shortLinkCutoff {
				continue
			}
			out = append(out, shortLinkAlphabet[int(b)%len(shortLinkAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
