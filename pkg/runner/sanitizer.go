package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInputSize bounds one reply, in bytes.
const DefaultMaxInputSize = 4096

// EnvMaxInputSize overrides DefaultMaxInputSize.
const EnvMaxInputSize = "ARBOR_MAX_INPUT_SIZE"

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// InputPolicy decides what a reply may contain before it is merged into a
// run's state.
type InputPolicy struct {
	// MaxSize is the largest accepted reply in bytes. Zero means no limit.
	MaxSize int
}

// DefaultInputPolicy returns the policy of SanitizeInput: DefaultMaxInputSize
// unless EnvMaxInputSize holds a positive integer.
func DefaultInputPolicy() InputPolicy {
	p := InputPolicy{MaxSize: DefaultMaxInputSize}
	if v, err := strconv.Atoi(os.Getenv(EnvMaxInputSize)); err == nil && v > 0 {
		p.MaxSize = v
	}
	return p
}

// Clean rejects oversized or malformed input and strips the runes that could
// rewrite a terminal or a log line. Oversized input is rejected rather than
// truncated, so the state holds exactly what was typed.
func (p InputPolicy) Clean(input string) (string, error) {
	if p.MaxSize > 0 && len(input) > p.MaxSize {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), p.MaxSize)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}
	if strings.IndexFunc(input, unsafeRune) < 0 {
		return input, nil
	}
	return strings.Map(func(r rune) rune {
		if unsafeRune(r) {
			return -1
		}
		return r
	}, input), nil
}

// SanitizeInput cleans input with DefaultInputPolicy.
func SanitizeInput(input string) (string, error) {
	return DefaultInputPolicy().Clean(input)
}

// unsafeRune reports control characters other than newline, tab and carriage
// return, and the bidirectional overrides that reorder displayed text.
func unsafeRune(r rune) bool {
	switch r {
	case '\n', '\t', '\r':
		return false
	case '‪', '‫', '‬', '‭', '‮',
		'⁦', '⁧', '⁨', '⁩':
		return true
	}
	return unicode.IsControl(r)
}
