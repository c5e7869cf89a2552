package domain

import (
	"fmt"
	"path"
	"strings"
)

const (
	MaxKeyLength        = 250
	MaxParamValueLength = 6000
	MaxTagValueLength   = 8000
)

// KeyKind names what a key identifies, for error messages.
type KeyKind string

const (
	KeyParam  KeyKind = "param"
	KeyMetric KeyKind = "metric"
	KeyTag    KeyKind = "tag"
)

// ValidateKey checks a param, metric or tag key. Keys become file paths inside
// a run directory, so anything that could escape it is rejected.
func ValidateKey(kind KeyKind, key string) error {
	fail := func(format string, args ...any) error {
		return &OpError{
			Op:   "domain.validate_key",
			Kind: KindInvalidArgument,
			Err:  fmt.Errorf("invalid %s key %q: %s", kind, key, fmt.Sprintf(format, args...)),
		}
	}

	if key == "" {
		return fail("must not be empty")
	}
	if len(key) > MaxKeyLength {
		return fail("longer than %d characters", MaxKeyLength)
	}
	for _, r := range key {
		if !isKeyRune(r) {
			return fail("character %q is not allowed (use alphanumerics, underscores, dashes, periods, spaces and slashes)", r)
		}
	}
	if strings.HasPrefix(key, "/") {
		return fail("must be a relative path")
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fail("must not contain empty, '.' or '..' path segments")
		}
	}
	if path.Clean(key) != key {
		return fail("must be a normalized path")
	}
	return nil
}

func isKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-' || r == '.' || r == ' ' || r == '/':
		return true
	}
	return false
}

// ValidateParamValue enforces the MLflow param value length limit.
func ValidateParamValue(key, value string) error {
	if len(value) > MaxParamValueLength {
		return &OpError{
			Op:   "domain.validate_param",
			Kind: KindInvalidArgument,
			Err:  fmt.Errorf("param %q: value longer than %d characters", key, MaxParamValueLength),
		}
	}
	return nil
}

// ValidateTagValue bounds the length of a tag value.
func ValidateTagValue(key, value string) error {
	if len(value) > MaxTagValueLength {
		return &OpError{
			Op:   "domain.validate_tag",
			Kind: KindInvalidArgument,
			Err:  fmt.Errorf("tag %q: value longer than %d characters", key, MaxTagValueLength),
		}
	}
	return nil
}
