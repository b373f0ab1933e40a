package errs

import (
	"errors"
)

var (
	// ErrOracleUnavailable indicates a network or HTTP failure while probing the oracle.
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrOracleMalformed indicates an oracle response that could not be parsed.
	ErrOracleMalformed = errors.New("oracle response malformed")
	// ErrStructuralMismatch indicates samples that do not fit the assumed header/padding model.
	ErrStructuralMismatch = errors.New("structural mismatch")
	// ErrPositionConflict indicates a position that cannot be modeled as pure substitution.
	ErrPositionConflict = errors.New("position conflict")
	// ErrUnstableKeystream indicates a position at or beyond the validated stability horizon.
	ErrUnstableKeystream = errors.New("unstable keystream")
	// ErrUnsupportedCharacter indicates input outside the recovered alphabet.
	ErrUnsupportedCharacter = errors.New("unsupported character")
	// ErrTruncatedCiphertext indicates a ciphertext with fewer bytes than a position requires.
	ErrTruncatedCiphertext = errors.New("truncated ciphertext")
)
