// Package oracle abstracts the third-party encode/decode service being
// reverse-engineered. The service is a black box: it may throttle, change
// behavior across versions, or return malformed responses, so every
// implementation treats single-call failure as an expected outcome.
//
// Two implementations are provided: HTTPOracle talks to the live service,
// ScriptedOracle runs a decoder script extracted from a captured embed page
// locally in a JS engine, which lets recovery and regression tests run
// without network access.
package oracle

import (
	"context"
)

// Oracle issues single encode/decode requests against a provider transform.
type Oracle interface {
	// Encode submits plaintext and returns the provider's ciphertext
	// (base64url text).
	Encode(ctx context.Context, plain string) (string, error)
	// Decode submits ciphertext and returns the provider's plaintext.
	// Oracles without a decode endpoint return ErrCodeDecodeUnsupported.
	Decode(ctx context.Context, cipher string) (string, error)
	// Name identifies the provider/version for reports and artifacts.
	Name() string
}
