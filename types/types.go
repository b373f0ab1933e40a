// Package types holds the data model shared by the recovery pipeline stages.
package types

// Mode identifies how a recovered transform is modeled.
type Mode string

const (
	// ModeSubstitution models the transform as a per-position character substitution.
	ModeSubstitution Mode = "substitution"
	// ModeKeystream models the transform as a per-position XOR keystream with a
	// validated stability horizon.
	ModeKeystream Mode = "keystream"
)

// PositionStatus describes how a single plaintext position was resolved.
type PositionStatus string

const (
	// StatusResolved means the position has a complete substitution table.
	StatusResolved PositionStatus = "resolved"
	// StatusContextDependent means independent probes disagreed and the position
	// requires keystream modeling.
	StatusContextDependent PositionStatus = "context-dependent"
	// StatusUnresolved means probing failed or too few samples survived.
	StatusUnresolved PositionStatus = "unresolved"
)

// Sample is a single oracle observation: the plaintext sent and the decoded
// ciphertext bytes received. Samples are immutable once collected.
type Sample struct {
	// Label identifies the probe within its plan (e.g. "len/7", "pos/3/x").
	Label string
	// Plaintext is the exact input submitted to the oracle.
	Plaintext string
	// Raw is the ciphertext as returned by the oracle (base64url text).
	Raw string
	// Body is the base64url-decoded ciphertext, header included.
	Body []byte
	// Err records why the probe failed; failed samples carry no Body.
	Err error
}

// OK reports whether the sample carries a usable ciphertext.
func (s Sample) OK() bool {
	return s.Err == nil && len(s.Body) > 0
}

// SampleSet is the outcome of one collection batch. Failed probes are kept
// apart so a batch is never aborted by individual failures.
type SampleSet struct {
	byLabel map[string]Sample
	order   []string
	failed  []Sample
}

// NewSampleSet creates an empty set.
func NewSampleSet() *SampleSet {
	return &SampleSet{byLabel: make(map[string]Sample)}
}

// Add records a sample. Failed samples are tracked separately.
func (ss *SampleSet) Add(s Sample) {
	if !s.OK() {
		ss.failed = append(ss.failed, s)
		return
	}
	if _, exists := ss.byLabel[s.Label]; !exists {
		ss.order = append(ss.order, s.Label)
	}
	ss.byLabel[s.Label] = s
}

// Get returns the sample for a label, if one was collected successfully.
func (ss *SampleSet) Get(label string) (Sample, bool) {
	s, ok := ss.byLabel[label]
	return s, ok
}

// Labels returns collected labels in insertion order.
func (ss *SampleSet) Labels() []string {
	out := make([]string, len(ss.order))
	copy(out, ss.order)
	return out
}

// Len returns the number of successfully collected samples.
func (ss *SampleSet) Len() int {
	return len(ss.byLabel)
}

// Failed returns the probes that did not produce a usable sample.
func (ss *SampleSet) Failed() []Sample {
	return ss.failed
}

// Merge folds another set into this one. Later samples win on label clashes.
func (ss *SampleSet) Merge(other *SampleSet) {
	if other == nil {
		return
	}
	for _, label := range other.order {
		ss.Add(other.byLabel[label])
	}
	ss.failed = append(ss.failed, other.failed...)
}
