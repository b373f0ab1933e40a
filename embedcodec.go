// Package embedcodec recovers embed-provider obfuscation transforms by
// chosen-plaintext probing and serves them back as pure offline codecs.
//
// The high-level flow: probe the provider's encode oracle with planned
// plaintexts, derive the ciphertext structure (header, padding, position
// mapping), build per-position substitution tables or an XOR keystream, and
// emit a serialized artifact the codec package replays without the network.
package embedcodec

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/flyxtv/embedcodec/analyzer"
	"github.com/flyxtv/embedcodec/artifact"
	"github.com/flyxtv/embedcodec/collector"
	"github.com/flyxtv/embedcodec/internal/logger"
	"github.com/flyxtv/embedcodec/oracle"
	"github.com/flyxtv/embedcodec/tables"
	"github.com/flyxtv/embedcodec/types"
)

const (
	defaultMaxPosition       = 32
	defaultConcurrency       = 2
	defaultRetries           = 2
	defaultValidationFetches = 2
	defaultFiller            = "a"
	defaultAltFiller         = "b"
	defaultHeadChars         = "wxyz"
	defaultSweepLen          = 12
	defaultCallTimeout       = 30 * time.Second
)

// RecoverOptions holds the knobs for one recovery run.
//
// Use chainable setters on Recoverer to populate these options.
type RecoverOptions struct {
	Provider          string
	Alphabet          string
	Filler            string
	AltFiller         string
	MaxPosition       int
	Concurrency       int
	ProbeDelay        time.Duration
	Retries           int
	ValidationFetches int
}

// Result is the outcome of a recovery run.
type Result struct {
	Artifact *artifact.Artifact
	Report   *tables.Report
}

// Recoverer drives the full recovery pipeline against one oracle.
type Recoverer struct {
	orc     oracle.Oracle
	options RecoverOptions
	log     *logger.ComponentLogger
}

// New creates a Recoverer with default options. The provider name defaults
// to the oracle's.
func New(orc oracle.Oracle) *Recoverer {
	return &Recoverer{
		orc: orc,
		options: RecoverOptions{
			Provider:          orc.Name(),
			Alphabet:          tables.DefaultAlphabet,
			Filler:            defaultFiller,
			AltFiller:         defaultAltFiller,
			MaxPosition:       defaultMaxPosition,
			Concurrency:       defaultConcurrency,
			Retries:           defaultRetries,
			ValidationFetches: defaultValidationFetches,
		},
		log: logger.WithComponent(logger.ComponentApp),
	}
}

// WithProvider overrides the provider name recorded in the artifact.
func (r *Recoverer) WithProvider(name string) *Recoverer {
	r.options.Provider = name
	return r
}

// WithAlphabet sets the probed character set. The fillers must be members
// of it.
func (r *Recoverer) WithAlphabet(alphabet string) *Recoverer {
	r.options.Alphabet = alphabet
	return r
}

// WithFillers sets the two distinct padding characters used for structural
// probes and cross-context verification.
func (r *Recoverer) WithFillers(filler, alt string) *Recoverer {
	r.options.Filler = filler
	r.options.AltFiller = alt
	return r
}

// WithMaxPosition sets how many plaintext positions are recovered.
func (r *Recoverer) WithMaxPosition(n int) *Recoverer {
	r.options.MaxPosition = n
	return r
}

// WithConcurrency caps in-flight oracle calls.
func (r *Recoverer) WithConcurrency(n int) *Recoverer {
	r.options.Concurrency = n
	return r
}

// WithProbeDelay paces oracle calls to respect provider rate limits.
func (r *Recoverer) WithProbeDelay(d time.Duration) *Recoverer {
	r.options.ProbeDelay = d
	return r
}

// WithRetries caps per-probe retries on transient oracle failures.
func (r *Recoverer) WithRetries(n int) *Recoverer {
	r.options.Retries = n
	return r
}

// WithValidationFetches sets how many independent fetches confirm keystream
// stability.
func (r *Recoverer) WithValidationFetches(n int) *Recoverer {
	r.options.ValidationFetches = n
	return r
}

// Recover runs the full pipeline: structural probing and analysis, the
// substitution build with cross-context verification, and on conflict the
// keystream fallback. A deadline abort mid-collection still yields an
// artifact with whatever positions resolved; in that case both the Result
// and the error are non-nil.
func (r *Recoverer) Recover(ctx context.Context) (*Result, error) {
	col := collector.New(r.orc, collector.Config{
		Concurrency: r.options.Concurrency,
		Delay:       r.options.ProbeDelay,
		Retries:     r.options.Retries,
		CallTimeout: defaultCallTimeout,
	})

	s, err := r.analyzeStructure(ctx, col)
	if err != nil {
		return nil, err
	}
	return r.buildTables(ctx, col, s, nil)
}

// Resume re-runs recovery targeting the positions a previous artifact left
// unresolved and merges the outcome into a fresh artifact carrying both
// runs. The provider's structure must not have drifted since the previous
// run.
func (r *Recoverer) Resume(ctx context.Context, prev *artifact.Artifact) (*Result, error) {
	if err := prev.Validate(); err != nil {
		return nil, errors.Wrap(err, "previous artifact")
	}
	s, err := prev.Structure()
	if err != nil {
		return nil, err
	}

	col := collector.New(r.orc, collector.Config{
		Concurrency: r.options.Concurrency,
		Delay:       r.options.ProbeDelay,
		Retries:     r.options.Retries,
		CallTimeout: defaultCallTimeout,
	})
	return r.buildTables(ctx, col, s, prev)
}

func (r *Recoverer) analyzeStructure(ctx context.Context, col *collector.Collector) (types.Structure, error) {
	params := r.analyzerParams()
	if err := params.Validate(); err != nil {
		return types.Structure{}, err
	}

	r.log.Info("probing structure", map[string]interface{}{"provider": r.options.Provider})
	set, err := col.Collect(ctx, analyzer.BuildPlan(params))
	if err != nil {
		return types.Structure{}, err
	}
	s, err := analyzer.Analyze(set, params)
	if err != nil {
		return types.Structure{}, err
	}
	r.log.Info("structure recovered", map[string]interface{}{
		"header_bytes": len(s.Header),
		"padding":      len(s.Padding),
		"cutover":      s.Mapping.Cutover,
	})
	return s, nil
}

// buildTables runs the table phase over a known structure. prev, when
// non-nil, restricts probing to positions it left unresolved and is merged
// into the result.
func (r *Recoverer) buildTables(ctx context.Context, col *collector.Collector, s types.Structure, prev *artifact.Artifact) (*Result, error) {
	if prev != nil && prev.Mode == types.ModeKeystream {
		result, err := r.buildKeystream(ctx, col, s, types.NewSampleSet())
		if err != nil {
			return nil, err
		}
		if err := result.Artifact.Merge(prev); err != nil {
			return nil, err
		}
		return result, nil
	}

	sb := tables.NewSubstitutionBuilder(s, r.options.Alphabet, r.options.Filler, r.options.AltFiller)

	plan := sb.Plan(r.options.MaxPosition)
	if prev != nil && prev.Mode == types.ModeSubstitution {
		plan = r.gapPlan(prev)
	}

	set, collectErr := col.Collect(ctx, plan)
	res, err := sb.Build(set, r.options.MaxPosition)
	if err != nil {
		return nil, err
	}

	// Verification is best-effort: a deadline hit here keeps the tables,
	// it just cannot clear them of context dependence.
	if collectErr == nil {
		vset, verr := col.Collect(ctx, sb.VerifyPlan(r.options.MaxPosition))
		sb.Verify(res, vset, r.options.MaxPosition)
		collectErr = verr
	}

	var result *Result
	if len(res.Conflicts) > 0 && collectErr == nil {
		r.log.Warn("context-dependent positions found, switching to keystream", map[string]interface{}{
			"conflicts": len(res.Conflicts),
		})
		var err error
		result, err = r.buildKeystream(ctx, col, s, set)
		if err != nil {
			return nil, err
		}
	} else {
		art := artifact.New(r.options.Provider, types.ModeSubstitution)
		art.SetStructure(s)
		art.SetSubstitution(res)

		report := tables.NewReport(r.options.Provider, types.ModeSubstitution)
		report.FromSubstitution(res)
		report.FailedProbes = len(set.Failed())
		result = &Result{Artifact: art, Report: report}
	}

	if prev != nil {
		if err := result.Artifact.Merge(prev); err != nil {
			return nil, err
		}
	}
	r.log.Info("recovery finished", map[string]interface{}{
		"mode":      string(result.Artifact.Mode),
		"positions": len(result.Report.Positions),
	})
	return result, collectErr
}

func (r *Recoverer) buildKeystream(ctx context.Context, col *collector.Collector, s types.Structure, subSet *types.SampleSet) (*Result, error) {
	kb := tables.NewKeystreamBuilder(s, r.knownPlaintext(), r.options.ValidationFetches)
	set, collectErr := col.Collect(ctx, kb.Plan())
	if collectErr != nil {
		return nil, collectErr
	}
	kres, err := kb.Build(set)
	if err != nil {
		return nil, err
	}

	art := artifact.New(r.options.Provider, types.ModeKeystream)
	art.SetStructure(s)
	art.SetKeystream(kres)

	report := tables.NewReport(r.options.Provider, types.ModeKeystream)
	report.FromKeystream(kres)
	report.FailedProbes = len(subSet.Failed()) + len(set.Failed())
	return &Result{Artifact: art, Report: report}, nil
}

// gapPlan plans position sweeps only for positions the previous artifact
// does not carry.
func (r *Recoverer) gapPlan(prev *artifact.Artifact) collector.Plan {
	have := make(map[int]bool, len(prev.Positions))
	for _, pt := range prev.Positions {
		have[pt.Position] = true
	}
	var plan collector.Plan
	for p := 0; p < r.options.MaxPosition; p++ {
		if !have[p] {
			plan.Append(collector.PositionSweep(p, r.options.Filler, r.options.Alphabet))
		}
	}
	return plan
}

// knownPlaintext builds a fully known probe string spanning every
// recoverable position by cycling the alphabet.
func (r *Recoverer) knownPlaintext() string {
	var b strings.Builder
	for b.Len() < r.options.MaxPosition {
		b.WriteString(r.options.Alphabet)
	}
	return b.String()[:r.options.MaxPosition]
}

func (r *Recoverer) analyzerParams() analyzer.Params {
	return analyzer.Params{
		Filler:    r.options.Filler,
		AltFiller: r.options.AltFiller,
		HeadChars: defaultHeadChars,
		SweepLen:  defaultSweepLen,
	}
}
