// Package matcher decides whether a probe embedding belongs to an enrolled
// identity. It only decides; recording presence and emitting notifications
// happen elsewhere, which keeps matching testable without persistence.
package matcher

import (
	"github.com/mhornych/presence/internal/embedding"
	"github.com/mhornych/presence/internal/gallery"
)

// Default tuning. The source system treats these as unexamined constants;
// they are deployment-tunable here via config.
const (
	// DefaultAcceptThreshold is the minimum cosine similarity for a match.
	DefaultAcceptThreshold = 0.75

	// DefaultAmbiguityMargin rejects a probe when the top two candidates are
	// closer than this, even if the top one clears the accept threshold.
	// Prevents false positives between visually similar enrolled identities.
	DefaultAmbiguityMargin = 0.02

	// topKForAmbiguity is how many candidates the matcher needs to apply the
	// ambiguity check.
	topKForAmbiguity = 2
)

// RejectReason explains why a probe was not recognized.
type RejectReason string

const (
	ReasonNoCandidates   RejectReason = "no_candidates"
	ReasonBelowThreshold RejectReason = "below_threshold"
	ReasonAmbiguousTop2  RejectReason = "ambiguous_top2"
)

// Result is the outcome of matching a single probe. Exactly one of Recognized
// or Rejected holds; rejections are expected outcomes, not errors.
type Result struct {
	Recognized bool
	// Set when Recognized.
	IdentityID  string
	DisplayName string
	Confidence  float64
	// Set when rejected.
	Reason RejectReason
	// BestSimilarity is the top candidate's similarity, also populated on
	// rejection so callers can explain "why no attendance was marked".
	BestSimilarity float64
}

// Matcher matches probes against a gallery using a confidence threshold and
// an ambiguity margin. Stateless apart from the gallery handle, safe for
// concurrent use.
type Matcher struct {
	gallery         *gallery.Gallery
	acceptThreshold float64
	ambiguityMargin float64
}

// New creates a matcher over the given gallery. Non-positive tuning values
// fall back to the defaults.
func New(g *gallery.Gallery, acceptThreshold, ambiguityMargin float64) *Matcher {
	if acceptThreshold <= 0 {
		acceptThreshold = DefaultAcceptThreshold
	}
	if ambiguityMargin <= 0 {
		ambiguityMargin = DefaultAmbiguityMargin
	}
	return &Matcher{
		gallery:         g,
		acceptThreshold: acceptThreshold,
		ambiguityMargin: ambiguityMargin,
	}
}

// AcceptThreshold returns the configured minimum similarity.
func (m *Matcher) AcceptThreshold() float64 {
	return m.acceptThreshold
}

// Match matches one probe against the gallery. Dimension mismatches surface
// as errors; empty galleries and low-confidence candidates are rejections.
func (m *Matcher) Match(probe embedding.Vector) (Result, error) {
	candidates, err := m.gallery.Lookup(probe, topKForAmbiguity)
	if err != nil {
		return Result{}, err
	}

	if len(candidates) == 0 {
		return Result{Reason: ReasonNoCandidates}, nil
	}

	best := candidates[0]
	if best.Similarity < m.acceptThreshold {
		return Result{
			Reason:         ReasonBelowThreshold,
			BestSimilarity: best.Similarity,
		}, nil
	}

	if len(candidates) > 1 && best.Similarity-candidates[1].Similarity < m.ambiguityMargin {
		return Result{
			Reason:         ReasonAmbiguousTop2,
			BestSimilarity: best.Similarity,
		}, nil
	}

	return Result{
		Recognized:     true,
		IdentityID:     best.IdentityID,
		DisplayName:    best.DisplayName,
		Confidence:     best.Similarity,
		BestSimilarity: best.Similarity,
	}, nil
}

// MatchAll matches each probe independently. No cross-probe exclusivity is
// enforced: the same identity matching two probes in one frame is reported
// as-is, not silently corrected.
func (m *Matcher) MatchAll(probes []embedding.Vector) ([]Result, error) {
	results := make([]Result, 0, len(probes))
	for _, probe := range probes {
		res, err := m.Match(probe)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}
