// Package attendance wires the recognition pipeline: embeddings in, presence
// records out. The service owns no state of its own; it coordinates the
// gallery, matcher, session registry, ledger, and notification bus.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mhornych/presence/internal/bus"
	"github.com/mhornych/presence/internal/embedding"
	"github.com/mhornych/presence/internal/gallery"
	"github.com/mhornych/presence/internal/ledger"
	"github.com/mhornych/presence/internal/matcher"
	"github.com/mhornych/presence/internal/provider"
	"github.com/mhornych/presence/internal/session"
)

// ErrNoActiveSession is returned when recognition is attempted in a context
// with no running session.
var ErrNoActiveSession = errors.New("no active session in this context")

// ProbeResult is the outcome for one probe: the match decision plus, for
// recognized probes, the ledger outcome.
type ProbeResult struct {
	Match   matcher.Result
	Outcome *ledger.Outcome // nil when the probe was rejected
	Err     error           // per-probe failure, never aborts the batch
}

// Service coordinates the full recognition flow.
type Service struct {
	Gallery  *gallery.Gallery
	Matcher  *matcher.Matcher
	Registry *session.Registry
	Ledger   *ledger.Ledger
	Bus      *bus.Bus
	Provider provider.Provider
}

// RecognizeImage extracts face embeddings from an image and runs them through
// the recognition pipeline against the active session in the given context.
func (s *Service) RecognizeImage(ctx context.Context, imageData []byte, contextName string, now time.Time) ([]ProbeResult, error) {
	probes, err := s.Provider.Extract(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("extracting embeddings: %w", err)
	}
	return s.Recognize(ctx, probes, contextName, now)
}

// Recognize matches each probe independently and records presence for the
// recognized ones. A failing probe yields a ProbeResult with Err set; it
// never affects other probes in the batch.
func (s *Service) Recognize(ctx context.Context, probes []embedding.Vector, contextName string, now time.Time) ([]ProbeResult, error) {
	sess := s.Registry.Current(contextName)
	if sess == nil {
		return nil, ErrNoActiveSession
	}

	results := make([]ProbeResult, 0, len(probes))
	for _, probe := range probes {
		results = append(results, s.recognizeOne(probe, *sess, now))
	}
	return results, nil
}

func (s *Service) recognizeOne(probe embedding.Vector, sess session.Session, now time.Time) ProbeResult {
	match, err := s.Matcher.Match(probe)
	if err != nil {
		return ProbeResult{Err: fmt.Errorf("matching probe: %w", err)}
	}

	if !match.Recognized {
		s.alertOnAmbiguity(match, sess)
		return ProbeResult{Match: match}
	}

	outcome, err := s.Ledger.Record(match.IdentityID, match.DisplayName, sess, match.Confidence, now)
	if err != nil {
		return ProbeResult{Match: match, Err: fmt.Errorf("recording presence: %w", err)}
	}
	return ProbeResult{Match: match, Outcome: &outcome}
}

// alertOnAmbiguity raises a security alert when a probe scored above the
// accept threshold but matched two identities too closely to pick one. That
// pattern is worth an operator's attention; plain low-similarity rejections
// are routine and stay quiet.
func (s *Service) alertOnAmbiguity(match matcher.Result, sess session.Session) {
	if s.Bus == nil || match.Reason != matcher.ReasonAmbiguousTop2 {
		return
	}
	s.Bus.Publish(bus.KindSecurityAlert, bus.SeverityMedium,
		"Ambiguous face match",
		fmt.Sprintf("A probe in %s matched two enrolled identities within the ambiguity margin (best %.2f).", sess.Subject, match.BestSimilarity),
		map[string]any{
			"session_id":      sess.ID,
			"subject":         sess.Subject,
			"best_similarity": match.BestSimilarity,
		},
	)
}
