package matching

import (
	"context"
	"fmt"
	"iter"
	"time"

	"bloodlink/pkg/types"

	"github.com/sirupsen/logrus"
)

// DonorSource is the read side of the datastore the finder needs.
type DonorSource interface {
	Request(ctx context.Context, requestID string) (*types.BloodRequest, error)
	ActiveDonorsByBloodType(ctx context.Context, bloodType string) ([]*types.Donor, error)
	Commitments(ctx context.Context, donorIDs []string) (Commitments, error)
}

type Finder struct {
	source DonorSource
	logger *logrus.Logger
	now    func() time.Time
}

func NewFinder(source DonorSource, logger *logrus.Logger) *Finder {
	return &Finder{source: source, logger: logger, now: time.Now}
}

// WithClock replaces the finder's clock. Used by tests and the seed command.
func (f *Finder) WithClock(now func() time.Time) *Finder {
	f.now = now
	return f
}

// Candidates loads the request and returns its ranked candidates.
func (f *Finder) Candidates(ctx context.Context, requestID string) (iter.Seq[Candidate], error) {
	req, err := f.source.Request(ctx, requestID)
	if err != nil {
		return nil, err
	}

	return f.CandidatesFor(ctx, req)
}

// CandidatesFor returns a sequence over the ranked, eligible donors for req.
// All datastore reads happen before it returns; ranking happens on the first
// iteration. The sequence can be consumed once; later ranges yield nothing.
// Requests that can no longer take a donor yield an empty sequence.
func (f *Finder) CandidatesFor(ctx context.Context, req *types.BloodRequest) (iter.Seq[Candidate], error) {
	if !Selectable(req.Status) {
		return func(func(Candidate) bool) {}, nil
	}

	donors, err := f.source.ActiveDonorsByBloodType(ctx, req.BloodType)
	if err != nil {
		return nil, fmt.Errorf("failed to list donors for request %s: %w", req.ID, err)
	}

	ids := make([]string, len(donors))
	for i, d := range donors {
		ids[i] = d.ID
	}

	commitments, err := f.source.Commitments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load donor commitments for request %s: %w", req.ID, err)
	}

	now := f.now()
	consumed := false

	return func(yield func(Candidate) bool) {
		if consumed {
			return
		}
		consumed = true

		eligible := Filter(req, donors, commitments, now)
		ranked := Rank(req, eligible)

		f.logger.WithFields(logrus.Fields{
			"request_id": req.ID,
			"blood_type": req.BloodType,
			"pool":       len(donors),
			"eligible":   len(eligible),
			"ranked":     len(ranked),
		}).Debug("ranked donor candidates")

		for _, c := range ranked {
			if !yield(c) {
				return
			}
		}
	}, nil
}

// Selectable reports whether a request in status s can still take a donor.
func Selectable(s types.RequestStatus) bool {
	return s == types.RequestStatusPending || s == types.RequestStatusApproved
}

// Take collects at most n candidates from seq. n <= 0 collects everything.
func Take(seq iter.Seq[Candidate], n int) []Candidate {
	out := make([]Candidate, 0)
	for c := range seq {
		out = append(out, c)
		if n > 0 && len(out) >= n {
			break
		}
	}
	return out
}
