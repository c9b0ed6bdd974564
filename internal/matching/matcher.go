package matching

import (
	"errors"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/your-org/faceshare/internal/models"
)

// ErrIncompatibleDescriptor marks a query/candidate pair whose vectors
// live in different embedding spaces. The pair is skipped; the match
// as a whole continues.
var ErrIncompatibleDescriptor = errors.New("incompatible descriptor dimensionality")

// Matcher decides which registered users appear in a photo by comparing
// detected descriptors against the stored pool.
//
// A user is included if ANY of their descriptors is within tolerance of
// ANY query descriptor. This is deliberately recall-favoring: a single
// close pair is enough, even when the user's other descriptors are far
// away. Tightening this to a per-user best-distance rule would change
// who receives photos and needs a product decision first.
type Matcher struct {
	tolerance float64
}

func New(tolerance float64) *Matcher {
	return &Matcher{tolerance: tolerance}
}

// EuclideanDistance computes the distance between two raw descriptor
// vectors. No normalization is applied; the inputs must already share
// an embedding space.
func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrIncompatibleDescriptor
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Match returns the ids of all users with at least one descriptor
// strictly closer than the tolerance to at least one query descriptor.
// A distance exactly equal to the tolerance is not a match.
//
// The candidate pool is assumed to be quality-filtered already (see
// MatchCandidates on the store). Pairs with mismatched dimensionality
// are skipped and logged, never fatal.
func (m *Matcher) Match(query [][]float32, candidates []models.FaceDescriptor) []uuid.UUID {
	if len(query) == 0 || len(candidates) == 0 {
		return nil
	}

	matched := make(map[uuid.UUID]struct{})
	skipped := 0

	for _, q := range query {
		for _, cand := range candidates {
			if _, ok := matched[cand.UserID]; ok {
				continue
			}

			dist, err := EuclideanDistance(q, cand.Embedding)
			if err != nil {
				skipped++
				continue
			}

			if dist < m.tolerance {
				matched[cand.UserID] = struct{}{}
			}
		}
	}

	if skipped > 0 {
		slog.Warn("skipped incompatible descriptor pairs",
			"skipped", skipped,
			"query_descriptors", len(query),
			"candidates", len(candidates),
		)
	}

	ids := make([]uuid.UUID, 0, len(matched))
	for id := range matched {
		ids = append(ids, id)
	}
	return ids
}
