package gallery

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

// DefaultThreshold is the acceptance threshold on cosine distance.
const DefaultThreshold = 0.40

// IdentityLookup resolves a gallery filename to its registry row.
type IdentityLookup interface {
	FindByFilenameFragment(ctx context.Context, fragment string) (*domain.EnrolledIdentity, error)
}

// Matcher finds the enrolled identity closest to a face crop.
type Matcher struct {
	embedder   provider.Embedder
	index      *Index
	identities IdentityLookup
	threshold  float64
}

func NewMatcher(embedder provider.Embedder, index *Index, identities IdentityLookup, threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Matcher{
		embedder:   embedder,
		index:      index,
		identities: identities,
		threshold:  threshold,
	}
}

// Match embeds crop and searches the current gallery snapshot.
//
// A neighbour beyond the threshold is reported with Found=false. A hit
// whose file has no registry row is reported with Found=true and a nil
// Identity. Every failure is an ErrMatch.
func (m *Matcher) Match(ctx context.Context, crop []byte) (*domain.MatchResult, error) {
	embedding, err := m.embedder.Embed(ctx, crop)
	if err != nil {
		return nil, domain.ErrMatch.WithError(fmt.Errorf("embed face: %w", err))
	}

	neighbor, ok, err := m.index.Nearest(embedding)
	if err != nil {
		return nil, domain.ErrMatch.WithError(fmt.Errorf("search gallery: %w", err))
	}
	if !ok {
		return &domain.MatchResult{}, nil
	}

	result := &domain.MatchResult{
		Filename: neighbor.Filename,
		Distance: neighbor.Distance,
	}
	if neighbor.Distance > m.threshold {
		return result, nil
	}
	result.Found = true

	identity, err := m.identities.FindByFilenameFragment(ctx, neighbor.Filename)
	if err != nil {
		return nil, domain.ErrMatch.WithError(fmt.Errorf("lookup identity for %s: %w", neighbor.Filename, err))
	}
	result.Identity = identity

	return result, nil
}
