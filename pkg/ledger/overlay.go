package ledger

import (
	"context"
)

// Overlay layers postings and attestations made earlier in the same trigger
// chain on top of a base snapshot. They share the triggering MCI, become
// visible to later steps of the chain and rank after every base entry of
// that MCI.
type Overlay struct {
	base  Reader
	extra *Memory
}

// NewOverlay wraps base with an empty chain-scoped layer.
func NewOverlay(base Reader) *Overlay {
	return &Overlay{base: base, extra: NewMemory()}
}

// AddFeed records a posting made by an earlier step of the chain.
func (o *Overlay) AddFeed(p FeedPosting) {
	o.extra.AddFeed(p)
}

// AddAttestation records an attestation made by an earlier step of the chain.
func (o *Overlay) AddAttestation(a Attestation) {
	o.extra.AddAttestation(a)
}

func (o *Overlay) DataFeeds(ctx context.Context, q FeedQuery) ([]FeedPosting, error) {
	fromBase, err := o.base.DataFeeds(ctx, q)
	if err != nil {
		return nil, err
	}
	fromChain, _ := o.extra.DataFeeds(ctx, q)
	return mergeLatest(fromChain, fromBase, func(p FeedPosting) int64 { return p.MCI }), nil
}

func (o *Overlay) Attestations(ctx context.Context, q AttestationQuery) ([]Attestation, error) {
	fromBase, err := o.base.Attestations(ctx, q)
	if err != nil {
		return nil, err
	}
	fromChain, _ := o.extra.Attestations(ctx, q)
	return mergeLatest(fromChain, fromBase, func(a Attestation) int64 { return a.MCI }), nil
}

func (o *Overlay) Asset(ctx context.Context, id string) (AssetInfo, bool, error) {
	return o.base.Asset(ctx, id)
}

func (o *Overlay) Balance(ctx context.Context, address, asset string) (int64, error) {
	return o.base.Balance(ctx, address, asset)
}

func (o *Overlay) IsAA(ctx context.Context, address string) (bool, error) {
	return o.base.IsAA(ctx, address)
}

// mergeLatest merges two newest-first lists. At equal MCI the chain entry
// comes first, whatever its sequence number.
func mergeLatest[T any](chain, base []T, mci func(T) int64) []T {
	if len(chain) == 0 {
		return base
	}
	out := make([]T, 0, len(chain)+len(base))
	i, j := 0, 0
	for i < len(chain) && j < len(base) {
		if mci(chain[i]) >= mci(base[j]) {
			out = append(out, chain[i])
			i++
		} else {
			out = append(out, base[j])
			j++
		}
	}
	out = append(out, chain[i:]...)
	return append(out, base[j:]...)
}
