package ledger

import (
	"context"
	"sync"

	"github.com/ahrtr/gocontainer/queue/priorityqueue"
	"github.com/ahrtr/gocontainer/set"
)

// Memory is an in-memory ledger snapshot. It is safe for concurrent readers;
// writers are expected only while building the snapshot or from a chain
// overlay between evaluations.
type Memory struct {
	mu           sync.RWMutex
	feeds        []FeedPosting
	attestations []Attestation
	assets       map[string]AssetInfo
	balances     map[string]map[string]int64
	aas          set.Interface
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		assets:   make(map[string]AssetInfo),
		balances: make(map[string]map[string]int64),
		aas:      set.New(),
	}
}

// AddFeed records a data feed posting.
func (m *Memory) AddFeed(p FeedPosting) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeds = append(m.feeds, p)
}

// AddAttestation records an attestation.
func (m *Memory) AddAttestation(a Attestation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attestations = append(m.attestations, a)
}

// PutAsset records an asset definition.
func (m *Memory) PutAsset(a AssetInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[a.ID] = a
}

// SetBalance sets the balance of an address in an asset.
func (m *Memory) SetBalance(address, asset string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byAsset, ok := m.balances[address]
	if !ok {
		byAsset = make(map[string]int64)
		m.balances[address] = byAsset
	}
	byAsset[asset] = amount
}

// AddAA registers an address as an autonomous agent.
func (m *Memory) AddAA(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aas.Add(address)
}

// latestFirst orders postings and attestations newest first.
type latestFirst struct{}

func (latestFirst) Compare(v1, v2 interface{}) (int, error) {
	m1, s1 := position(v1)
	m2, s2 := position(v2)
	switch {
	case Later(m1, s1, m2, s2):
		return -1, nil
	case Later(m2, s2, m1, s1):
		return 1, nil
	}
	return 0, nil
}

func position(v interface{}) (int64, int64) {
	switch x := v.(type) {
	case FeedPosting:
		return x.MCI, x.Seq
	case Attestation:
		return x.MCI, x.Seq
	}
	return 0, 0
}

func stringSet(values []string) set.Interface {
	s := set.New()
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// DataFeeds returns matching postings, newest first.
func (m *Memory) DataFeeds(ctx context.Context, q FeedQuery) ([]FeedPosting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	oracles := stringSet(q.Oracles)
	pq := priorityqueue.New().WithComparator(latestFirst{})
	for _, p := range m.feeds {
		if !oracles.Contains(p.Oracle) || p.FeedName != q.FeedName {
			continue
		}
		if p.MCI < q.MinMCI || p.MCI > q.MaxMCI {
			continue
		}
		pq.Add(p)
	}

	out := make([]FeedPosting, 0, pq.Size())
	for !pq.IsEmpty() {
		out = append(out, pq.Poll().(FeedPosting))
	}
	return out, nil
}

// Attestations returns matching attestations, newest first.
func (m *Memory) Attestations(ctx context.Context, q AttestationQuery) ([]Attestation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	attestors := stringSet(q.Attestors)
	pq := priorityqueue.New().WithComparator(latestFirst{})
	for _, a := range m.attestations {
		if !attestors.Contains(a.Attestor) || a.Address != q.Address || a.MCI > q.MaxMCI {
			continue
		}
		pq.Add(a)
	}

	out := make([]Attestation, 0, pq.Size())
	for !pq.IsEmpty() {
		out = append(out, pq.Poll().(Attestation))
	}
	return out, nil
}

// Asset looks up an asset definition. The base asset is always defined.
func (m *Memory) Asset(ctx context.Context, id string) (AssetInfo, bool, error) {
	if id == BaseAsset {
		return BaseAssetInfo, true, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	return a, ok, nil
}

// Balance returns the balance of an address in an asset, 0 when unknown.
func (m *Memory) Balance(ctx context.Context, address, asset string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[address][asset], nil
}

// IsAA reports whether the address is a registered autonomous agent.
func (m *Memory) IsAA(ctx context.Context, address string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.aas.Contains(address), nil
}
