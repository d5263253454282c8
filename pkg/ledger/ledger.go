// Package ledger defines the read-only ledger snapshot that oscript resolvers
// query, with in-memory and SQLite-backed implementations.
package ledger

import (
	"context"
	"encoding/json"
)

// BaseAsset is the identifier of the native currency.
const BaseAsset = "base"

// FeedPosting is one value posted by an oracle under a feed name.
type FeedPosting struct {
	Oracle   string `yaml:"oracle"`
	FeedName string `yaml:"feed_name"`
	Value    string `yaml:"value"`
	MCI      int64  `yaml:"mci"`
	Seq      int64  `yaml:"seq"`
	Unit     string `yaml:"unit"`
}

// Attestation is a set of fields an attestor published about an address.
type Attestation struct {
	Attestor string            `yaml:"attestor"`
	Address  string            `yaml:"address"`
	Fields   map[string]string `yaml:"fields"`
	MCI      int64             `yaml:"mci"`
	Seq      int64             `yaml:"seq"`
	Unit     string            `yaml:"unit"`
}

// AssetInfo describes an asset definition. Cap is 0 for uncapped assets.
type AssetInfo struct {
	ID                  string  `yaml:"id"`
	Cap                 float64 `yaml:"cap"`
	IsPrivate           bool    `yaml:"is_private"`
	IsTransferrable     bool    `yaml:"is_transferrable"`
	AutoDestroy         bool    `yaml:"auto_destroy"`
	FixedDenominations  bool    `yaml:"fixed_denominations"`
	IssuedByDefinerOnly bool    `yaml:"issued_by_definer_only"`
	CosignedByDefiner   bool    `yaml:"cosigned_by_definer"`
	SpenderAttested     bool    `yaml:"spender_attested"`
	IsIssued            bool    `yaml:"is_issued"`
	DefinerAddress      string  `yaml:"definer_address"`
}

// BaseAssetInfo describes the native currency.
var BaseAssetInfo = AssetInfo{
	ID:                  BaseAsset,
	Cap:                 1e15,
	IsTransferrable:     true,
	IssuedByDefinerOnly: true,
	IsIssued:            true,
}

// Output is a payment output of a unit.
type Output struct {
	Address string `yaml:"address"`
	Asset   string `yaml:"asset"`
	Amount  int64  `yaml:"amount"`
}

// Input is a spent input of a unit.
type Input struct {
	Address string `yaml:"address"`
	Asset   string `yaml:"asset"`
	Amount  int64  `yaml:"amount"`
}

// Unit is the containing unit visible to non-AA formulas.
type Unit struct {
	Inputs  []Input  `yaml:"inputs"`
	Outputs []Output `yaml:"outputs"`
}

// Trigger is the transaction that activated an AA.
type Trigger struct {
	Address        string          `yaml:"address"`
	InitialAddress string          `yaml:"initial_address"`
	Unit           string          `yaml:"unit"`
	Outputs        []Output        `yaml:"outputs"`
	Data           json.RawMessage `yaml:"-"`
}

// FeedQuery selects postings by oracle set, feed name and MCI window.
type FeedQuery struct {
	Oracles  []string
	FeedName string
	MinMCI   int64
	MaxMCI   int64
}

// AttestationQuery selects attestations of one address by a set of attestors.
type AttestationQuery struct {
	Attestors []string
	Address   string
	MaxMCI    int64
}

// Reader is a read-only view of ledger state as of the triggering MCI.
// Implementations must not mutate state while an evaluation reads it.
// DataFeeds and Attestations return entries newest first; resolvers take
// that order as given.
type Reader interface {
	DataFeeds(ctx context.Context, q FeedQuery) ([]FeedPosting, error)
	Attestations(ctx context.Context, q AttestationQuery) ([]Attestation, error)
	Asset(ctx context.Context, id string) (AssetInfo, bool, error)
	Balance(ctx context.Context, address, asset string) (int64, error)
	IsAA(ctx context.Context, address string) (bool, error)
}

// Verifier checks signed packages on behalf of is_valid_signed_package.
type Verifier interface {
	VerifySignedPackage(ctx context.Context, signedPackage json.RawMessage, address string) (bool, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, signedPackage json.RawMessage, address string) (bool, error)

func (f VerifierFunc) VerifySignedPackage(ctx context.Context, signedPackage json.RawMessage, address string) (bool, error) {
	return f(ctx, signedPackage, address)
}

// Later reports whether a was posted after b.
func Later(aMCI, aSeq, bMCI, bSeq int64) bool {
	if aMCI != bMCI {
		return aMCI > bMCI
	}
	return aSeq > bSeq
}
