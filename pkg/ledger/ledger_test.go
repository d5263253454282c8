package ledger_test

import (
	"context"
	"testing"

	"github.com/thomasrohde/oscript/pkg/ledger"
)

const fixtureYAML = `
mci: 100
timestamp: 1700000000
data_feeds:
  - {oracle: ORACLE1, feed_name: BTC_USD, value: "100", mci: 90, seq: 1, unit: U1}
  - {oracle: ORACLE2, feed_name: BTC_USD, value: "110", mci: 95, seq: 1, unit: U2}
  - {oracle: ORACLE1, feed_name: BTC_USD, value: "120", mci: 95, seq: 2, unit: U3}
  - {oracle: ORACLE1, feed_name: BTC_USD, value: "130", mci: 101, seq: 1, unit: U4}
  - {oracle: ORACLE3, feed_name: BTC_USD, value: "999", mci: 50, seq: 1, unit: U5}
attestations:
  - {attestor: ATT1, address: USER1, fields: {email: a@example.com}, mci: 80, seq: 1, unit: A1}
  - {attestor: ATT1, address: USER1, fields: {email: b@example.com}, mci: 85, seq: 1, unit: A2}
assets:
  - {id: "ASSET1", cap: 1000000, is_transferrable: true, definer_address: DEFINER}
balances:
  - {address: AA1, asset: base, amount: 5000}
aas: [AA1]
trigger:
  address: USER1
  unit: TRIGGER_UNIT
  outputs:
    - {address: AA1, asset: base, amount: 10000}
  data: '{"b": 1, "a": {"x": true}}'
`

func readers(t *testing.T) map[string]ledger.Reader {
	t.Helper()
	f, err := ledger.ParseFixture([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	sqlLedger, err := ledger.OpenSQL(":memory:")
	if err != nil {
		t.Fatalf("open sql ledger: %v", err)
	}
	t.Cleanup(func() { sqlLedger.Close() })
	if err := sqlLedger.Import(context.Background(), f); err != nil {
		t.Fatalf("import fixture: %v", err)
	}
	return map[string]ledger.Reader{
		"memory": f.Memory(),
		"sql":    sqlLedger,
	}
}

func TestDataFeedsOrderAndVisibility(t *testing.T) {
	for name, r := range readers(t) {
		t.Run(name, func(t *testing.T) {
			got, err := r.DataFeeds(context.Background(), ledger.FeedQuery{
				Oracles:  []string{"ORACLE1", "ORACLE2"},
				FeedName: "BTC_USD",
				MaxMCI:   100,
			})
			if err != nil {
				t.Fatal(err)
			}
			want := []string{"U3", "U2", "U1"}
			if len(got) != len(want) {
				t.Fatalf("got %d postings, want %d: %+v", len(got), len(want), got)
			}
			for i, p := range got {
				if p.Unit != want[i] {
					t.Errorf("posting %d: got %s, want %s", i, p.Unit, want[i])
				}
			}
		})
	}
}

func TestDataFeedsMinMCI(t *testing.T) {
	for name, r := range readers(t) {
		t.Run(name, func(t *testing.T) {
			got, _ := r.DataFeeds(context.Background(), ledger.FeedQuery{
				Oracles:  []string{"ORACLE1"},
				FeedName: "BTC_USD",
				MinMCI:   91,
				MaxMCI:   200,
			})
			if len(got) != 2 || got[0].Unit != "U4" {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestAttestations(t *testing.T) {
	for name, r := range readers(t) {
		t.Run(name, func(t *testing.T) {
			got, err := r.Attestations(context.Background(), ledger.AttestationQuery{
				Attestors: []string{"ATT1"},
				Address:   "USER1",
				MaxMCI:    100,
			})
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].Fields["email"] != "b@example.com" {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestAssetsBalancesAAs(t *testing.T) {
	ctx := context.Background()
	for name, r := range readers(t) {
		t.Run(name, func(t *testing.T) {
			a, ok, err := r.Asset(ctx, "ASSET1")
			if err != nil || !ok || a.Cap != 1000000 || a.DefinerAddress != "DEFINER" || !a.IsTransferrable {
				t.Errorf("asset: %+v ok=%v err=%v", a, ok, err)
			}
			if _, ok, _ := r.Asset(ctx, "MISSING"); ok {
				t.Errorf("missing asset should not exist")
			}
			base, ok, _ := r.Asset(ctx, ledger.BaseAsset)
			if !ok || base.Cap != 1e15 {
				t.Errorf("base asset: %+v", base)
			}
			if bal, _ := r.Balance(ctx, "AA1", "base"); bal != 5000 {
				t.Errorf("balance: got %d", bal)
			}
			if bal, _ := r.Balance(ctx, "AA1", "ASSET1"); bal != 0 {
				t.Errorf("unknown balance: got %d", bal)
			}
			if isAA, _ := r.IsAA(ctx, "AA1"); !isAA {
				t.Errorf("AA1 should be an AA")
			}
			if isAA, _ := r.IsAA(ctx, "USER1"); isAA {
				t.Errorf("USER1 should not be an AA")
			}
		})
	}
}

func TestTriggerFixture(t *testing.T) {
	f, err := ledger.ParseFixture([]byte(fixtureYAML))
	if err != nil {
		t.Fatal(err)
	}
	trig, err := f.Trigger.Trigger()
	if err != nil {
		t.Fatal(err)
	}
	if trig.InitialAddress != "USER1" {
		t.Errorf("initial address should default to address, got %q", trig.InitialAddress)
	}
	if string(trig.Data) != `{"b": 1, "a": {"x": true}}` {
		t.Errorf("data: %s", trig.Data)
	}
	bad := ledger.TriggerFixture{Data: "{oops"}
	if _, err := bad.Trigger(); err == nil {
		t.Error("expected invalid JSON error")
	}
}

func TestOverlayAddsChainPostings(t *testing.T) {
	f, _ := ledger.ParseFixture([]byte(fixtureYAML))
	o := ledger.NewOverlay(f.Memory())
	o.AddFeed(ledger.FeedPosting{Oracle: "ORACLE2", FeedName: "BTC_USD", Value: "140", MCI: 100, Seq: 7, Unit: "CHAIN"})
	got, err := o.DataFeeds(context.Background(), ledger.FeedQuery{
		Oracles:  []string{"ORACLE1", "ORACLE2"},
		FeedName: "BTC_USD",
		MaxMCI:   100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[0].Unit != "CHAIN" {
		t.Errorf("chain posting should come first, got %+v", got)
	}
}

func TestOverlayRanksChainAfterBaseAtSameMCI(t *testing.T) {
	ctx := context.Background()
	base := ledger.NewMemory()
	base.AddFeed(ledger.FeedPosting{Oracle: "ORACLE1", FeedName: "P", Value: "base", MCI: 100, Seq: 9})
	base.AddFeed(ledger.FeedPosting{Oracle: "ORACLE1", FeedName: "P", Value: "old", MCI: 90, Seq: 1})
	base.AddAttestation(ledger.Attestation{Attestor: "ATT1", Address: "USER1", MCI: 100, Seq: 9, Unit: "base"})

	o := ledger.NewOverlay(base)
	o.AddFeed(ledger.FeedPosting{Oracle: "ORACLE1", FeedName: "P", Value: "chain", MCI: 100, Seq: 1})
	o.AddAttestation(ledger.Attestation{Attestor: "ATT1", Address: "USER1", MCI: 100, Seq: 1, Unit: "chain"})

	feeds, err := o.DataFeeds(ctx, ledger.FeedQuery{Oracles: []string{"ORACLE1"}, FeedName: "P", MaxMCI: 100})
	if err != nil {
		t.Fatal(err)
	}
	var values []string
	for _, p := range feeds {
		values = append(values, p.Value)
	}
	if len(values) != 3 || values[0] != "chain" || values[1] != "base" || values[2] != "old" {
		t.Errorf("feed order = %v", values)
	}

	atts, err := o.Attestations(ctx, ledger.AttestationQuery{Attestors: []string{"ATT1"}, Address: "USER1", MaxMCI: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(atts) != 2 || atts[0].Unit != "chain" {
		t.Errorf("attestation order = %+v", atts)
	}
}
