package ledger

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BalanceEntry is one address/asset balance of a fixture.
type BalanceEntry struct {
	Address string `yaml:"address"`
	Asset   string `yaml:"asset"`
	Amount  int64  `yaml:"amount"`
}

// TriggerFixture is the YAML form of a Trigger. Data is a JSON document so
// that object key order survives decoding.
type TriggerFixture struct {
	Address        string   `yaml:"address"`
	InitialAddress string   `yaml:"initial_address"`
	Unit           string   `yaml:"unit"`
	Outputs        []Output `yaml:"outputs"`
	Data           string   `yaml:"data"`
}

// Trigger converts the fixture into a Trigger.
func (t TriggerFixture) Trigger() (Trigger, error) {
	trig := Trigger{
		Address:        t.Address,
		InitialAddress: t.InitialAddress,
		Unit:           t.Unit,
		Outputs:        t.Outputs,
	}
	if trig.InitialAddress == "" {
		trig.InitialAddress = trig.Address
	}
	if t.Data != "" {
		if !json.Valid([]byte(t.Data)) {
			return Trigger{}, fmt.Errorf("trigger data is not valid JSON")
		}
		trig.Data = json.RawMessage(t.Data)
	}
	return trig, nil
}

// Fixture is a ledger snapshot described in YAML, used by the CLI and tests.
type Fixture struct {
	MCI          int64           `yaml:"mci"`
	Timestamp    int64           `yaml:"timestamp"`
	MCUnit       string          `yaml:"mc_unit"`
	DataFeeds    []FeedPosting   `yaml:"data_feeds"`
	Attestations []Attestation   `yaml:"attestations"`
	Assets       []AssetInfo     `yaml:"assets"`
	Balances     []BalanceEntry  `yaml:"balances"`
	AAs          []string        `yaml:"aas"`
	Trigger      *TriggerFixture `yaml:"trigger"`
	Unit         *Unit           `yaml:"unit"`
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ledger fixture: %w", err)
	}
	return &f, nil
}

// LoadFixture reads and decodes a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFixture(data)
}

// Memory builds an in-memory snapshot from the fixture.
func (f *Fixture) Memory() *Memory {
	m := NewMemory()
	for _, p := range f.DataFeeds {
		m.AddFeed(p)
	}
	for _, a := range f.Attestations {
		m.AddAttestation(a)
	}
	for _, a := range f.Assets {
		m.PutAsset(a)
	}
	for _, b := range f.Balances {
		m.SetBalance(b.Address, b.Asset, b.Amount)
	}
	for _, addr := range f.AAs {
		m.AddAA(addr)
	}
	return m
}
