package evaluator

import (
	"fmt"

	"github.com/thomasrohde/oscript/pkg/ast"
	"github.com/thomasrohde/oscript/pkg/diagnostics"
)

// Operations charged by the meter.
const (
	OpStateRead     = "state_var_read"
	OpStateWrite    = "state_var_write"
	OpAsset         = "asset"
	OpDataFeed      = "data_feed"
	OpInDataFeed    = "in_data_feed"
	OpAttestation   = "attestation"
	OpBalance       = "balance"
	OpSignedPackage = "is_valid_signed_package"
)

// Meter counts chargeable operations against a ceiling. A ceiling of zero or
// less disables the limit. Every executed operation costs exactly one unit,
// so at runtime complexity and the operation count are the same number; only
// static validation tells them apart (worst path versus all sites).
type Meter struct {
	Ceiling    int
	complexity int
	charges    map[string]int
}

// NewMeter creates a meter with the given ceiling.
func NewMeter(ceiling int) *Meter {
	return &Meter{Ceiling: ceiling, charges: make(map[string]int)}
}

// Charge records one execution of op. It fails once the total exceeds the
// ceiling; callers charge before applying any side effect of op.
func (m *Meter) Charge(op string, span ast.Span) error {
	m.complexity++
	m.charges[op]++
	if m.Ceiling > 0 && m.complexity > m.Ceiling {
		s := span
		return &RuntimeError{
			Kind:    KindComplexityExceeded,
			Code:    diagnostics.EComplexity,
			Message: fmt.Sprintf("complexity exceeded: %d > %d (at %s)", m.complexity, m.Ceiling, op),
			Span:    &s,
		}
	}
	return nil
}

// Complexity returns the units charged so far.
func (m *Meter) Complexity() int {
	return m.complexity
}

// CountOps returns the number of charged operations so far. It always equals
// Complexity.
func (m *Meter) CountOps() int {
	return m.complexity
}

// Charges returns a copy of the per-operation breakdown.
func (m *Meter) Charges() map[string]int {
	out := make(map[string]int, len(m.charges))
	for k, v := range m.charges {
		out[k] = v
	}
	return out
}
