package stdlib

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/thomasrohde/oscript/pkg/evaluator"
)

// sha256(string) → base64 digest
func stdlibSha256(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	s, err := str(args[0])
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(s))
	return evaluator.NewString(base64.StdEncoding.EncodeToString(sum[:])), nil
}

// seedFraction maps a seed to [0, 1) using the first 64 bits of its SHA-256.
func seedFraction(seed string) float64 {
	sum := sha256.Sum256([]byte(seed))
	return float64(binary.BigEndian.Uint64(sum[:8])) / math.Exp2(64)
}

// number_from_seed(seed [, max] | [, min, max])
func stdlibNumberFromSeed(_ evaluator.CallEnv, args []evaluator.Value) (evaluator.Value, error) {
	seed, err := str(args[0])
	if err != nil {
		return nil, err
	}
	frac := seedFraction(seed)
	if len(args) == 1 {
		return evaluator.NewNumber(frac), nil
	}

	lo, hi := 0, 0
	if len(args) == 2 {
		hi, err = integer(args[1], "max")
	} else {
		lo, err = integer(args[1], "min")
		if err == nil {
			hi, err = integer(args[2], "max")
		}
	}
	if err != nil {
		return nil, err
	}
	if hi < lo {
		return nil, fmt.Errorf("max %d is less than min %d", hi, lo)
	}
	span := float64(hi-lo) + 1
	n := math.Floor(frac*span) + float64(lo)
	if n > float64(hi) {
		n = float64(hi)
	}
	return evaluator.NewNumber(n), nil
}
