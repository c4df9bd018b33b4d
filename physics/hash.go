package physics

import (
	"hash/fnv"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// DeterminismHash is the canonical fingerprint of a world
type DeterminismHash struct {
	Hash  string
	Parts []string
}

// BuildDeterminismHash serializes body positions in ID order followed by
// the optional ITSEQ, SUBSEQ, METRICS and DIAG segments, and hashes the
// result with 32-bit FNV-1a.
func BuildDeterminismHash(w *World) DeterminismHash {
	bodies := w.Bodies()
	sort.SliceStable(bodies, func(i, j int) bool { return bodies[i].ID < bodies[j].ID })

	parts := make([]string, 0, len(bodies)+4)
	for _, b := range bodies {
		parts = append(parts, strconv.Itoa(b.ID)+":"+fixed3(b.Pos.X)+","+fixed3(b.Pos.Y))
	}
	if len(w.adaptive.log) > 0 {
		parts = append(parts, "ITSEQ:"+strings.Join(w.adaptive.log, ","))
	}
	if len(w.substeps.log) > 0 {
		parts = append(parts, "SUBSEQ:"+strings.Join(w.substeps.log, ","))
	}
	if w.det.metrics {
		parts = append(parts, "METRICS:"+strconv.Itoa(w.det.totalIterations)+","+strconv.Itoa(w.det.finalContactCount))
		if w.det.diagnostics {
			diag := []string{"bp=" + strconv.Itoa(w.det.diagPairs)}
			if w.det.diagHasDisp {
				diag = append(diag, "msd="+round3(w.det.diagDisp))
			}
			if w.det.diagMassKey != "" {
				diag = append(diag, "msm="+w.det.diagMassKey)
			}
			parts = append(parts, "DIAG:"+strings.Join(diag, ";"))
		}
	}
	return DeterminismHash{Hash: FNV1a(strings.Join(parts, "|")), Parts: parts}
}

// FNV1a returns the 32-bit FNV-1a hash of s as lowercase hex without padding
func FNV1a(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return strconv.FormatUint(uint64(h.Sum32()), 16)
}

var half = big.NewFloat(0.5)

// fixed3 formats v with three decimals the way Number.prototype.toFixed(3)
// does: the exact binary value is rounded to the nearest thousandth, ties
// go to the larger magnitude, a negative sign is kept for values that round
// to zero, and negative zero prints as 0.000.
func fixed3(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) >= 1e21 {
		return strconv.FormatFloat(v, 'f', 3, 64)
	}
	neg := v < 0
	if neg {
		v = -v
	}
	y := new(big.Float).SetPrec(128).SetFloat64(v)
	y.Mul(y, big.NewFloat(1000))
	n, _ := y.Int(nil)
	frac := new(big.Float).SetPrec(128).SetInt(n)
	frac.Sub(y, frac)
	if frac.Cmp(half) >= 0 {
		n.Add(n, big.NewInt(1))
	}

	digits := n.String()
	for len(digits) < 4 {
		digits = "0" + digits
	}
	s := digits[:len(digits)-3] + "." + digits[len(digits)-3:]
	if neg {
		s = "-" + s
	}
	return s
}

// round3 rounds v to three decimals with half-up rounding and prints the
// shortest form, so 12.5 stays "12.5" and -0 prints as "0".
func round3(v float64) string {
	r := math.Floor(v*1000+0.5) / 1000
	if r == 0 {
		r = 0
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}
