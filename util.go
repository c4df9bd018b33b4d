package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// GenerateID returns a random hex string of the given byte length
func GenerateID(byteLen int) string {
	b := make([]byte, byteLen)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateUUID returns a random v4 UUID string
func GenerateUUID() string {
	return uuid.NewString()
}

// FormatMs renders a millisecond timing for reports
func FormatMs(ms float64) string {
	if ms < 1 {
		return fmt.Sprintf("%.1fµs", ms*1000)
	}
	return humanize.FtoaWithDigits(ms, 3) + "ms"
}

// FormatCount renders an integer with thousands separators
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}

// FormatBytes renders a byte size the way reports show frame sizes
func FormatBytes(n int) string {
	return humanize.Bytes(uint64(n))
}

// FormatAge renders how long ago t was
func FormatAge(t time.Time) string {
	return humanize.Time(t)
}

// Percent renders a ratio in [0,1] as a percentage with two decimals
func Percent(r float64) string {
	return fmt.Sprintf("%.2f%%", r*100)
}
