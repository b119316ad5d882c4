package device

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// unknownAttribute substitutes for any environment attribute that cannot
// be determined. Fingerprinting must never fail; a missing attribute
// just lowers the (already low) entropy.
const unknownAttribute = "unknown"

// Attributes are the environment properties a fingerprint is derived
// from. They are chosen to be stable across restarts of the same
// installation, not to be unique or unforgeable.
type Attributes struct {
	Hostname string
	Platform string
	Arch     string
	Timezone string
	Locale   string
	CPUCount string
}

// Collect gathers the fingerprint attributes from the running
// environment. It is synchronous, performs no I/O beyond local system
// calls, and has no failure path.
func Collect() Attributes {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = unknownAttribute
	}

	tz := unknownAttribute
	if name, _ := time.Now().Zone(); name != "" {
		tz = name
	}

	locale := os.Getenv("LC_ALL")
	if locale == "" {
		locale = os.Getenv("LANG")
	}
	if locale == "" {
		locale = unknownAttribute
	}

	return Attributes{
		Hostname: hostname,
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		Timezone: tz,
		Locale:   locale,
		CPUCount: strconv.Itoa(runtime.NumCPU()),
	}
}

// Fingerprint derives the device fingerprint from the current
// environment. Deterministic for a given environment.
//
// The fingerprint is a correlation key for device-trust bookkeeping
// only. It is not a credential and must never be treated as an
// authentication factor.
func Fingerprint() string {
	return Collect().Fingerprint()
}

// Fingerprint hashes the attributes into the canonical fingerprint string.
func (a Attributes) Fingerprint() string {
	joined := strings.Join([]string{
		a.Hostname, a.Platform, a.Arch, a.Timezone, a.Locale, a.CPUCount,
	}, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
