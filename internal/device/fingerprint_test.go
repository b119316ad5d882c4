package device

import (
	"strings"
	"testing"
)

func TestFingerprint_Deterministic(t *testing.T) {
	first := Fingerprint()
	second := Fingerprint()

	if first != second {
		t.Errorf("fingerprint not stable: %q vs %q", first, second)
	}
	if len(first) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(first))
	}
}

func TestFingerprint_MissingAttributes(t *testing.T) {
	// All-unknown attributes must still hash cleanly
	attrs := Attributes{
		Hostname: unknownAttribute,
		Platform: unknownAttribute,
		Arch:     unknownAttribute,
		Timezone: unknownAttribute,
		Locale:   unknownAttribute,
		CPUCount: unknownAttribute,
	}

	fp := attrs.Fingerprint()
	if fp == "" {
		t.Fatal("fingerprint should never be empty")
	}
	if strings.ContainsAny(fp, "|") {
		t.Error("fingerprint should be a hex digest, not raw attributes")
	}
}

func TestFingerprint_AttributeSensitivity(t *testing.T) {
	a := Attributes{Hostname: "bench-01", Platform: "linux", Arch: "amd64", Timezone: "CET", Locale: "es_ES", CPUCount: "8"}
	b := a
	b.Hostname = "bench-02"

	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different hostnames should produce different fingerprints")
	}
}

func TestCollect_NeverEmpty(t *testing.T) {
	attrs := Collect()

	for name, v := range map[string]string{
		"hostname": attrs.Hostname,
		"platform": attrs.Platform,
		"arch":     attrs.Arch,
		"timezone": attrs.Timezone,
		"locale":   attrs.Locale,
		"cpus":     attrs.CPUCount,
	} {
		if v == "" {
			t.Errorf("attribute %s is empty; want value or %q", name, unknownAttribute)
		}
	}
}
