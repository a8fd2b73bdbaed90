package model

import (
	"strings"
	"testing"
)

func TestParseDigestAccepts64LowercaseHex(t *testing.T) {
	valid := strings.Repeat("a", 64)
	d, err := ParseDigest(valid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != valid {
		t.Errorf("expected %s, got %s", valid, d.String())
	}
}

func TestParseDigestRejectsWrongLength(t *testing.T) {
	if _, err := ParseDigest(strings.Repeat("a", 63)); err == nil {
		t.Error("expected error for short digest")
	}
	if _, err := ParseDigest(strings.Repeat("a", 65)); err == nil {
		t.Error("expected error for long digest")
	}
}

func TestParseDigestRejectsUppercase(t *testing.T) {
	if _, err := ParseDigest(strings.Repeat("A", 64)); err == nil {
		t.Error("expected error for uppercase hex")
	}
}

func TestParseDigestRejectsNonHex(t *testing.T) {
	bad := strings.Repeat("g", 64)
	if _, err := ParseDigest(bad); err == nil {
		t.Error("expected error for non-hex character")
	}
}

func TestDigestETag(t *testing.T) {
	d := Digest(strings.Repeat("b", 64))
	want := `"` + strings.Repeat("b", 64) + `"`
	if d.ETag() != want {
		t.Errorf("expected %s, got %s", want, d.ETag())
	}
}

func TestMatchesETagExactMatch(t *testing.T) {
	d := Digest(strings.Repeat("c", 64))
	if !d.MatchesETag(d.ETag()) {
		t.Error("expected exact ETag to match")
	}
}

func TestMatchesETagWildcard(t *testing.T) {
	d := Digest(strings.Repeat("c", 64))
	if !d.MatchesETag("*") {
		t.Error("expected wildcard to match")
	}
}

func TestMatchesETagWeakPrefix(t *testing.T) {
	d := Digest(strings.Repeat("c", 64))
	if !d.MatchesETag("W/" + d.ETag()) {
		t.Error("expected weak-prefixed ETag to match")
	}
}

func TestMatchesETagMultipleCandidates(t *testing.T) {
	d := Digest(strings.Repeat("c", 64))
	other := Digest(strings.Repeat("d", 64))
	header := other.ETag() + ", " + d.ETag()
	if !d.MatchesETag(header) {
		t.Error("expected match among comma-separated candidates")
	}
}

func TestMatchesETagNoMatch(t *testing.T) {
	d := Digest(strings.Repeat("c", 64))
	other := Digest(strings.Repeat("d", 64))
	if d.MatchesETag(other.ETag()) {
		t.Error("expected no match for different digest")
	}
}

func TestMatchesETagEmptyHeader(t *testing.T) {
	d := Digest(strings.Repeat("c", 64))
	if d.MatchesETag("") {
		t.Error("expected empty header to never match")
	}
}

func TestSumReaderComputesDigest(t *testing.T) {
	d, n, err := SumReader(strings.NewReader("hello\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 6 {
		t.Errorf("expected 6 bytes read, got %d", n)
	}
	// sha256("hello\n")
	want := "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"
	if d.String() != want {
		t.Errorf("expected %s, got %s", want, d.String())
	}
}
