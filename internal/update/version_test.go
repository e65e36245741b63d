package update

import (
	"testing"

	apperrors "launchpad/internal/errors"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a    Version
		b    Version
		want Ordering
	}{
		{name: "equal", a: NewVersion("1.2.3"), b: NewVersion("1.2.3"), want: Same},
		{name: "patch older", a: NewVersion("1.0.0"), b: NewVersion("1.0.1"), want: Older},
		{name: "minor newer", a: NewVersion("1.3.0"), b: NewVersion("1.2.9"), want: Newer},
		{name: "major dominates", a: NewVersion("2.0.0"), b: NewVersion("1.99.99"), want: Newer},
		{name: "numeric not lexical", a: NewVersion("1.10.0"), b: NewVersion("1.9.0"), want: Newer},
		{name: "padding equal", a: NewVersion("1.2"), b: NewVersion("1.2.0"), want: Same},
		{name: "padding deep equal", a: NewVersion("1"), b: NewVersion("1.0.0.0"), want: Same},
		{name: "padding older", a: NewVersion("1.2"), b: NewVersion("1.2.0.1"), want: Older},
		{name: "v prefix ignored", a: NewVersion("v2.0.0"), b: NewVersion("2.0.0"), want: Same},
		{name: "leading zeros", a: NewVersion("1.02"), b: NewVersion("1.2"), want: Same},
		{name: "whitespace trimmed", a: NewVersion(" 3.1\n"), b: NewVersion("3.1"), want: Same},
		{name: "absent older", a: Absent, b: NewVersion("0.0.1"), want: Older},
		{name: "absent older than zero", a: Absent, b: NewVersion("0"), want: Older},
		{name: "concrete newer than absent", a: NewVersion("0.1"), b: Absent, want: Newer},
		{name: "both absent", a: Absent, b: Absent, want: Same},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			if err != nil {
				t.Fatalf("Compare(%s, %s) error: %v", tt.a, tt.b, err)
			}
			if got != tt.want {
				t.Errorf("Compare(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCompareAntisymmetric(t *testing.T) {
	versions := []Version{
		NewVersion("0"),
		NewVersion("0.0.1"),
		NewVersion("1"),
		NewVersion("1.2"),
		NewVersion("1.2.0"),
		NewVersion("1.10"),
		NewVersion("2.0.0"),
		NewVersion("v2.0.1"),
		Absent,
	}

	for _, a := range versions {
		self, err := Compare(a, a)
		if err != nil {
			t.Fatalf("Compare(%s, %s) error: %v", a, a, err)
		}
		if self != Same {
			t.Errorf("Compare(%s, %s) = %s, want same", a, a, self)
		}
		for _, b := range versions {
			ab, err := Compare(a, b)
			if err != nil {
				t.Fatalf("Compare(%s, %s) error: %v", a, b, err)
			}
			ba, err := Compare(b, a)
			if err != nil {
				t.Fatalf("Compare(%s, %s) error: %v", b, a, err)
			}
			if ab != -ba {
				t.Errorf("Compare(%s, %s) = %s but Compare(%s, %s) = %s", a, b, ab, b, a, ba)
			}
		}
	}
}

func TestCompareMalformed(t *testing.T) {
	tests := []struct {
		name string
		a    Version
		b    Version
	}{
		{name: "letter segment", a: NewVersion("1.x.0"), b: NewVersion("1.0.0")},
		{name: "malformed right side", a: NewVersion("1.0.0"), b: NewVersion("1.x.0")},
		{name: "negative segment", a: NewVersion("1.-1"), b: NewVersion("1.0")},
		{name: "empty segment", a: NewVersion("1..2"), b: NewVersion("1.0.2")},
		{name: "trailing delimiter", a: NewVersion("1.2."), b: NewVersion("1.2")},
		{name: "prerelease suffix", a: NewVersion("1.2.3-beta"), b: NewVersion("1.2.3")},
		{name: "empty token", a: NewVersion(""), b: NewVersion("1")},
		{name: "bare v", a: NewVersion("v"), b: NewVersion("1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compare(tt.a, tt.b)
			if err == nil {
				t.Fatalf("Compare(%s, %s) should fail", tt.a, tt.b)
			}
			if !apperrors.IsCode(err, apperrors.CodeMalformedVersion) {
				t.Errorf("error code = %q, want %q", apperrors.CodeOf(err), apperrors.CodeMalformedVersion)
			}
		})
	}
}

func TestNeedsUpdate(t *testing.T) {
	tests := []struct {
		name      string
		installed Version
		latest    Version
		want      bool
		wantErr   bool
	}{
		{name: "nothing installed", installed: Absent, latest: NewVersion("2.0.0"), want: true},
		{name: "older installed", installed: NewVersion("1.0.0"), latest: NewVersion("1.0.1"), want: true},
		{name: "same installed", installed: NewVersion("2.0.0"), latest: NewVersion("2.0.0"), want: false},
		{name: "newer installed", installed: NewVersion("3.0"), latest: NewVersion("2.0.0"), want: false},
		{name: "malformed installed", installed: NewVersion("1.x.0"), latest: NewVersion("1.0.0"), want: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NeedsUpdate(tt.installed, tt.latest)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NeedsUpdate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NeedsUpdate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVersionString(t *testing.T) {
	if got := Absent.String(); got != "none" {
		t.Errorf("Absent.String() = %q, want %q", got, "none")
	}
	if got := NewVersion("v1.4").String(); got != "v1.4" {
		t.Errorf("String() = %q, want %q", got, "v1.4")
	}
	if !Absent.IsAbsent() || NewVersion("1").IsAbsent() {
		t.Error("IsAbsent() mismatch")
	}
}
