package document

import "testing"

func TestFields_FirstValueWins(t *testing.T) {
	// WHAT: Same-named fields stay separate per section; first non-empty value is kept.
	f := Fields{}
	f.Set(SectionApplicant, FieldAddress, "")
	f.Set(SectionApplicant, FieldAddress, "Москва")
	f.Set(SectionApplicant, FieldAddress, "Тверь")
	f.Set(SectionManufacturer, FieldAddress, "Казань")

	if got := f.Get(SectionApplicant, FieldAddress); got != "Москва" {
		t.Fatalf("applicant address: got %q, want %q", got, "Москва")
	}
	if got := f.Get(SectionManufacturer, FieldAddress); got != "Казань" {
		t.Fatalf("manufacturer address: got %q, want %q", got, "Казань")
	}
	if got := f.Get(SectionDocument, FieldStandards); got != Unavailable {
		t.Fatalf("missing field: got %q, want %q", got, Unavailable)
	}
}

func TestParty_HasRegNumber(t *testing.T) {
	for _, tc := range []struct {
		reg  string
		want bool
	}{
		{"1027700132195", true},
		{"", false},
		{NoRegNumber, false},
		{Unavailable, false},
	} {
		if got := (Party{RegNumber: tc.reg}).HasRegNumber(); got != tc.want {
			t.Errorf("HasRegNumber(%q): got %v, want %v", tc.reg, got, tc.want)
		}
	}
}

func TestParseVerdict(t *testing.T) {
	if got := ParseVerdict("Match"); got != VerdictMatch {
		t.Fatalf("got %q", got)
	}
	if got := ParseVerdict("garbage"); got != VerdictNotEvaluated {
		t.Fatalf("unknown verdict: got %q, want not evaluated", got)
	}
}

func TestKey_String(t *testing.T) {
	k := Key{SectionManufacturer, FieldRegNumber}
	if k.String() != "manufacturer.reg_number" {
		t.Fatalf("got %q", k.String())
	}
}
