package messaging

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestValidatePhone(t *testing.T) {
	cases := []struct {
		name  string
		phone string
		valid bool
	}{
		{name: "mobile", phone: "5511987654321", valid: true},
		{name: "too short", phone: "551198765432"},
		{name: "too long", phone: "55119876543210"},
		{name: "wrong country", phone: "1511987654321"},
		{name: "plus prefix", phone: "+5511987654321"},
		{name: "letters", phone: "55119876543ab"},
		{name: "formatted", phone: "55 11 98765-4321"},
		{name: "empty", phone: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePhone(tc.phone)
			if tc.valid && err != nil {
				t.Fatalf("expected %q to be valid, got %v", tc.phone, err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidPhoneFormat) {
				t.Fatalf("expected ErrInvalidPhoneFormat for %q, got %v", tc.phone, err)
			}
		})
	}
}

func TestValidatePhoneAcceptsEveryWellFormedNumber(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		phone := rapid.StringMatching(`55[0-9]{11}`).Draw(rt, "phone")
		if err := ValidatePhone(phone); err != nil {
			rt.Fatalf("ValidatePhone(%q) = %v", phone, err)
		}
	})
}

func TestValidatePhoneRejectsWrongLength(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 20).Filter(func(n int) bool { return n != 11 }).Draw(rt, "length")
		digits := rapid.SliceOfN(rapid.ByteRange('0', '9'), n, n).Draw(rt, "digits")
		phone := "55" + string(digits)
		if IsValidPhone(phone) {
			rt.Fatalf("expected %q to be rejected", phone)
		}
	})
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"5511987654321@s.whatsapp.net": "5511987654321",
		"+55 (11) 98765-4321":          "5511987654321",
		"  5511987654321  ":            "5511987654321",
		"":                             "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("5511987654321"); got != "*********4321" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := MaskPhone("123"); got != "123" {
		t.Fatalf("short values stay as-is, got %q", got)
	}
}
