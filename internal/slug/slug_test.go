package slug

import "testing"

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Petty Cash":          "petty_cash",
		"  Visa/Master  ":     "visa_master",
		"Uber--Deliveroo!!":   "uber_deliveroo",
		"main_till":           "main_till",
		"":                    "",
		"###":                 "",
		"Commercial Bank 001": "commercial_bank_001",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal("Main Till", "main-till") {
		t.Fatalf("expected collision")
	}
	if Equal("Till", "Bank") || Equal("!!", "??") {
		t.Fatalf("unexpected collision")
	}
	if !IsSlug(Slugify("Card Fees")) {
		t.Fatalf("slugify output should be a slug")
	}
}
