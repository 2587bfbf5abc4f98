package langmeta

import "testing"

func TestCanonical(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "pt_br", want: "pt-BR"},
		{in: " EN-us ", want: "en-US"},
		{in: "ru", want: "ru"},
		{in: "", want: ""},
	}

	for _, tc := range cases {
		got := Canonical(tc.in)
		if got != tc.want {
			t.Fatalf("Canonical(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		got := Resolve("en-GB")
		if got.Name != "English (UK)" || got.Code != "en-GB" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("normalized match", func(t *testing.T) {
		got := Resolve("pt_br")
		if got.Name != "Portuguese (Brazil)" || got.Code != "pt-BR" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("english name", func(t *testing.T) {
		got := Resolve("german")
		if got.Code != "de" || got.Name != "German" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("base fallback", func(t *testing.T) {
		got := Resolve("fr-LU")
		if got.Name != "French" || got.Code != "fr-LU" {
			t.Fatalf("unexpected fallback result: %#v", got)
		}
	})

	t.Run("unknown passthrough", func(t *testing.T) {
		got := Resolve("zz-ZZ")
		if got.Name != "zz-ZZ" || got.Code != "zz-ZZ" {
			t.Fatalf("unexpected unknown result: %#v", got)
		}
		if Known("zz-ZZ") {
			t.Fatal("zz-ZZ should not be known")
		}
	})
}

func TestName(t *testing.T) {
	if got := Name("de"); got != "German" {
		t.Fatalf("Name(de) = %q", got)
	}
	if !Known("de_CH") {
		t.Fatal("de_CH should be known")
	}
}
