package delta

import (
	"strings"
	"testing"
)

func TestNormalizeStability(t *testing.T) {
	n := NewNormalizer(2026)

	tests := []struct {
		name string
		a, b string
	}{
		{
			name: "iso timestamps",
			a:    "Menu updated 2026-01-20T16:45:12.123Z enjoy our drinks",
			b:    "Menu updated 2026-01-21T09:02:33Z enjoy our drinks",
		},
		{
			name: "bare iso dates",
			a:    "Next event: 2026-02-01",
			b:    "Next event: 2026-03-15",
		},
		{
			name: "month day with ordinal and year",
			a:    "Join us January 28th, 2026 for trivia",
			b:    "Join us February 3rd, 2026 for trivia",
		},
		{
			name: "weekday month day",
			a:    "Friday, Jan 28 live music",
			b:    "Saturday, Feb 12 live music",
		},
		{
			name: "ga tags",
			a:    "ga('create', 'UA-12345678-1'); see you soon",
			b:    "ga('create', 'UA-87654321-2'); see you soon",
		},
		{
			name: "measurement ids",
			a:    "gtag('config', 'G-AB12CD34EF') welcome",
			b:    "gtag('config', 'G-ZZ99YY88XX') welcome",
		},
		{
			name: "gtm containers",
			a:    "gtm-ABCD123 specials tonight",
			b:    "gtm-WXYZ987 specials tonight",
		},
		{
			name: "tracking params",
			a:    "visit https://bar.example.com/menu?utm_source=fb&fbclid=abc123 for details",
			b:    "visit https://bar.example.com/menu?utm_source=ig&fbclid=zzz999 for details",
		},
		{
			name: "current year tokens",
			a:    "Best bar of 2026 in town",
			b:    "Best bar of  in town",
		},
		{
			name: "loading placeholders",
			a:    "Loading product options... Beer list",
			b:    "Beer list",
		},
		{
			name: "copyright footer",
			a:    "Great drinks. Copyright © Tavern LLC. All rights reserved.",
			b:    "Great drinks. ",
		},
		{
			name: "session tokens",
			a:    "state:a1b2c3d4e5f60718293a4b5c6d7e8f90 drinks",
			b:    "state:00112233445566778899aabbccddeeff drinks",
		},
		{
			name: "whitespace runs",
			a:    "happy   hour\t\tdaily",
			b:    "happy hour daily",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			na, nb := n.Normalize(tt.a), n.Normalize(tt.b)
			if na != nb {
				t.Errorf("normalize mismatch:\n a: %q\n b: %q", na, nb)
			}
		})
	}
}

func TestNormalizePreservesRealChanges(t *testing.T) {
	n := NewNormalizer(2026)
	a := "We serve great food and drinks. Open daily."
	b := "We serve great food and drinks. Open daily. Happy Hour Monday-Friday 4pm-7pm. $2 off all drinks!"
	if n.Normalize(a) == n.Normalize(b) {
		t.Fatal("real content change was normalized away")
	}
}

func TestNormalizeKeepsTimes(t *testing.T) {
	n := NewNormalizer(2026)
	s := n.Normalize("Happy Hour Monday-Friday 4pm-7pm")
	if s == "" {
		t.Fatal("promotion text fully elided")
	}
	for _, want := range []string{"4pm-7pm", "Monday-Friday"} {
		if !strings.Contains(s, want) {
			t.Errorf("normalized text lost %q: %q", want, s)
		}
	}
}
