package areas

import (
	"strings"
	"testing"

	errs "spots-pipeline/pkg/errors"
)

func TestDefaultSetValid(t *testing.T) {
	s := DefaultSet()
	if err := s.validate(); err != nil {
		t.Fatalf("shipped defaults must validate: %v", err)
	}
}

func TestValidateRejectsInvertedBounds(t *testing.T) {
	s := DefaultSet()
	s.Areas[0].Bounds.South, s.Areas[0].Bounds.North = s.Areas[0].Bounds.North, s.Areas[0].Bounds.South
	err := s.validate()
	if err == nil {
		t.Fatal("expected integrity error for inverted bounds")
	}
	if !errs.Is(err, errs.ErrIntegrity) {
		t.Errorf("want IntegrityError, got %T: %v", err, err)
	}
}

func TestValidateRejectsCenterOutsideBounds(t *testing.T) {
	s := DefaultSet()
	s.Areas[0].CenterLat = s.Areas[0].Bounds.South - 0.001
	if err := s.validate(); err == nil {
		t.Fatal("expected integrity error for center outside bounds")
	}
}

func TestValidateRejectsAreaOutsideMetro(t *testing.T) {
	s := DefaultSet()
	s.Areas[0].Bounds.East = s.MetroBounds.East + 1
	if err := s.validate(); err == nil {
		t.Fatal("expected integrity error for area outside metro box")
	}
}

func TestSmallestBoxOrdering(t *testing.T) {
	s := DefaultSet()
	s.index()
	prev := -1.0
	for _, a := range s.bySize {
		sz := a.Bounds.SurfaceDeg()
		if sz < prev {
			t.Fatalf("bySize not ascending at %s", a.Name)
		}
		prev = sz
	}
}

func TestNamesCoverKnown(t *testing.T) {
	s := DefaultSet()
	s.index()
	for _, n := range s.Names() {
		if !s.Known(n) {
			t.Errorf("name %q not Known", n)
		}
	}
	if s.Known("Atlantis") {
		t.Error("unknown area reported as known")
	}
}

func TestDisplayNamesNonEmpty(t *testing.T) {
	for _, a := range DefaultSet().Areas {
		if strings.TrimSpace(a.DisplayName) == "" {
			t.Errorf("area %q missing display name", a.Name)
		}
	}
}
