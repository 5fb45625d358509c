package apertures

import (
	"testing"

	"github.com/curtacircuitos/pcb-tools/gerberbasetypes"
)

func TestParseStandardCircle(t *testing.T) {
	a := &Aperture{}
	if err := a.ParseStandard(10, "C,0.010", 1); err != nil {
		t.Fatalf("ParseStandard() error = %v", err)
	}
	if a.Type != gerberbasetypes.AptypeCircle {
		t.Errorf("Type = %v, want circle", a.Type)
	}
	if a.Diameter != 0.010 {
		t.Errorf("Diameter = %v, want 0.010", a.Diameter)
	}
}

func TestParseStandardCircleWithHoleAndUnitMultiplier(t *testing.T) {
	a := &Aperture{}
	if err := a.ParseStandard(11, "C,1.0X0.5", 25.4); err != nil {
		t.Fatalf("ParseStandard() error = %v", err)
	}
	if a.Diameter != 25.4 {
		t.Errorf("Diameter = %v, want 25.4", a.Diameter)
	}
	if a.HoleDiameter != 12.7 {
		t.Errorf("HoleDiameter = %v, want 12.7", a.HoleDiameter)
	}
}

func TestParseStandardRectangle(t *testing.T) {
	a := &Aperture{}
	if err := a.ParseStandard(12, "R,0.060X0.060", 1); err != nil {
		t.Fatalf("ParseStandard() error = %v", err)
	}
	if a.Type != gerberbasetypes.AptypeRectangle {
		t.Errorf("Type = %v, want rectangle", a.Type)
	}
	if a.XSize != 0.060 || a.YSize != 0.060 {
		t.Errorf("XSize/YSize = %v/%v, want 0.060/0.060", a.XSize, a.YSize)
	}
}

func TestParseStandardPolygon(t *testing.T) {
	a := &Aperture{}
	if err := a.ParseStandard(13, "P,0.080X6X30", 1); err != nil {
		t.Fatalf("ParseStandard() error = %v", err)
	}
	if a.Vertices != 6 || a.RotAngle != 30 {
		t.Errorf("Vertices/RotAngle = %d/%v, want 6/30", a.Vertices, a.RotAngle)
	}
}

func TestParseStandardRejectsUnknownShape(t *testing.T) {
	a := &Aperture{}
	if err := a.ParseStandard(14, "Z,1.0", 1); err == nil {
		t.Errorf("ParseStandard() with shape Z should error")
	}
}

func TestParseStandardRejectsBadFieldCount(t *testing.T) {
	a := &Aperture{}
	if err := a.ParseStandard(15, "C,1X2X3", 1); err == nil {
		t.Errorf("ParseStandard() with too many circle fields should error")
	}
}

func TestDictionaryDefineAndLookup(t *testing.T) {
	d := NewDictionary()
	a1 := &Aperture{Code: 10}
	a2 := &Aperture{Code: 11}

	if redefined := d.Define(a1); redefined {
		t.Errorf("Define(a1) redefined = true, want false")
	}
	if redefined := d.Define(a2); redefined {
		t.Errorf("Define(a2) redefined = true, want false")
	}
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}

	got, ok := d.Lookup(10)
	if !ok || got != a1 {
		t.Errorf("Lookup(10) = %+v, %v, want a1, true", got, ok)
	}

	replacement := &Aperture{Code: 10, Diameter: 99}
	if redefined := d.Define(replacement); !redefined {
		t.Errorf("Define(replacement) redefined = false, want true")
	}
	got, _ = d.Lookup(10)
	if got != replacement {
		t.Errorf("Lookup(10) after redefine = %+v, want replacement", got)
	}

	var seen []int
	d.Each(func(a *Aperture) bool {
		seen = append(seen, a.Code)
		return true
	})
	if len(seen) != 2 || seen[0] != 10 || seen[1] != 11 {
		t.Errorf("Each() order = %v, want [10 11]", seen)
	}
}

func TestToolTableDefineAndLookup(t *testing.T) {
	tt := NewToolTable()
	tt.Define(Tool{Number: 1, Diameter: 0.020})
	tt.Define(Tool{Number: 2, Diameter: 0.032})

	got, ok := tt.Lookup(1)
	if !ok || got.Diameter != 0.020 {
		t.Errorf("Lookup(1) = %+v, %v, want diameter 0.020, true", got, ok)
	}

	if _, ok := tt.Lookup(99); ok {
		t.Errorf("Lookup(99) ok = true, want false")
	}

	if redefined := tt.Define(Tool{Number: 1, Diameter: 0.040}); !redefined {
		t.Errorf("Define() redefined = false, want true")
	}
	got, _ = tt.Lookup(1)
	if got.Diameter != 0.040 {
		t.Errorf("Lookup(1) after redefine = %+v, want diameter 0.040", got)
	}
}
