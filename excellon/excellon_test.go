package excellon

import (
	"testing"

	"github.com/curtacircuitos/pcb-tools/camfile"
	"github.com/curtacircuitos/pcb-tools/coordfmt"
	"github.com/curtacircuitos/pcb-tools/gerberbasetypes"
	"github.com/curtacircuitos/pcb-tools/primitives"
)

// fixtures use a 2-integer/4-decimal leading-zero-suppressed format:
// "010000" decodes to 1.0, "020000" to 2.0.
var testFormat = coordfmt.CoordinateFormat{
	IntegerDigits: 2,
	DecimalDigits: 4,
	ZeroSuppress:  gerberbasetypes.ZeroSuppressionLeading,
	Notation:      gerberbasetypes.NotationAbsolute,
	Units:         gerberbasetypes.UnitsMM,
}

func TestParseDrillHit(t *testing.T) {
	src := "M48\nT01C0.020\n%\nT01\nX010000Y010000\nM30\n"

	cf, err := Parse([]byte(src), testFormat)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cf.Format != camfile.FormatExcellon {
		t.Errorf("Format = %v, want Excellon", cf.Format)
	}
	if len(cf.Primitives) != 1 {
		t.Fatalf("len(Primitives) = %d, want 1", len(cf.Primitives))
	}
	hit := cf.Primitives[0]
	if hit.Kind != primitives.KindDrill {
		t.Errorf("Kind = %v, want KindDrill", hit.Kind)
	}
	if hit.Position.X != 1.0 || hit.Position.Y != 1.0 {
		t.Errorf("Position = %+v, want (1,1)", hit.Position)
	}
	if hit.Tool != 1 {
		t.Errorf("Tool = %d, want 1", hit.Tool)
	}
}

func TestParseUndefinedToolDropsHitAndNotes(t *testing.T) {
	src := "M48\nT01C0.020\n%\nT02\nX010000Y010000\nM30\n"

	cf, err := Parse([]byte(src), testFormat)
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil (non-fatal per spec)", err)
	}
	if len(cf.Primitives) != 0 {
		t.Fatalf("Primitives = %+v, want none (dropped)", cf.Primitives)
	}
	found := false
	for _, n := range cf.Stats.Notes {
		if n.Kind == camfile.NoteUndefinedTool {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an undefined-tool note, got %+v", cf.Stats.Notes)
	}
}

func TestParseRepeatHole(t *testing.T) {
	src := "M48\nT01C0.020\n%\nT01\nX010000Y010000\nR3X010000Y000000\nM30\n"

	cf, err := Parse([]byte(src), testFormat)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cf.Primitives) != 4 {
		t.Fatalf("len(Primitives) = %d, want 4 (1 direct hit + 3 repeats)", len(cf.Primitives))
	}
	last := cf.Primitives[3]
	if last.Position.X != 4.0 || last.Position.Y != 1.0 {
		t.Errorf("last repeat position = %+v, want (4,1)", last.Position)
	}
}

func TestParseRoutedSlot(t *testing.T) {
	src := "M48\nT01C0.031\n%\nT01\nG00X010000Y010000\nG01X020000Y020000\nM30\n"

	cf, err := Parse([]byte(src), testFormat)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cf.Primitives) != 1 || cf.Primitives[0].Kind != primitives.KindSlot {
		t.Fatalf("Primitives = %+v, want one slot", cf.Primitives)
	}
	slot := cf.Primitives[0]
	if slot.Start.X != 1.0 || slot.Start.Y != 1.0 || slot.End.X != 2.0 || slot.End.Y != 2.0 {
		t.Errorf("slot = %+v, want start (1,1) end (2,2)", slot)
	}
}

func TestParseRedefinedToolNotesDoNotAbort(t *testing.T) {
	src := "M48\nT01C0.020\nT01C0.032\n%\nT01\nX010000Y010000\nM30\n"

	cf, err := Parse([]byte(src), testFormat)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	found := false
	for _, n := range cf.Stats.Notes {
		if n.Kind == camfile.NoteRedefinedAperture {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a redefined-tool note, got %+v", cf.Stats.Notes)
	}
}

func TestDetectFormatHonorsFileFormatComment(t *testing.T) {
	src := ";FILE_FORMAT=2:4\nM48\nINCH,LZ\nT01C0.020\n%\nT01\nX010000Y010000\nM30\n"

	cf, confidence, err := DetectFormat([]byte(src), gerberbasetypes.UnitsInch)
	if err != nil {
		t.Fatalf("DetectFormat() error = %v", err)
	}
	if confidence != ConfidenceDeclared {
		t.Errorf("confidence = %v, want declared", confidence)
	}
	if cf.IntegerDigits != 2 || cf.DecimalDigits != 4 {
		t.Errorf("format = %+v, want 2:4", cf)
	}
	if cf.ZeroSuppress != gerberbasetypes.ZeroSuppressionLeading {
		t.Errorf("zero suppression = %v, want leading", cf.ZeroSuppress)
	}
}

func TestDetectFormatDeclaredUnitsWithoutExplicitDigitsIsDefaulted(t *testing.T) {
	src := "M48\nMETRIC,LZ\nT01C0.020\n%\nT01\nX010000Y010000\nM30\n"

	cf, confidence, err := DetectFormat([]byte(src), gerberbasetypes.UnitsUndefined)
	if err != nil {
		t.Fatalf("DetectFormat() error = %v", err)
	}
	if confidence != ConfidenceDefaulted {
		t.Errorf("confidence = %v, want defaulted", confidence)
	}
	if cf.IntegerDigits != 3 || cf.DecimalDigits != 3 {
		t.Errorf("format = %+v, want 3:3 (metric default)", cf)
	}
	if cf.Units != gerberbasetypes.UnitsMM {
		t.Errorf("units = %v, want mm", cf.Units)
	}
}

func TestDetectFormatTooShortIsUnknownDialectError(t *testing.T) {
	_, _, err := DetectFormat([]byte("M48\n%\nM30\n"), gerberbasetypes.UnitsInch)
	if _, ok := err.(*camfile.UnknownDialectError); !ok {
		t.Fatalf("err = %v, want *camfile.UnknownDialectError", err)
	}
}

func TestParseLegacyFMATTreatsT0AsLiteralSelect(t *testing.T) {
	src := "M48\nFMAT,1\nT01C0.020\n%\nT00\nX010000Y010000\nM30\n"

	cf, err := Parse([]byte(src), testFormat)
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil (non-fatal per spec)", err)
	}
	if len(cf.Primitives) != 0 {
		t.Fatalf("Primitives = %+v, want none (T0 not defined as a tool under FMAT,1)", cf.Primitives)
	}
	found := false
	for _, n := range cf.Stats.Notes {
		if n.Kind == camfile.NoteUndefinedTool {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an undefined-tool note for literal T0 under FMAT,1, got %+v", cf.Stats.Notes)
	}
}

func TestParseModernFMATTreatsT0AsEndMarker(t *testing.T) {
	src := "M48\nFMAT,2\nT01C0.020\n%\nT01\nX010000Y010000\nT00\nX020000Y020000\nM30\n"

	cf, err := Parse([]byte(src), testFormat)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cf.Primitives) != 2 {
		t.Fatalf("len(Primitives) = %d, want 2 (T00 leaves tool 1 selected)", len(cf.Primitives))
	}
	for _, p := range cf.Primitives {
		if p.Tool != 1 {
			t.Errorf("Tool = %d, want 1 (T00 must not change the active tool)", p.Tool)
		}
	}
}
