package gerber

import (
	"testing"

	"github.com/akavel/polyclip-go"
	"github.com/curtacircuitos/pcb-tools/camfile"
	"github.com/curtacircuitos/pcb-tools/primitives"
)

func polyPoint(x, y float64) polyclip.Point {
	return polyclip.Point{X: x, Y: y}
}

// fixtures below use a 2-integer/4-decimal leading-zero-suppressed
// format (FSLAX24Y24): "010000" decodes to 1.0, "020000" to 2.0.

func TestParseMinimalFile(t *testing.T) {
	src := "%FSLAX24Y24*%\n%MOMM*%\n%ADD10C,0.010*%\nD10*\nX010000Y010000D02*\nX020000Y020000D01*\nM02*\n"

	cf, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cf.Format != camfile.FormatGerber {
		t.Errorf("Format = %v, want Gerber", cf.Format)
	}
	if len(cf.Primitives) != 1 {
		t.Fatalf("len(Primitives) = %d, want 1", len(cf.Primitives))
	}
	line := cf.Primitives[0]
	if line.Kind != primitives.KindLine {
		t.Errorf("Kind = %v, want KindLine", line.Kind)
	}
	if line.End.X != 2.0 || line.End.Y != 2.0 {
		t.Errorf("End = %+v, want (2,2)", line.End)
	}
}

func TestParseFlash(t *testing.T) {
	src := "%FSLAX24Y24*%\n%MOMM*%\n%ADD10C,0.010*%\nD10*\nX010000Y010000D03*\nM02*\n"

	cf, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cf.Primitives) != 1 || cf.Primitives[0].Kind != primitives.KindFlash {
		t.Fatalf("Primitives = %+v, want one flash", cf.Primitives)
	}
}

func TestParseFlashWithoutApertureDropsAndNotes(t *testing.T) {
	src := "%FSLAX24Y24*%\n%MOMM*%\nX010000Y010000D03*\nM02*\n"

	cf, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil (non-fatal per spec)", err)
	}
	if len(cf.Primitives) != 0 {
		t.Fatalf("Primitives = %+v, want none (dropped)", cf.Primitives)
	}
	found := false
	for _, n := range cf.Stats.Notes {
		if n.Kind == camfile.NoteUndefinedAperture {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an undefined-aperture note, got %+v", cf.Stats.Notes)
	}
}

func TestParseUnclosedRegionDropsAndNotes(t *testing.T) {
	src := "%FSLAX24Y24*%\n%MOMM*%\n%ADD10C,0.010*%\nD10*\nG36*\nX010000Y010000D02*\nX020000Y010000D01*\nM02*\n"

	cf, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil (non-fatal per spec)", err)
	}
	if len(cf.Primitives) != 0 {
		t.Fatalf("Primitives = %+v, want none (unclosed region dropped)", cf.Primitives)
	}
	found := false
	for _, n := range cf.Stats.Notes {
		if n.Kind == camfile.NoteUnclosedRegion {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an unclosed-region note, got %+v", cf.Stats.Notes)
	}
}

func TestParseRegion(t *testing.T) {
	src := "%FSLAX24Y24*%\n%MOMM*%\n%ADD10C,0.010*%\nD10*\nG36*\n" +
		"X000000Y000000D02*\nX010000Y000000D01*\nX010000Y010000D01*\nX000000Y010000D01*\nX000000Y000000D01*\nG37*\nM02*\n"

	cf, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cf.Primitives) != 1 || cf.Primitives[0].Kind != primitives.KindRegion {
		t.Fatalf("Primitives = %+v, want one region", cf.Primitives)
	}
	if len(cf.Primitives[0].Contour) != 4 {
		t.Fatalf("Contour segments = %d, want 4", len(cf.Primitives[0].Contour))
	}
}

func TestParseRedefinedApertureNotesDoNotAbort(t *testing.T) {
	src := "%FSLAX24Y24*%\n%MOMM*%\n%ADD10C,0.010*%\n%ADD10C,0.020*%\nD10*\nX010000Y010000D03*\nM02*\n"

	cf, err := Parse([]byte(src))
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
		t.Errorf("expected a redefined-aperture note, got %+v", cf.Stats.Notes)
	}
}

func TestParseDrawWithoutApertureDropsAndNotes(t *testing.T) {
	src := "%FSLAX24Y24*%\n%MOMM*%\nX000000Y000000D02*\nX010000Y010000D01*\nM02*\n"

	cf, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v, want nil (non-fatal per spec)", err)
	}
	if len(cf.Primitives) != 0 {
		t.Fatalf("Primitives = %+v, want none (dropped)", cf.Primitives)
	}
	found := false
	for _, n := range cf.Stats.Notes {
		if n.Kind == camfile.NoteUndefinedAperture {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an undefined-aperture note, got %+v", cf.Stats.Notes)
	}
}

func TestParseDuplicateFSIsFormatError(t *testing.T) {
	src := "%FSLAX24Y24*%\n%FSLAX24Y24*%\n%MOMM*%\nM02*\n"

	_, err := Parse([]byte(src))
	if _, ok := err.(*camfile.FormatError); !ok {
		t.Fatalf("err = %v, want *camfile.FormatError", err)
	}
}

func TestParseBlockApertureFlashDescendsAndTranslates(t *testing.T) {
	src := "%FSLAX24Y24*%\n%MOMM*%\n%ADD10C,0.010*%\n%ABD100*%\n" +
		"D10*\nX000000Y000000D02*\nX010000Y000000D01*\n%AB*%\n" +
		"D100*\nX050000Y050000D03*\nM02*\n"

	cf, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cf.Primitives) != 1 || cf.Primitives[0].Kind != primitives.KindLine {
		t.Fatalf("Primitives = %+v, want one line (the block's translated content)", cf.Primitives)
	}
	line := cf.Primitives[0]
	if line.Start.X != 5.0 || line.Start.Y != 5.0 || line.End.X != 6.0 || line.End.Y != 5.0 {
		t.Errorf("line = %+v, want start (5,5) end (6,5)", line)
	}
}

func TestResolveSingleQuadrantCenter(t *testing.T) {
	start := polyPoint(1, 0)
	end := polyPoint(0, 1)
	center, err := resolveSingleQuadrantCenter(start, end, 1, 0, false, 4)
	if err != nil {
		t.Fatalf("resolveSingleQuadrantCenter() error = %v", err)
	}
	if center.X != 0 || center.Y != 0 {
		t.Errorf("center = %+v, want (0,0)", center)
	}
}

func TestResolveSingleQuadrantCenterToleranceScalesWithFormat(t *testing.T) {
	// start and end are almost, but not quite, equidistant from (0,0):
	// a 2-decimal-digit format's tolerance (1e-3) accepts the mismatch,
	// a 6-decimal-digit format's tolerance (1e-7) rejects it.
	start := polyPoint(1, 0)
	end := polyPoint(0, 1.00001)

	if _, err := resolveSingleQuadrantCenter(start, end, 1, 0, false, 2); err != nil {
		t.Fatalf("with a loose (2-digit) tolerance, want a resolved center, got error: %v", err)
	}
	if _, err := resolveSingleQuadrantCenter(start, end, 1, 0, false, 6); err == nil {
		t.Fatalf("with a tight (6-digit) tolerance, want errAmbiguousArc, got a resolved center")
	}
}

func TestParseFlashBoundingBoxAccountsForApertureWidth(t *testing.T) {
	src := "%FSLAX24Y24*%\n%MOMM*%\n%ADD10C,0.5*%\nD10*\nX000000Y000000D03*\nM02*\n"

	cf, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := polyclip.Rectangle{Min: polyclip.Point{X: -0.25, Y: -0.25}, Max: polyclip.Point{X: 0.25, Y: 0.25}}
	if cf.Stats.BBox != want {
		t.Errorf("BBox = %+v, want %+v", cf.Stats.BBox, want)
	}
}

func TestParseRegionPreservesContourAcrossInternalD02(t *testing.T) {
	src := "%FSLAX24Y24*%\n%MOMM*%\n%ADD10C,0.010*%\nD10*\nG36*\n" +
		"X000000Y000000D02*\nX010000Y000000D01*\nX010000Y010000D01*\n" +
		"X005000Y005000D02*\n" + // internal move within the same region
		"X000000Y010000D01*\nX000000Y000000D01*\nG37*\nM02*\n"

	cf, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cf.Primitives) != 1 || cf.Primitives[0].Kind != primitives.KindRegion {
		t.Fatalf("Primitives = %+v, want one region", cf.Primitives)
	}
	if len(cf.Primitives[0].Contour) != 4 {
		t.Fatalf("Contour segments = %d, want 4 (all boundary draws preserved across the internal D02)", len(cf.Primitives[0].Contour))
	}
}

func TestParseObjectAttributeAttachesOnlyToNextPrimitive(t *testing.T) {
	src := "%FSLAX24Y24*%\n%MOMM*%\n%ADD10C,0.010*%\nD10*\n" +
		"%TO.C,R1*%\nX000000Y000000D03*\nX010000Y010000D03*\nM02*\n"

	cf, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cf.Primitives) != 2 {
		t.Fatalf("Primitives = %+v, want 2 flashes", cf.Primitives)
	}
	if len(cf.Primitives[0].Attributes) == 0 {
		t.Errorf("first flash Attributes = %+v, want the %%TO attribute attached", cf.Primitives[0].Attributes)
	}
	if len(cf.Primitives[1].Attributes) != 0 {
		t.Errorf("second flash Attributes = %+v, want none (the %%TO attribute must not leak)", cf.Primitives[1].Attributes)
	}
}
