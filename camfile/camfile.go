/*
Package camfile holds the top-level output contract of this module: the
CamFile value returned by the Gerber and Excellon parsers, the error
kinds §7 of the specification defines, and the format-auto-detection
heuristic of §6.

Neither parser depends on the other's package; camfile is the common
ground both sit on, and the entry point for a rendering or
unit-transform collaborator, which also uses the primitives,
apertures and macro types that CamFile's fields hold.
*/
package camfile

import (
	"strconv"
	"strings"

	"github.com/akavel/polyclip-go"
	"github.com/curtacircuitos/pcb-tools/apertures"
	"github.com/curtacircuitos/pcb-tools/gerberbasetypes"
	"github.com/curtacircuitos/pcb-tools/macro"
	"github.com/curtacircuitos/pcb-tools/primitives"
)

// Format tags which of the two supported file families a CamFile was
// decoded from.
type Format int

const (
	FormatUnknown Format = iota
	FormatGerber
	FormatExcellon
)

func (f Format) String() string {
	switch f {
	case FormatGerber:
		return "RS-274X (Gerber)"
	case FormatExcellon:
		return "Excellon"
	default:
		return "unknown"
	}
}

// NoteKind tags a non-fatal condition recorded in FileStats.Notes.
type NoteKind string

const (
	NoteUndefinedAperture  NoteKind = "undefined-aperture"
	NoteUndefinedTool      NoteKind = "undefined-tool"
	NoteFlashInRegion      NoteKind = "flash-in-region"
	NoteAmbiguousArc       NoteKind = "ambiguous-arc"
	NoteUnclosedRegion     NoteKind = "unclosed-region"
	NoteUnknownCommand     NoteKind = "unknown-command"
	NoteRedefinedAperture  NoteKind = "redefined-aperture"
	NoteComment               NoteKind = "comment"
	NoteNumberOverflow        NoteKind = "number-overflow"
	NoteTrailingAfterEOF      NoteKind = "trailing-after-eof"
	NoteUnknownMacroPrimitive NoteKind = "unknown-macro-primitive"
)

// Note is a single accumulated non-fatal diagnostic.
type Note struct {
	Line   int
	Kind   NoteKind
	Detail string
}

// FileStats carries the source format tag, detected units, the
// aggregate bounding box and the accumulated non-fatal notes.
type FileStats struct {
	Format Format
	Units  gerberbasetypes.Units
	BBox   polyclip.Rectangle
	Notes  []Note

	// set by bbox aggregation; false until the first primitive with a
	// bounding box has been emitted.
	haveBBox bool
}

// Note appends a non-fatal diagnostic.
func (fs *FileStats) Note(line int, kind NoteKind, detail string) {
	fs.Notes = append(fs.Notes, Note{Line: line, Kind: kind, Detail: detail})
}

// ExpandBBox folds r into the running aggregate bounding box.
func (fs *FileStats) ExpandBBox(r polyclip.Rectangle) {
	if !fs.haveBBox {
		fs.BBox = r
		fs.haveBBox = true
		return
	}
	if r.Min.X < fs.BBox.Min.X {
		fs.BBox.Min.X = r.Min.X
	}
	if r.Min.Y < fs.BBox.Min.Y {
		fs.BBox.Min.Y = r.Min.Y
	}
	if r.Max.X > fs.BBox.Max.X {
		fs.BBox.Max.X = r.Max.X
	}
	if r.Max.Y > fs.BBox.Max.Y {
		fs.BBox.Max.Y = r.Max.Y
	}
}

// Attribute is a %TF/%TA/%TO object or file attribute; it carries no
// geometric effect (§4.5) and is attached either to the file or, via
// Primitive-level attribute lists, to the next emitted primitive.
type Attribute struct {
	Name   string
	Fields []string
}

// CamFile is the external-interfaces output contract of §6: format
// tag, stats, ordered primitives in canonical draw order, and the
// aperture/tool dictionary and file attributes that produced them.
//
// Apertures is populated by the Gerber interpreter, Tools by the
// Excellon interpreter; the other is left nil. Macros holds every
// %AM definition the Gerber interpreter captured, keyed by name, so a
// rendering collaborator can resolve an AptypeMacro aperture's
// MacroName to a macro.Definition and call Evaluate against its
// MacroParams — this package does not expand macro geometry itself.
type CamFile struct {
	Format     Format
	Stats      FileStats
	Primitives []primitives.Primitive
	Attributes []Attribute

	Apertures *apertures.Dictionary
	Tools     *apertures.ToolTable
	Macros    map[string]*macro.Definition
}

// --- error kinds (§7) -------------------------------------------------

// LexError describes a fatal malformed-byte or unterminated-block
// error. The Gerber reader reports its own gerberlexer.LexError, which
// gerber.Parse returns unchanged; no reader in this module constructs
// this type.
type LexError struct {
	Pos    int
	Reason string
}

func (e *LexError) Error() string {
	return "lex error at byte " + strconv.Itoa(e.Pos) + ": " + e.Reason
}

// FormatError is a fatal missing-FS/MO or duplicate-directive error.
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	return "format error at line " + strconv.Itoa(e.Line) + ": " + e.Reason
}

// UndefinedApertureError is constructed when a D01/D03 references a
// D-code absent from the aperture dictionary. Non-fatal: the
// interpreter drops the emission, records it as a Note, and continues
// (§7).
type UndefinedApertureError struct {
	DCode int
}

func (e *UndefinedApertureError) Error() string {
	return "undefined aperture D" + strconv.Itoa(e.DCode)
}

// UndefinedToolError is constructed when an Excellon hit references a
// tool number never defined by a header T<n>C<diameter> statement.
// Non-fatal, same treatment as UndefinedApertureError.
type UndefinedToolError struct {
	Tool int
}

func (e *UndefinedToolError) Error() string {
	return "undefined tool T" + strconv.Itoa(e.Tool)
}

// FlashInRegionError is constructed when D03 is issued while region
// mode is on (§3 invariant: a Flash emitted inside region mode is
// illegal). Non-fatal: the flash is dropped and the condition recorded
// as a Note.
type FlashInRegionError struct {
	Line int
}

func (e *FlashInRegionError) Error() string {
	return "flash (D03) issued inside region mode at line " + strconv.Itoa(e.Line)
}

// AmbiguousArcError is constructed when single-quadrant sign
// resolution finds zero or more than one valid ≤90° sign combination.
// Non-fatal: the arc is dropped and the condition recorded as a Note.
type AmbiguousArcError struct {
	Line int
}

func (e *AmbiguousArcError) Error() string {
	return "ambiguous arc at line " + strconv.Itoa(e.Line) + ": no unique single-quadrant sign combination"
}

// UnclosedRegionError is constructed when a stream ends or M02 is
// reached while a G36 region is still open. Non-fatal: the
// accumulated contour is dropped (never emitted as a Region) and the
// condition recorded as a Note.
type UnclosedRegionError struct {
	G36Line int
}

func (e *UnclosedRegionError) Error() string {
	return "region opened at line " + strconv.Itoa(e.G36Line) + " was never closed with G37"
}

// UnknownDialectError is raised by the Excellon dialect detector when
// the body is too short to score candidate formats meaningfully (§9).
type UnknownDialectError struct {
	Reason string
}

func (e *UnknownDialectError) Error() string {
	return "unable to infer excellon dialect: " + e.Reason
}

// UnknownFormatError is raised by auto-detection (§6) when neither a
// Gerber nor an Excellon prefix is recognized and no caller-supplied
// extension hint resolves it.
type UnknownFormatError struct {
	Hint string
}

func (e *UnknownFormatError) Error() string {
	msg := "unable to determine file format"
	if e.Hint != "" {
		msg += " (extension hint " + strconv.Quote(e.Hint) + " did not resolve it)"
	}
	return msg
}

// --- format auto-detection (§6) ---------------------------------------

const detectWindow = 4096

// DetectFormat implements the §6 prefix heuristic: presence of
// %FS/%MO/%AD within the first 4096 bytes means Gerber; presence of
// M48 or a T<n>C<diameter> tool-definition line means Excellon;
// otherwise the caller-supplied extension hint is consulted.
func DetectFormat(data []byte, extHint string) (Format, error) {
	window := data
	if len(window) > detectWindow {
		window = window[:detectWindow]
	}
	head := string(window)

	if strings.Contains(head, "%FS") || strings.Contains(head, "%MO") || strings.Contains(head, "%AD") {
		return FormatGerber, nil
	}
	if strings.Contains(head, "M48") || looksLikeToolDef(head) {
		return FormatExcellon, nil
	}

	switch strings.ToLower(extHint) {
	case ".gbr", ".gtl", ".gbl", ".gto", ".gbo", ".gts", ".gbs", ".gko", ".gml", ".gm1", ".art":
		return FormatGerber, nil
	case ".drl", ".txt", ".xln", ".nc", ".tap":
		return FormatExcellon, nil
	}

	return FormatUnknown, &UnknownFormatError{Hint: extHint}
}

func looksLikeToolDef(head string) bool {
	for _, line := range strings.Split(head, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 2 || line[0] != 'T' {
			continue
		}
		if line[1] < '0' || line[1] > '9' {
			continue
		}
		if strings.ContainsRune(line, 'C') {
			return true
		}
	}
	return false
}
