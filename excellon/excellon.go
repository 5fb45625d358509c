/*
Package excellon implements the Excellon Dialect Detector (C6) and the
Excellon Interpreter (C7): a line-oriented state machine that tracks
header/body position the way _parse_line does in the upstream reader,
emitting Drill and Slot primitives into a camfile.CamFile, plus the
brute-force format/zero-suppression inference of detect_excellon_format
for files that never declare their own units or digit layout.

The interpreter's T<n>/X..Y../R<n>X..Y.. dispatch follows the same
one-statement-at-a-time shape as package gerber's dispatch, generalized
from a '*'-delimited Block to a excellonlexer.Line.
*/
package excellon

import (
	"strconv"
	"strings"

	"github.com/akavel/polyclip-go"
	"github.com/golang/glog"

	"github.com/curtacircuitos/pcb-tools/apertures"
	"github.com/curtacircuitos/pcb-tools/camfile"
	"github.com/curtacircuitos/pcb-tools/coordfmt"
	"github.com/curtacircuitos/pcb-tools/excellonlexer"
	"github.com/curtacircuitos/pcb-tools/gerberbasetypes"
	"github.com/curtacircuitos/pcb-tools/primitives"
)

// section tags which half of the file a line is being read from; the
// header carries tool definitions and format directives, the body
// carries drill/rout commands.
type section int

const (
	sectionInit section = iota
	sectionHeader
	sectionBody
)

// routeMode is the G00/G01/G05 sub-state within the body section.
type routeMode int

const (
	routeDrill routeMode = iota
	routeRout
	routeLinear
)

// Confidence tags how a file's format/zero-suppression settings were
// established, mirroring §9's declared/defaulted/inferred ladder.
type Confidence int

const (
	ConfidenceDeclared Confidence = iota
	ConfidenceInferred
	ConfidenceDefaulted
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceDeclared:
		return "declared"
	case ConfidenceInferred:
		return "inferred"
	default:
		return "defaulted"
	}
}

type interpreter struct {
	format     coordfmt.CoordinateFormat
	confidence Confidence

	section   section
	route     routeMode
	absolute  bool
	currentX  float64
	currentY  float64

	tools      *apertures.ToolTable
	activeTool int

	// fmatLegacy is true once an explicit "FMAT,1" has been read;
	// false (the default) is modern FMAT,2 semantics. Gates T0
	// handling in selectTool (§4.7).
	fmatLegacy bool

	out camfile.CamFile
}

// Parse interprets a complete Excellon source file and returns its
// CamFile. cf is the coordinate format to decode body coordinates
// with; callers that don't already know it should run DetectFormat
// first and feed its result in here.
func Parse(data []byte, cf coordfmt.CoordinateFormat) (*camfile.CamFile, error) {
	ip, err := run(data, cf)
	if err != nil {
		return nil, err
	}
	return &ip.out, nil
}

// run drives the interpreter to completion and returns it, so
// scoreCandidate can inspect the tool table behind the returned
// CamFile when scoring a candidate format.
func run(data []byte, cf coordfmt.CoordinateFormat) (*interpreter, error) {
	lines := excellonlexer.Tokenize(data)

	ip := &interpreter{
		format:   cf,
		absolute: true,
		tools:    apertures.NewToolTable(),
	}
	ip.out.Format = camfile.FormatExcellon
	ip.out.Stats.Units = cf.Units

	for _, ln := range lines {
		if err := ip.parseLine(ln); err != nil {
			if isFatal(err) {
				return nil, err
			}
			ip.out.Stats.Note(ln.Number, noteKindForError(err), err.Error())
		}
	}

	ip.out.Stats.Format = camfile.FormatExcellon
	ip.out.Stats.Units = ip.format.Units
	ip.out.Tools = ip.tools
	return ip, nil
}

// isFatal reports whether err must abort parsing outright. Only
// malformed-input conditions (an unparseable repeat count, a
// malformed tool select) are fatal; an undefined tool reference or a
// digit string that overflows the active format (§7) is recorded as a
// Note and parsing continues.
func isFatal(err error) bool {
	switch err.(type) {
	case *camfile.UndefinedToolError, *coordfmt.NumberOverflow:
		return false
	default:
		return true
	}
}

func noteKindForError(err error) camfile.NoteKind {
	switch err.(type) {
	case *camfile.UndefinedToolError:
		return camfile.NoteUndefinedTool
	case *coordfmt.NumberOverflow:
		return camfile.NoteNumberOverflow
	default:
		return camfile.NoteUnknownCommand
	}
}

func (ip *interpreter) parseLine(ln excellonlexer.Line) error {
	text := ln.Text

	switch {
	case strings.HasPrefix(text, ";"):
		ip.out.Stats.Note(ln.Number, camfile.NoteComment, strings.TrimPrefix(text, ";"))
		return nil

	case strings.HasPrefix(text, "M48"):
		ip.section = sectionHeader
		return nil

	case text == "%":
		if ip.section == sectionHeader {
			ip.section = sectionBody
		} else if ip.section == sectionInit {
			ip.section = sectionHeader
		}
		return nil

	case strings.HasPrefix(text, "M95"):
		ip.section = sectionBody
		return nil

	case strings.HasPrefix(text, "M30"):
		return nil // end of program

	case strings.HasPrefix(text, "M00"):
		return nil // next-tool-in-wheel pause, no geometric effect

	case strings.HasPrefix(text, "G00"):
		ip.route = routeRout
		return ip.moveTo(ln, text[3:])

	case strings.HasPrefix(text, "G01"):
		ip.route = routeLinear
		return ip.drawTo(ln, text[3:])

	case strings.HasPrefix(text, "G05"):
		ip.route = routeDrill
		return nil

	case strings.HasPrefix(text, "G90"):
		ip.absolute = true
		return nil

	case strings.HasPrefix(text, "G91"):
		ip.absolute = false
		return nil

	case strings.HasPrefix(text, "G40"), strings.HasPrefix(text, "G41"), strings.HasPrefix(text, "G42"):
		ip.out.Stats.Note(ln.Number, camfile.NoteUnknownCommand, text) // cutter compensation, no geometric effect here
		return nil

	case strings.Contains(text, "INCH"), strings.Contains(text, "METRIC"):
		if ip.format.IntegerDigits == 0 && ip.format.DecimalDigits == 0 {
			ip.applyUnitStatement(text)
		}
		return nil

	case strings.HasPrefix(text, "M71"), strings.HasPrefix(text, "M72"):
		if strings.HasPrefix(text, "M72") {
			ip.format.Units = gerberbasetypes.UnitsInch
		} else {
			ip.format.Units = gerberbasetypes.UnitsMM
		}
		return nil

	case strings.HasPrefix(text, "ICI"):
		ip.absolute = !strings.Contains(text, "ON")
		return nil

	case strings.HasPrefix(text, "VER"):
		return nil // version tag, carried no further

	case strings.HasPrefix(text, "FMAT"):
		ip.fmatLegacy = strings.Contains(text, "FMAT,1")
		return nil

	case text[0] == 'F' && isDigitRun(text[1:]):
		return nil // Z-axis infeed rate, no geometric effect

	case text[0] == 'T' && ip.section == sectionHeader:
		return ip.defineTool(ln, text)

	case text[0] == 'T' && ip.section != sectionHeader:
		return ip.selectTool(ln, text)

	case text[0] == 'R' && ip.section != sectionHeader:
		return ip.repeatHole(ln, text)

	case text[0] == 'X' || text[0] == 'Y':
		return ip.coordinateCommand(ln, text)
	}

	glog.Warningln("excellon: unrecognized statement at line", ln.Number, text)
	ip.out.Stats.Note(ln.Number, camfile.NoteUnknownCommand, text)
	return nil
}

func (ip *interpreter) applyUnitStatement(text string) {
	if strings.Contains(text, "INCH") {
		ip.format.Units = gerberbasetypes.UnitsInch
	} else {
		ip.format.Units = gerberbasetypes.UnitsMM
	}
	if strings.Contains(text, "LZ") {
		ip.format.ZeroSuppress = gerberbasetypes.ZeroSuppressionLeading
	} else if strings.Contains(text, "TZ") {
		ip.format.ZeroSuppress = gerberbasetypes.ZeroSuppressionTrailing
	}
	switch {
	case strings.Contains(text, "0000.00"):
		ip.format.IntegerDigits, ip.format.DecimalDigits = 4, 2
	case strings.Contains(text, "000.000"):
		ip.format.IntegerDigits, ip.format.DecimalDigits = 3, 3
	case strings.Contains(text, "00.0000"):
		ip.format.IntegerDigits, ip.format.DecimalDigits = 2, 4
	}
}

func isDigitRun(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// defineTool parses a header T<n>C<diameter>[B..F..H..S..Z..] line.
// Only the C (diameter) and T (number) fields affect geometry; the
// rest are accepted and discarded, following ExcellonTool.from_excellon.
func (ip *interpreter) defineTool(ln excellonlexer.Line, text string) error {
	fields := splitToolFields(text)
	var number int
	var diameter float64
	haveNumber := false
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		val := f[1:]
		switch f[0] {
		case 'T':
			n, err := strconv.Atoi(val)
			if err != nil {
				return err
			}
			number = n
			haveNumber = true
		case 'C':
			v, err := coordfmt.Decode(val, ip.format)
			if err != nil {
				return err
			}
			diameter = v
		}
	}
	if !haveNumber {
		return nil
	}
	if redefined := ip.tools.Define(apertures.Tool{Number: number, Diameter: diameter}); redefined {
		ip.out.Stats.Note(ln.Number, camfile.NoteRedefinedAperture, "T"+strconv.Itoa(number))
	}
	return nil
}

// splitToolFields splits "T01C0.012F200S300" into ["T01", "C0.012",
// "F200", "S300"], matching the upstream re.split('([BCFHSTZ])', ...).
func splitToolFields(s string) []string {
	var fields []string
	start := -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'B', 'C', 'F', 'H', 'S', 'T', 'Z':
			if start != -1 {
				fields = append(fields, s[start:i])
			}
			start = i
		}
	}
	if start != -1 {
		fields = append(fields, s[start:])
	}
	return fields
}

// selectTool handles a body T<n> select. Under modern FMAT,2 semantics
// (the default absent a declared FMAT), T0 is the conventional
// unselect/end marker and leaves the active tool untouched; under
// legacy FMAT,1 semantics T0 is a literal tool selection like any
// other number (§4.7). Selecting an undefined tool number is not
// itself an error — the condition surfaces, per §7, when that tool is
// actually asked to drill or rout, at which point coordinateCommand/
// drawTo/repeatHole drop the emission and record the Note.
func (ip *interpreter) selectTool(ln excellonlexer.Line, text string) error {
	numText := strings.TrimPrefix(text, "T")
	if len(numText) > 2 {
		numText = numText[:2] // a compensation index, if present, follows the 2-digit number
	}
	n, err := strconv.Atoi(numText)
	if err != nil {
		return &camfile.FormatError{Line: ln.Number, Reason: "malformed tool select " + text}
	}
	if n == 0 && !ip.fmatLegacy {
		return nil
	}
	ip.activeTool = n
	return nil
}

func (ip *interpreter) coordinateCommand(ln excellonlexer.Line, text string) error {
	x, y, err := ip.decodeXY(ln, text)
	if err != nil {
		return err
	}
	ip.advance(x, y)

	switch ip.route {
	case routeDrill:
		if _, ok := ip.tools.Lookup(ip.activeTool); !ok {
			return &camfile.UndefinedToolError{Tool: ip.activeTool}
		}
		drill := primitives.NewDrill(polyclip.Point{X: ip.currentX, Y: ip.currentY}, ip.activeTool)
		ip.emit(drill)
	case routeRout:
		// a bare move in rout mode establishes the slot's start point;
		// no primitive until the matching G01 linear move closes it.
	case routeLinear:
		// a bare X/Y continuation after G01 (no new G-code on this
		// line) is position-only; drawTo already emitted the slot for
		// the segment that set this mode.
	}
	return nil
}

func (ip *interpreter) moveTo(ln excellonlexer.Line, text string) error {
	if text == "" {
		return nil
	}
	x, y, err := ip.decodeXY(ln, text)
	if err != nil {
		return err
	}
	ip.advance(x, y)
	return nil
}

func (ip *interpreter) drawTo(ln excellonlexer.Line, text string) error {
	if text == "" {
		return nil
	}
	start := polyclip.Point{X: ip.currentX, Y: ip.currentY}
	x, y, err := ip.decodeXY(ln, text)
	if err != nil {
		return err
	}
	ip.advance(x, y)
	end := polyclip.Point{X: ip.currentX, Y: ip.currentY}
	if _, ok := ip.tools.Lookup(ip.activeTool); !ok {
		return &camfile.UndefinedToolError{Tool: ip.activeTool}
	}
	ip.emit(primitives.NewSlot(start, end, ip.activeTool))
	return nil
}

// decodeXY parses an "X..Y.." (either axis optional) coordinate
// fragment against the active format, returning the resolved absolute
// or incremental target.
func (ip *interpreter) decodeXY(ln excellonlexer.Line, text string) (x, y float64, err error) {
	x, y = ip.currentX, ip.currentY
	fields := splitXYFields(text)
	for _, f := range fields {
		if len(f) < 1 {
			continue
		}
		v, err := coordfmt.Decode(f[1:], ip.format)
		if err != nil {
			return 0, 0, err
		}
		switch f[0] {
		case 'X':
			if ip.absolute {
				x = v
			} else {
				x = ip.currentX + v
			}
		case 'Y':
			if ip.absolute {
				y = v
			} else {
				y = ip.currentY + v
			}
		}
	}
	return x, y, nil
}

func splitXYFields(s string) []string {
	var fields []string
	start := -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'X', 'Y':
			if start != -1 {
				fields = append(fields, s[start:i])
			}
			start = i
		}
	}
	if start != -1 {
		fields = append(fields, s[start:])
	}
	return fields
}

func (ip *interpreter) advance(x, y float64) {
	ip.currentX, ip.currentY = x, y
}

func (ip *interpreter) emit(p primitives.Primitive) {
	halfWidth := 0.0
	if t, ok := ip.tools.Lookup(ip.activeTool); ok {
		halfWidth = t.Diameter / 2
	}
	ip.out.Primitives = append(ip.out.Primitives, p)
	ip.out.Stats.ExpandBBox(p.BoundingBox(halfWidth))
}

// repeatHole handles R<count>X<dx>Y<dy>: it replicates a drill hit
// count times, each offset by (dx, dy) from the previous position,
// following RepeatHoleStmt.from_excellon.
func (ip *interpreter) repeatHole(ln excellonlexer.Line, text string) error {
	rest := strings.TrimPrefix(text, "R")
	digitEnd := 0
	for digitEnd < len(rest) && rest[digitEnd] >= '0' && rest[digitEnd] <= '9' {
		digitEnd++
	}
	if digitEnd == 0 {
		return &camfile.FormatError{Line: ln.Number, Reason: "malformed repeat-hole count in " + text}
	}
	count, err := strconv.Atoi(rest[:digitEnd])
	if err != nil {
		return err
	}
	rest = rest[digitEnd:]

	var dx, dy float64
	if xPos := strings.IndexByte(rest, 'X'); xPos != -1 {
		yPos := strings.IndexByte(rest, 'Y')
		end := len(rest)
		if yPos != -1 {
			end = yPos
		}
		v, err := coordfmt.Decode(rest[xPos+1:end], ip.format)
		if err != nil {
			return err
		}
		dx = v
	}
	if yPos := strings.IndexByte(rest, 'Y'); yPos != -1 {
		v, err := coordfmt.Decode(rest[yPos+1:], ip.format)
		if err != nil {
			return err
		}
		dy = v
	}

	if _, ok := ip.tools.Lookup(ip.activeTool); !ok {
		return &camfile.UndefinedToolError{Tool: ip.activeTool}
	}
	for i := 0; i < count; i++ {
		ip.currentX += dx
		ip.currentY += dy
		ip.emit(primitives.NewDrill(polyclip.Point{X: ip.currentX, Y: ip.currentY}, ip.activeTool))
	}
	return nil
}

// --- dialect detection (§9 / C6) --------------------------------------

var zerosOptions = [...]gerberbasetypes.ZeroSuppression{
	gerberbasetypes.ZeroSuppressionLeading,
	gerberbasetypes.ZeroSuppressionTrailing,
}

var formatOptions = [...][2]int{
	{2, 4},
	{2, 5},
	{3, 3},
}

const minBodyBytesForInference = 32

// DetectFormat implements detect_excellon_format's brute-force scoring,
// in the three-tier priority order spec.md §4.6 lists: first honor a
// FILE_FORMAT comment together with a declared INCH/METRIC,LZ/TZ unit
// statement wherever both are present (ConfidenceDeclared); next, if
// the header declares units and zero suppression but no explicit digit
// format, assume the 2:4 inch / 3:3 metric convention
// (ConfidenceDefaulted); otherwise parse the file once under each of
// the six (zero-suppression, digit-width) combinations (only the
// declared digit width, under both zero-suppression modes, when a
// FILE_FORMAT comment gave one) and score each
// candidate with layerSizeScore, keeping the lowest-scoring one
// (ConfidenceInferred). A body too short to produce any scoreable hits
// returns UnknownDialectError.
func DetectFormat(data []byte, units gerberbasetypes.Units) (coordfmt.CoordinateFormat, Confidence, error) {
	declaredZeros, declaredFormat, declaredUnits, haveDeclaredZeros, haveDeclaredFormat, haveDeclaredUnits := scanDeclaredSettings(data)
	if haveDeclaredUnits {
		units = declaredUnits
	} else if units == gerberbasetypes.UnitsUndefined {
		units = gerberbasetypes.UnitsInch
	}

	if haveDeclaredZeros && haveDeclaredFormat {
		return coordfmt.CoordinateFormat{
			IntegerDigits: declaredFormat[0],
			DecimalDigits: declaredFormat[1],
			ZeroSuppress:  declaredZeros,
			Notation:      gerberbasetypes.NotationAbsolute,
			Units:         units,
		}, ConfidenceDeclared, nil
	}

	if haveDeclaredZeros && !haveDeclaredFormat {
		defaultIntDigits, defaultDecDigits := 2, 4
		if units == gerberbasetypes.UnitsMM {
			defaultIntDigits, defaultDecDigits = 3, 3
		}
		return coordfmt.CoordinateFormat{
			IntegerDigits: defaultIntDigits,
			DecimalDigits: defaultDecDigits,
			ZeroSuppress:  declaredZeros,
			Notation:      gerberbasetypes.NotationAbsolute,
			Units:         units,
		}, ConfidenceDefaulted, nil
	}

	if len(strings.TrimSpace(string(data))) < minBodyBytesForInference {
		return coordfmt.CoordinateFormat{}, 0, &camfile.UnknownDialectError{Reason: "body too short to infer a digit format"}
	}

	zerosCandidates := zerosOptions[:]
	if haveDeclaredZeros {
		zerosCandidates = []gerberbasetypes.ZeroSuppression{declaredZeros}
	}
	formatCandidates := formatOptions[:]
	if haveDeclaredFormat {
		formatCandidates = [][2]int{declaredFormat}
	}

	type candidate struct {
		zeros  gerberbasetypes.ZeroSuppression
		format [2]int
		score  float64
		ok     bool
	}
	var results []candidate

	for _, zeros := range zerosCandidates {
		for _, fmtPair := range formatCandidates {
			cf := coordfmt.CoordinateFormat{
				IntegerDigits: fmtPair[0],
				DecimalDigits: fmtPair[1],
				ZeroSuppress:  zeros,
				Notation:      gerberbasetypes.NotationAbsolute,
				Units:         units,
			}
			boardArea, holeCount, holeArea, ok := scoreCandidate(data, cf)
			if !ok {
				continue
			}
			score := layerSizeScore(boardArea, holeCount, holeArea)
			results = append(results, candidate{zeros: zeros, format: fmtPair, score: score, ok: true})
		}
	}

	if len(results) == 0 {
		return coordfmt.CoordinateFormat{}, 0, &camfile.UnknownDialectError{Reason: "no candidate digit format produced a parseable file"}
	}

	best := results[0]
	for _, c := range results[1:] {
		if c.score < best.score {
			best = c
		}
	}
	return coordfmt.CoordinateFormat{
		IntegerDigits: best.format[0],
		DecimalDigits: best.format[1],
		ZeroSuppress:  best.zeros,
		Notation:      gerberbasetypes.NotationAbsolute,
		Units:         units,
	}, ConfidenceInferred, nil
}

// scanDeclaredSettings looks for an explicit ;FILE_FORMAT=i:d comment
// and an INCH/METRIC,LZ/TZ unit statement (or an M71/M72 unit
// directive) anywhere in the file, mirroring _parse_line's comment and
// UnitStmt handling.
func scanDeclaredSettings(data []byte) (zeros gerberbasetypes.ZeroSuppression, format [2]int, units gerberbasetypes.Units, haveZeros, haveFormat, haveUnits bool) {
	for _, ln := range excellonlexer.Tokenize(data) {
		text := ln.Text
		if strings.HasPrefix(text, ";") && strings.Contains(text, "FILE_FORMAT") {
			eq := strings.Index(text, "=")
			if eq == -1 {
				continue
			}
			parts := strings.Split(text[eq+1:], ":")
			if len(parts) != 2 {
				continue
			}
			i, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
			d, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err1 == nil && err2 == nil {
				format = [2]int{i, d}
				haveFormat = true
			}
			continue
		}
		if strings.Contains(text, "INCH") || strings.Contains(text, "METRIC") {
			if strings.Contains(text, "INCH") {
				units = gerberbasetypes.UnitsInch
			} else {
				units = gerberbasetypes.UnitsMM
			}
			haveUnits = true
			if strings.Contains(text, "LZ") {
				zeros = gerberbasetypes.ZeroSuppressionLeading
				haveZeros = true
			} else if strings.Contains(text, "TZ") {
				zeros = gerberbasetypes.ZeroSuppressionTrailing
				haveZeros = true
			}
		}
		if strings.HasPrefix(text, "M71") || strings.HasPrefix(text, "M72") {
			units = gerberbasetypes.UnitsMM
			if strings.HasPrefix(text, "M72") {
				units = gerberbasetypes.UnitsInch
			}
			haveUnits = true
		}
	}
	return
}

// scoreCandidate parses data under cf and reports the resulting
// bounding-box size and aggregate hole area (sum of pi*(d/2)^2 over
// every drill hit, using each hit's own tool diameter), the two inputs
// layerSizeScore needs. ok is false if parsing failed outright (a
// malformed candidate produces no usable score, matching upstream's
// bare except that drops the candidate from consideration).
func scoreCandidate(data []byte, cf coordfmt.CoordinateFormat) (boardArea float64, holeCount int, holeArea float64, ok bool) {
	ip, err := run(data, cf)
	if err != nil {
		return 0, 0, 0, false
	}
	width := ip.out.Stats.BBox.Max.X - ip.out.Stats.BBox.Min.X
	height := ip.out.Stats.BBox.Max.Y - ip.out.Stats.BBox.Min.Y
	board := width * height

	count := 0
	area := 0.0
	for _, p := range ip.out.Primitives {
		if p.Kind != primitives.KindDrill {
			continue
		}
		count++
		if t, ok := ip.tools.Lookup(p.Tool); ok {
			area += piConst * (t.Diameter / 2) * (t.Diameter / 2)
		}
	}
	return board, count, area, true
}

const piConst = 3.14159265358979323846

// layerSizeScore mirrors _layer_size_score: lower is better, balancing
// a board whose hole-to-area ratio sits near 25% against a board
// area near 8 (the heuristic's empirical sweet spot for drill files).
func layerSizeScore(boardArea float64, holeCount int, holeArea float64) float64 {
	if boardArea == 0 {
		return 1e18
	}
	holePercentage := holeArea / boardArea
	holeScore := (holePercentage - 0.25) * (holePercentage - 0.25)
	sizeScore := (boardArea - 8) * (boardArea - 8)
	return holeScore * sizeScore
}
