/*
Package gerber implements the RS-274X Interpreter (C5): the modal
graphics-state machine that turns a stream of gerberlexer.Blocks into
a camfile.CamFile.

The state machine's shape — one current aperture, one current point,
one interpolation/quadrant/region/polarity mode, advanced one
statement at a time — follows gerbparser.go's State.CreateStep, with
the string-prefix dispatch generalized from a single monolithic
switch into per-directive parsing functions so each concern (aperture
definitions, macro capture, region accumulation, step-and-repeat) has
its own well-named home, in the spirit of the package-split rewrite in
gerberstates.go/apertures.go the teacher left unwired.
*/
package gerber

import (
	"math"
	"strconv"
	"strings"

	"github.com/akavel/polyclip-go"
	"github.com/golang/glog"

	"github.com/curtacircuitos/pcb-tools/apertures"
	"github.com/curtacircuitos/pcb-tools/camfile"
	"github.com/curtacircuitos/pcb-tools/coordfmt"
	"github.com/curtacircuitos/pcb-tools/gerberbasetypes"
	"github.com/curtacircuitos/pcb-tools/gerberlexer"
	"github.com/curtacircuitos/pcb-tools/macro"
	"github.com/curtacircuitos/pcb-tools/primitives"
)

// graphicsState is the modal state carried forward across statements,
// mirroring gerbparser's State but keyed to this package's types.
type graphicsState struct {
	format        coordfmt.CoordinateFormat
	units         gerberbasetypes.Units
	polarity      gerberbasetypes.PolType
	quadMode      gerberbasetypes.QuadMode
	ipMode        gerberbasetypes.IPMode
	regionMode    gerberbasetypes.RegionMode
	imagePolarity gerberbasetypes.ImagePolarity

	currentX, currentY float64
	haveCurrentPoint   bool
	currentAperture    int

	regionStartLine int
	regionContour   []primitives.Segment

	pendingObjectAttrs []camfile.Attribute
}

// interpreter holds the state machine plus the accumulating output.
type interpreter struct {
	state graphicsState

	apertureDict *apertures.Dictionary
	macros       map[string]*macro.Definition

	out camfile.CamFile

	blockApertureOpen  bool
	blockApertureCode  int
	blockApertureStart int
	blockApertureBody  []primitives.Primitive

	srOpen   bool
	srX, srY int
	srI, srJ float64
	srBody   []primitives.Primitive

	done bool
}

// Parse interprets a complete Gerber source file and returns its
// CamFile. A fatal condition (malformed FS/MO/AD, an unterminated
// %...% parameter group at lex time, ...) aborts and returns the error; non-fatal
// conditions (coordinate overflow, undefined aperture, flash-in-region,
// ambiguous arc, an unclosed region at EOF, a macro referencing an
// unknown primitive code leaving its aperture undefined) drop the
// offending emission, accumulate a Note into CamFile.Stats.Notes, and
// parsing continues, per §7.
func Parse(data []byte) (*camfile.CamFile, error) {
	blocks, err := gerberlexer.Tokenize(data)
	if err != nil {
		return nil, err
	}

	ip := &interpreter{
		apertureDict: apertures.NewDictionary(),
		macros:       make(map[string]*macro.Definition),
	}
	ip.out.Format = camfile.FormatGerber
	ip.state.polarity = gerberbasetypes.PolTypeDark
	ip.state.ipMode = gerberbasetypes.IPModeLinear
	ip.state.imagePolarity = gerberbasetypes.ImagePolarityPositive

	i := 0
	for i < len(blocks) {
		b := blocks[i]

		if b.Parameter && strings.HasPrefix(b.Text, "AM") {
			j := i
			var group []gerberlexer.Block
			for j < len(blocks) && blocks[j].Parameter && blocks[j].Group == b.Group {
				group = append(group, blocks[j])
				j++
			}
			if err := ip.captureMacro(group); err != nil {
				if upe, ok := err.(*macro.UnknownPrimitiveError); ok {
					ip.out.Stats.Note(b.Line, camfile.NoteUnknownMacroPrimitive, upe.Error())
				} else {
					return nil, err
				}
			}
			i = j
			continue
		}

		if err := ip.dispatch(b); err != nil {
			if isFatal(err) {
				return nil, err
			}
			ip.out.Stats.Note(b.Line, noteKindForError(err), err.Error())
		}
		if ip.done {
			i++
			break
		}
		i++
	}

	for ; i < len(blocks); i++ {
		ip.out.Stats.Note(blocks[i].Line, camfile.NoteTrailingAfterEOF, blocks[i].Text)
	}

	if ip.state.regionMode == gerberbasetypes.RegionModeOn {
		unclosed := &camfile.UnclosedRegionError{G36Line: ip.state.regionStartLine}
		ip.out.Stats.Note(ip.state.regionStartLine, camfile.NoteUnclosedRegion, unclosed.Error())
		ip.state.regionMode = gerberbasetypes.RegionModeOff
		ip.state.regionContour = nil
	}

	ip.out.Stats.Format = camfile.FormatGerber
	ip.out.Stats.Units = ip.state.units
	ip.out.Apertures = ip.apertureDict
	ip.out.Macros = ip.macros
	return &ip.out, nil
}

// isFatal reports whether err must abort Parse outright. Only the
// four non-fatal kinds §7 names (a coordinate overflowing its format,
// an undefined aperture, a flash inside a region, an ambiguous arc)
// are recorded as a Note and parsing continues; everything else —
// including a malformed %FS/%MO/%AD and any raw error bubbling up from
// number parsing — aborts the parse.
func isFatal(err error) bool {
	switch err.(type) {
	case *coordfmt.NumberOverflow, *camfile.UndefinedApertureError,
		*camfile.FlashInRegionError, *camfile.AmbiguousArcError:
		return false
	default:
		return true
	}
}

// noteKindForError maps a non-fatal error from dispatch to the Note
// kind it is recorded under.
func noteKindForError(err error) camfile.NoteKind {
	switch err.(type) {
	case *coordfmt.NumberOverflow:
		return camfile.NoteNumberOverflow
	case *camfile.UndefinedApertureError:
		return camfile.NoteUndefinedAperture
	case *camfile.FlashInRegionError:
		return camfile.NoteFlashInRegion
	case *camfile.AmbiguousArcError:
		return camfile.NoteAmbiguousArc
	default:
		return camfile.NoteUnknownCommand
	}
}

func (ip *interpreter) captureMacro(group []gerberlexer.Block) error {
	var sb strings.Builder
	for _, b := range group {
		sb.WriteString(b.Text)
		sb.WriteByte('*')
	}
	def, err := macro.Parse(sb.String())
	if err != nil {
		return err
	}
	ip.macros[def.Name] = def
	return nil
}

func (ip *interpreter) dispatch(b gerberlexer.Block) error {
	text := b.Text

	if ip.blockApertureOpen && !b.Parameter {
		return ip.appendToOpenBlockAperture(b)
	}

	switch {
	case b.Parameter && strings.HasPrefix(text, "FS"):
		return ip.handleFS(b)
	case b.Parameter && strings.HasPrefix(text, "MO"):
		return ip.handleMO(b)
	case b.Parameter && strings.HasPrefix(text, "ADD"):
		return ip.handleAD(b)
	case b.Parameter && strings.HasPrefix(text, "AB"):
		return ip.handleAB(b)
	case b.Parameter && strings.HasPrefix(text, "LP"):
		return ip.handleLP(b)
	case b.Parameter && strings.HasPrefix(text, "SR"):
		return ip.handleSR(b)
	case b.Parameter && strings.HasPrefix(text, "IP"):
		return ip.handleIP(b)
	case b.Parameter && strings.HasPrefix(text, "TF"):
		ip.out.Attributes = append(ip.out.Attributes, parseAttribute(text))
		return nil
	case b.Parameter && (strings.HasPrefix(text, "TA") || strings.HasPrefix(text, "TO")):
		ip.state.pendingObjectAttrs = append(ip.state.pendingObjectAttrs, parseAttribute(text))
		return nil
	case b.Parameter && strings.HasPrefix(text, "TD"):
		name := strings.TrimPrefix(text, "TD")
		if name == "" {
			ip.out.Attributes = nil
			ip.state.pendingObjectAttrs = nil
			return nil
		}
		keep := func(in []camfile.Attribute) []camfile.Attribute {
			var kept []camfile.Attribute
			for _, a := range in {
				if a.Name[2:] != name {
					kept = append(kept, a)
				}
			}
			return kept
		}
		ip.out.Attributes = keep(ip.out.Attributes)
		ip.state.pendingObjectAttrs = keep(ip.state.pendingObjectAttrs)
		return nil
	}

	if !b.Parameter {
		switch {
		case text == "G01" || text == "G1":
			ip.state.ipMode = gerberbasetypes.IPModeLinear
			return nil
		case text == "G02" || text == "G2":
			ip.state.ipMode = gerberbasetypes.IPModeCwC
			return nil
		case text == "G03" || text == "G3":
			ip.state.ipMode = gerberbasetypes.IPModeCCwC
			return nil
		case text == "G74":
			ip.state.quadMode = gerberbasetypes.QuadModeSingle
			return nil
		case text == "G75":
			ip.state.quadMode = gerberbasetypes.QuadModeMulti
			return nil
		case text == "G36":
			ip.state.regionMode = gerberbasetypes.RegionModeOn
			ip.state.regionStartLine = b.Line
			ip.state.regionContour = nil
			return nil
		case text == "G37":
			return ip.closeRegion()
		case text == "G90":
			return nil // absolute notation confirmed; FS already set Notation
		case text == "G91":
			return nil // incremental notation: format-level, not reprocessed here
		case text == "G70", text == "G71":
			return nil // legacy unit selects, superseded by MO
		case strings.HasPrefix(text, "G54"):
			text = strings.TrimPrefix(text, "G54")
		case text == "G55":
			return nil
		case strings.HasPrefix(text, "G04"):
			ip.out.Stats.Note(b.Line, camfile.NoteComment, strings.TrimSpace(strings.TrimPrefix(text, "G04")))
			return nil
		case text == "M02" || text == "M00" || text == "M01":
			ip.done = true
			return nil
		}

		if strings.HasPrefix(text, "D") && len(text) > 1 && isDigitRun(text[1:]) {
			code, err := strconv.Atoi(text[1:])
			if err != nil {
				return err
			}
			if code >= 10 {
				ip.state.currentAperture = code
				return nil
			}
			return ip.handleOperation(b, code)
		}

		if isCoordinateThenOp(text) {
			code := int(text[len(text)-1] - '0')
			return ip.handleOperation(b, code)
		}
	}

	glog.Warningln("gerber: unrecognized statement at line", b.Line, text)
	ip.out.Stats.Note(b.Line, camfile.NoteUnknownCommand, text)
	return nil
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

// isCoordinateThenOp recognizes "X..Y..D0{1,2,3}" style operation
// statements, also accepting the short "D{1,2,3}" opcode form (the
// common case, as opposed to the rarer bare "Dnn" aperture select
// already handled above).
func isCoordinateThenOp(text string) bool {
	n := len(text)
	if n < 3 || (text[n-1] != '1' && text[n-1] != '2' && text[n-1] != '3') {
		return false
	}
	if text[n-2] != 'D' && !(text[n-2] == '0' && text[n-3] == 'D') {
		return false
	}
	return strings.ContainsAny(text, "XYIJ")
}

func (ip *interpreter) handleFS(b gerberlexer.Block) error {
	text := b.Text
	if ip.state.format.IsSet() {
		return &camfile.FormatError{Line: b.Line, Reason: "duplicate FS"}
	}
	if len(text) < 4 {
		return &camfile.FormatError{Line: b.Line, Reason: "FS statement too short"}
	}
	var zs gerberbasetypes.ZeroSuppression
	switch text[2] {
	case 'L':
		zs = gerberbasetypes.ZeroSuppressionLeading
	case 'T':
		zs = gerberbasetypes.ZeroSuppressionTrailing
	case 'N':
		zs = gerberbasetypes.ZeroSuppressionNone
	default:
		return &camfile.FormatError{Line: b.Line, Reason: "unknown zero suppression " + string(text[2])}
	}
	var notation gerberbasetypes.Notation
	switch text[3] {
	case 'A':
		notation = gerberbasetypes.NotationAbsolute
	case 'I':
		notation = gerberbasetypes.NotationIncremental
	default:
		return &camfile.FormatError{Line: b.Line, Reason: "unknown notation " + string(text[3])}
	}

	xPos := strings.IndexByte(text, 'X')
	yPos := strings.IndexByte(text, 'Y')
	if xPos == -1 || yPos == -1 || yPos < xPos+3 {
		return &camfile.FormatError{Line: b.Line, Reason: "malformed FS digit spec"}
	}
	xIntDigits, err := strconv.Atoi(text[xPos+1 : xPos+2])
	if err != nil {
		return &camfile.FormatError{Line: b.Line, Reason: "malformed FS X integer digit count"}
	}
	xDecDigits, err := strconv.Atoi(text[xPos+2 : xPos+3])
	if err != nil {
		return &camfile.FormatError{Line: b.Line, Reason: "malformed FS X decimal digit count"}
	}

	ip.state.format = coordfmt.CoordinateFormat{
		IntegerDigits: xIntDigits,
		DecimalDigits: xDecDigits,
		ZeroSuppress:  zs,
		Notation:      notation,
	}
	return nil
}

func (ip *interpreter) handleMO(b gerberlexer.Block) error {
	switch strings.TrimPrefix(b.Text, "MO") {
	case "MM":
		ip.state.units = gerberbasetypes.UnitsMM
	case "IN":
		ip.state.units = gerberbasetypes.UnitsInch
	default:
		return &camfile.FormatError{Line: b.Line, Reason: "unknown MO unit " + b.Text}
	}
	ip.state.format.Units = ip.state.units
	return nil
}

func (ip *interpreter) handleIP(b gerberlexer.Block) error {
	switch strings.TrimPrefix(b.Text, "IP") {
	case "POS":
		ip.state.imagePolarity = gerberbasetypes.ImagePolarityPositive
	case "NEG":
		ip.state.imagePolarity = gerberbasetypes.ImagePolarityNegative
		glog.Warningln("gerber: negative image polarity at line", b.Line, "- downstream consumer must invert")
	}
	return nil
}

func (ip *interpreter) handleLP(b gerberlexer.Block) error {
	switch strings.TrimPrefix(b.Text, "LP") {
	case "D":
		ip.state.polarity = gerberbasetypes.PolTypeDark
	case "C":
		ip.state.polarity = gerberbasetypes.PolTypeClear
	default:
		return &camfile.FormatError{Line: b.Line, Reason: "unknown LP value " + b.Text}
	}
	return nil
}

func parseAttribute(text string) camfile.Attribute {
	prefix := text[:2]
	rest := text[2:]
	fields := strings.Split(rest, ",")
	name := prefix
	if len(fields) > 0 {
		name = prefix + fields[0]
		fields = fields[1:]
	}
	return camfile.Attribute{Name: name, Fields: fields}
}

func (ip *interpreter) handleAD(b gerberlexer.Block) error {
	text := strings.TrimPrefix(b.Text, "AD")
	if !strings.HasPrefix(text, "D") {
		return &camfile.FormatError{Line: b.Line, Reason: "AD statement missing D-code"}
	}
	text = text[1:]
	p := 0
	for p < len(text) && text[p] >= '0' && text[p] <= '9' {
		p++
	}
	if p == 0 {
		return &camfile.FormatError{Line: b.Line, Reason: "AD statement has no D-code digits"}
	}
	code, _ := strconv.Atoi(text[:p])
	shapeSpec := text[p:]
	if shapeSpec == "" {
		return &camfile.FormatError{Line: b.Line, Reason: "AD statement missing aperture shape"}
	}

	ap := &apertures.Aperture{}
	if isStandardShape(shapeSpec) {
		if err := ap.ParseStandard(code, shapeSpec, 1); err != nil {
			return err
		}
	} else {
		name := shapeSpec
		var params []float64
		if comma := strings.IndexByte(shapeSpec, ','); comma >= 0 {
			name = shapeSpec[:comma]
			for _, f := range strings.Split(shapeSpec[comma+1:], "X") {
				v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
				if err != nil {
					return err
				}
				params = append(params, v)
			}
		}
		if _, ok := ip.macros[name]; !ok {
			ip.out.Stats.Note(b.Line, camfile.NoteUnknownMacroPrimitive, "D"+strconv.Itoa(code)+" left undefined: macro "+name+" has no usable definition")
			return nil
		}
		ap.ParseMacro(code, name, params)
	}

	if redefined := ip.apertureDict.Define(ap); redefined {
		ip.out.Stats.Note(b.Line, camfile.NoteRedefinedAperture, "D"+strconv.Itoa(code))
	}
	return nil
}

func isStandardShape(spec string) bool {
	if spec == "" {
		return false
	}
	switch spec[0] {
	case 'C', 'R', 'O', 'P':
		return len(spec) == 1 || spec[1] == ','
	default:
		return false
	}
}

func (ip *interpreter) handleAB(b gerberlexer.Block) error {
	text := strings.TrimPrefix(b.Text, "AB")
	if text == "" {
		// closing %AB*%
		ap := &apertures.Aperture{
			Code:            ip.blockApertureCode,
			Type:            gerberbasetypes.AptypeBlock,
			BlockPrimitives: ip.blockApertureBody,
		}
		ip.apertureDict.Define(ap)
		ip.blockApertureOpen = false
		ip.blockApertureBody = nil
		return nil
	}
	if !strings.HasPrefix(text, "D") {
		return &camfile.FormatError{Line: b.Line, Reason: "AB statement missing D-code"}
	}
	code, err := strconv.Atoi(text[1:])
	if err != nil {
		return &camfile.FormatError{Line: b.Line, Reason: "malformed AB D-code"}
	}
	ip.blockApertureOpen = true
	ip.blockApertureCode = code
	ip.blockApertureStart = b.Line
	ip.blockApertureBody = nil
	return nil
}

func (ip *interpreter) appendToOpenBlockAperture(b gerberlexer.Block) error {
	before := len(ip.out.Primitives)
	if err := ip.dispatchIgnoringBlockCapture(b); err != nil {
		return err
	}
	if len(ip.out.Primitives) > before {
		ip.blockApertureBody = append(ip.blockApertureBody, ip.out.Primitives[before:]...)
		ip.out.Primitives = ip.out.Primitives[:before]
	}
	return nil
}

// dispatchIgnoringBlockCapture re-enters the ordinary dispatch while
// the block-aperture-open flag is set, so nested G-codes/D-codes run
// their usual effect; the caller then siphons any primitive they
// produced into the open block's body instead of the file's output.
func (ip *interpreter) dispatchIgnoringBlockCapture(b gerberlexer.Block) error {
	wasOpen := ip.blockApertureOpen
	ip.blockApertureOpen = false
	err := ip.dispatch(b)
	ip.blockApertureOpen = wasOpen
	return err
}

func (ip *interpreter) handleSR(b gerberlexer.Block) error {
	text := strings.TrimPrefix(b.Text, "SR")
	if text == "" {
		// closing %SR*%: replicate srBody across the X/Y grid
		for x := 0; x < maxInt(ip.srX, 1); x++ {
			for y := 0; y < maxInt(ip.srY, 1); y++ {
				dx, dy := float64(x)*ip.srI, float64(y)*ip.srJ
				for _, p := range ip.srBody {
					if x != 0 || y != 0 {
						p = translatePrimitive(p, dx, dy)
					}
					ip.out.Primitives = append(ip.out.Primitives, p)
					ip.out.Stats.ExpandBBox(p.BoundingBox(ip.apertureHalfWidth(p.ApertureID)))
				}
			}
		}
		ip.srOpen = false
		ip.srBody = nil
		return nil
	}

	ip.srX, ip.srY = 1, 1
	xPos := strings.IndexByte(text, 'X')
	yPos := strings.IndexByte(text, 'Y')
	iPos := strings.IndexByte(text, 'I')
	jPos := strings.IndexByte(text, 'J')
	getField := func(start int, stops ...int) string {
		if start == -1 {
			return ""
		}
		end := len(text)
		for _, s := range stops {
			if s != -1 && s > start && s < end {
				end = s
			}
		}
		return text[start+1 : end]
	}
	if v := getField(xPos, yPos, iPos, jPos); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &camfile.FormatError{Line: b.Line, Reason: "malformed SR X repeat count"}
		}
		ip.srX = n
	}
	if v := getField(yPos, iPos, jPos); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &camfile.FormatError{Line: b.Line, Reason: "malformed SR Y repeat count"}
		}
		ip.srY = n
	}
	if v := getField(iPos, jPos); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &camfile.FormatError{Line: b.Line, Reason: "malformed SR I step"}
		}
		ip.srI = f
	}
	if v := getField(jPos); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &camfile.FormatError{Line: b.Line, Reason: "malformed SR J step"}
		}
		ip.srJ = f
	}
	ip.srOpen = true
	ip.srBody = nil
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func translatePrimitive(p primitives.Primitive, dx, dy float64) primitives.Primitive {
	shift := func(pt polyclip.Point) polyclip.Point { return polyclip.Point{X: pt.X + dx, Y: pt.Y + dy} }
	p.Start = shift(p.Start)
	p.End = shift(p.End)
	p.Center = shift(p.Center)
	p.Position = shift(p.Position)
	p.Contour = append([]primitives.Segment(nil), p.Contour...)
	for i := range p.Contour {
		p.Contour[i].Start = shift(p.Contour[i].Start)
		p.Contour[i].End = shift(p.Contour[i].End)
		p.Contour[i].Center = shift(p.Contour[i].Center)
	}
	return p
}

func (ip *interpreter) closeRegion() error {
	ip.state.regionMode = gerberbasetypes.RegionModeOff
	if len(ip.state.regionContour) == 0 {
		return nil
	}
	region := primitives.NewRegion(ip.state.regionContour, ip.state.polarity)
	ip.emit(region)
	ip.state.regionContour = nil
	return nil
}

// handleOperation executes a D01 (draw), D02 (move) or D03 (flash)
// statement whose coordinate fields precede the opcode text in text.
func (ip *interpreter) handleOperation(b gerberlexer.Block, opcode int) error {
	if !ip.state.format.IsSet() {
		return &camfile.FormatError{Line: b.Line, Reason: "coordinate operation before %FS"}
	}
	text := b.Text
	coordText := ""
	if strings.ContainsAny(text, "XYIJ") {
		// coordinate fields are always followed by the D01/D02/D03 (or short D1/D2/D3) opcode
		coordText = text[:strings.LastIndexByte(text, 'D')]
	}

	x, y := ip.state.currentX, ip.state.currentY
	var iOff, jOff float64

	fields := splitCoordFields(coordText)
	for _, f := range fields {
		if len(f) == 0 {
			continue
		}
		axis := f[0]
		v, err := coordfmt.Decode(f[1:], ip.state.format)
		if err != nil {
			return err
		}
		switch axis {
		case 'X':
			x = v
		case 'Y':
			y = v
		case 'I':
			iOff = v
		case 'J':
			jOff = v
		}
	}

	switch opcode {
	case 2: // D02 move
		ip.state.currentX, ip.state.currentY = x, y
		ip.state.haveCurrentPoint = true
		return nil
	case 3: // D03 flash
		if ip.state.regionMode == gerberbasetypes.RegionModeOn {
			return &camfile.FlashInRegionError{Line: b.Line}
		}
		ap, ok := ip.apertureDict.Lookup(ip.state.currentAperture)
		if !ok {
			return &camfile.UndefinedApertureError{DCode: ip.state.currentAperture}
		}
		if ap.Type == gerberbasetypes.AptypeBlock {
			for _, p := range ap.BlockPrimitives {
				ip.emit(translatePrimitive(p, x, y))
			}
		} else {
			ip.emit(primitives.NewFlash(polyclip.Point{X: x, Y: y}, ip.state.currentAperture, ip.state.polarity))
		}
		ip.state.currentX, ip.state.currentY = x, y
		ip.state.haveCurrentPoint = true
		return nil
	case 1: // D01 draw
		start := polyclip.Point{X: ip.state.currentX, Y: ip.state.currentY}
		end := polyclip.Point{X: x, Y: y}
		if ip.state.regionMode != gerberbasetypes.RegionModeOn {
			if _, ok := ip.apertureDict.Lookup(ip.state.currentAperture); !ok {
				return &camfile.UndefinedApertureError{DCode: ip.state.currentAperture}
			}
		}
		if ip.state.ipMode == gerberbasetypes.IPModeLinear {
			ip.emitSegmentOrPrimitive(primitives.NewLine(start, end, ip.state.currentAperture, ip.state.polarity),
				primitives.Segment{Start: start, End: end})
		} else {
			clockwise := ip.state.ipMode == gerberbasetypes.IPModeCwC
			var center polyclip.Point
			if ip.state.quadMode == gerberbasetypes.QuadModeMulti {
				center = polyclip.Point{X: start.X + iOff, Y: start.Y + jOff}
			} else {
				var err error
				center, err = resolveSingleQuadrantCenter(start, end, absf(iOff), absf(jOff), clockwise, ip.state.format.DecimalDigits)
				if err != nil {
					return &camfile.AmbiguousArcError{Line: b.Line}
				}
			}
			ip.emitSegmentOrPrimitive(
				primitives.NewArc(start, end, center, clockwise, ip.state.currentAperture, ip.state.polarity),
				primitives.Segment{IsArc: true, Start: start, End: end, Center: center, Clockwise: clockwise},
			)
		}
		ip.state.currentX, ip.state.currentY = x, y
		ip.state.haveCurrentPoint = true
		return nil
	}
	return nil
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func splitCoordFields(s string) []string {
	var fields []string
	start := -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'X', 'Y', 'I', 'J':
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

// emitSegmentOrPrimitive records seg into the open region's contour if
// region mode is on, otherwise emits prim as a standalone primitive.
func (ip *interpreter) emitSegmentOrPrimitive(prim primitives.Primitive, seg primitives.Segment) {
	if ip.state.regionMode == gerberbasetypes.RegionModeOn {
		ip.state.regionContour = append(ip.state.regionContour, seg)
		return
	}
	ip.emit(prim)
}

func (ip *interpreter) emit(p primitives.Primitive) {
	if len(ip.state.pendingObjectAttrs) > 0 {
		p.Attributes = append(p.Attributes, toPrimAttrs(ip.state.pendingObjectAttrs)...)
		ip.state.pendingObjectAttrs = nil
	}
	if ip.blockApertureOpen {
		ip.out.Primitives = append(ip.out.Primitives, p)
		return
	}
	if ip.srOpen {
		ip.srBody = append(ip.srBody, p)
		return
	}
	ip.out.Primitives = append(ip.out.Primitives, p)
	ip.out.Stats.ExpandBBox(p.BoundingBox(ip.apertureHalfWidth(p.ApertureID)))
}

// apertureHalfWidth looks up code in the aperture dictionary and
// returns the half-width BoundingBox should expand a Line/Arc/Flash
// box by: a circle or polygon's radius, a rectangle or obround's
// half-diagonal. A macro or block aperture's true extent depends on
// expanding its body, which this package leaves to a downstream
// renderer (per primitives' own doc comment), so it contributes 0 here
// rather than guessing.
func (ip *interpreter) apertureHalfWidth(code int) float64 {
	ap, ok := ip.apertureDict.Lookup(code)
	if !ok {
		return 0
	}
	switch ap.Type {
	case gerberbasetypes.AptypeCircle, gerberbasetypes.AptypePoly:
		return ap.Diameter / 2
	case gerberbasetypes.AptypeRectangle, gerberbasetypes.AptypeObround:
		return math.Hypot(ap.XSize/2, ap.YSize/2)
	default:
		return 0
	}
}

func toPrimAttrs(in []camfile.Attribute) []primitives.Attribute {
	out := make([]primitives.Attribute, len(in))
	for i, a := range in {
		out[i] = primitives.Attribute{Name: a.Name, Fields: a.Fields}
	}
	return out
}
