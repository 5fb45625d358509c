/*
Package apertures implements the Aperture Dictionary (C3): the
standard and macro aperture shapes a Gerber file defines with %ADD and
%AM/%AB, keyed by D-code, plus the tool table (C3's Excellon
counterpart) keyed by tool number.

Both dictionaries keep a container/list beside their lookup map so
that Each visits entries in definition order, matching gerbparser.go's
apertl *list.List traversal in the teacher.
*/
package apertures

import (
	"container/list"
	"errors"
	"strconv"
	"strings"

	"github.com/curtacircuitos/pcb-tools/gerberbasetypes"
	"github.com/curtacircuitos/pcb-tools/primitives"
)

// Aperture is the sum type of standard-shape, macro and block
// apertures. Type selects which fields are meaningful.
type Aperture struct {
	Code         int
	SourceString string
	Type         gerberbasetypes.GerberApType

	// Circle/Rectangle/Obround/Poly
	XSize        float64
	YSize        float64
	Diameter     float64
	HoleDiameter float64
	Vertices     int
	RotAngle     float64

	// Macro
	MacroName   string
	MacroParams []float64

	// Block (%AB): the nested primitive stream captured between %AB and
	// %AB*%, already resolved by the interpreter that defined it.
	BlockPrimitives []primitives.Primitive
}

// GetCode returns the D-code this aperture was defined under.
func (a *Aperture) GetCode() int {
	return a.Code
}

// ParseStandard fills in a.Type and its shape fields from the body of
// a %ADD statement (the part after "ADD<code>", e.g. "C,0.010" or
// "R,0.060X0.060"). mu converts the file's native unit fields into
// the caller's working unit if non-1; pass 1 to keep native units.
func (a *Aperture) ParseStandard(code int, body string, mu float64) error {
	a.Code = code
	a.SourceString = body
	body = strings.TrimSpace(body)
	if body == "" {
		return errors.New("apertures: empty standard aperture body")
	}

	shape := body[0]
	rest := body
	if idx := strings.IndexRune(body, ','); idx >= 0 {
		rest = body[idx+1:]
	} else {
		rest = ""
	}
	fields := strings.Split(rest, "X")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if rest == "" {
		fields = nil
	}

	var err error
	switch shape {
	case 'C':
		a.Type = gerberbasetypes.AptypeCircle
		if len(fields) != 1 && len(fields) != 2 {
			return errors.New("apertures: bad number of parameters for circle aperture")
		}
		for i, f := range fields {
			var v float64
			if v, err = strconv.ParseFloat(f, 64); err != nil {
				return err
			}
			switch i {
			case 0:
				a.Diameter = v
			case 1:
				a.HoleDiameter = v
			}
		}
	case 'R':
		a.Type = gerberbasetypes.AptypeRectangle
		if len(fields) != 2 && len(fields) != 3 {
			return errors.New("apertures: bad number of parameters for rectangle aperture")
		}
		for i, f := range fields {
			var v float64
			if v, err = strconv.ParseFloat(f, 64); err != nil {
				return err
			}
			switch i {
			case 0:
				a.XSize = v
			case 1:
				a.YSize = v
			case 2:
				a.HoleDiameter = v
			}
		}
	case 'O':
		a.Type = gerberbasetypes.AptypeObround
		if len(fields) != 2 && len(fields) != 3 {
			return errors.New("apertures: bad number of parameters for obround aperture")
		}
		for i, f := range fields {
			var v float64
			if v, err = strconv.ParseFloat(f, 64); err != nil {
				return err
			}
			switch i {
			case 0:
				a.XSize = v
			case 1:
				a.YSize = v
			case 2:
				a.HoleDiameter = v
			}
		}
	case 'P':
		a.Type = gerberbasetypes.AptypePoly
		if len(fields) < 2 || len(fields) > 4 {
			return errors.New("apertures: bad number of parameters for polygon aperture")
		}
		for i, f := range fields {
			var v float64
			if v, err = strconv.ParseFloat(f, 64); err != nil {
				return err
			}
			switch i {
			case 0:
				a.Diameter = v
			case 1:
				a.Vertices = int(v)
			case 2:
				a.RotAngle = v
			case 3:
				a.HoleDiameter = v
			}
		}
	default:
		return errors.New("apertures: " + strconv.QuoteRune(rune(shape)) + " is not a standard aperture shape, use ParseMacro")
	}

	a.HoleDiameter *= mu
	a.Diameter *= mu
	a.XSize *= mu
	a.YSize *= mu
	return nil
}

// ParseMacro builds a macro-aperture reference: name is the AM block
// name referenced by %ADD<code><name>,p1Xp2X...%, and params are the
// modifier values substituted for $1,$2,... when the macro is
// expanded (C4).
func (a *Aperture) ParseMacro(code int, name string, params []float64) {
	a.Code = code
	a.Type = gerberbasetypes.AptypeMacro
	a.MacroName = name
	a.MacroParams = params
}

// Dictionary is the D-code-to-Aperture table a Gerber interpreter
// builds as it consumes %ADD/%AM/%AB statements. Redefining a D-code
// already present replaces it (last write wins) and reports that it
// happened so the caller can record a Note.
type Dictionary struct {
	order *list.List
	index map[int]*list.Element
}

// NewDictionary returns an empty aperture dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{order: list.New(), index: make(map[int]*list.Element)}
}

// Define inserts or replaces the aperture at ap.Code. It reports
// redefined == true when a prior definition under the same code is
// being overwritten.
func (d *Dictionary) Define(ap *Aperture) (redefined bool) {
	if el, ok := d.index[ap.Code]; ok {
		el.Value = ap
		return true
	}
	el := d.order.PushBack(ap)
	d.index[ap.Code] = el
	return false
}

// Lookup returns the aperture defined under code and true, or nil and
// false if it is not present. The caller turns a miss into a
// camfile.UndefinedApertureError; this package does not import camfile,
// which imports apertures.
func (d *Dictionary) Lookup(code int) (*Aperture, bool) {
	el, ok := d.index[code]
	if !ok {
		return nil, false
	}
	return el.Value.(*Aperture), true
}

// Each calls fn for every defined aperture in definition order,
// stopping early if fn returns false.
func (d *Dictionary) Each(fn func(*Aperture) bool) {
	for e := d.order.Front(); e != nil; e = e.Next() {
		if !fn(e.Value.(*Aperture)) {
			return
		}
	}
}

// Len reports how many apertures are currently defined.
func (d *Dictionary) Len() int {
	return d.order.Len()
}

// Tool is the Excellon counterpart of Aperture: a drill/rout tool
// defined in the header by a T<n>C<diameter> statement.
type Tool struct {
	Number   int
	Diameter float64
}

// ToolTable is the tool-number-to-Tool table an Excellon interpreter
// builds from its header section.
type ToolTable struct {
	order *list.List
	index map[int]*list.Element
}

// NewToolTable returns an empty tool table.
func NewToolTable() *ToolTable {
	return &ToolTable{order: list.New(), index: make(map[int]*list.Element)}
}

// Define inserts or replaces the tool at t.Number.
func (tt *ToolTable) Define(t Tool) (redefined bool) {
	if el, ok := tt.index[t.Number]; ok {
		el.Value = t
		return true
	}
	el := tt.order.PushBack(t)
	tt.index[t.Number] = el
	return false
}

// Lookup returns the tool defined under number, if any.
func (tt *ToolTable) Lookup(number int) (Tool, bool) {
	el, ok := tt.index[number]
	if !ok {
		return Tool{}, false
	}
	return el.Value.(Tool), true
}

// Each calls fn for every defined tool in definition order.
func (tt *ToolTable) Each(fn func(Tool) bool) {
	for e := tt.order.Front(); e != nil; e = e.Next() {
		if !fn(e.Value.(Tool)) {
			return
		}
	}
}
