// Package field holds per-element values and their time discretization.
package field

import (
	"fmt"
	"log"

	"github.com/sarchlab/coupling/topology"
	"github.com/sarchlab/coupling/transport"
)

// Data is what exchange code needs from a field: a flat,
// component-interleaved array and its number of components.
type Data interface {
	Values() []float64
	NbComponents() int
}

// Array is a flat array of tuples with a fixed number of components.
type Array struct {
	values       []float64
	nbComponents int
}

// NewArray creates a zeroed array.
func NewArray(nbTuples, nbComponents int) *Array {
	if nbComponents <= 0 || nbTuples < 0 {
		log.Panicf("invalid array shape %dx%d", nbTuples, nbComponents)
	}

	return &Array{
		values:       make([]float64, nbTuples*nbComponents),
		nbComponents: nbComponents,
	}
}

// NewArrayFromValues wraps an existing slice. The slice is not copied.
func NewArrayFromValues(values []float64, nbComponents int) *Array {
	if nbComponents <= 0 || len(values)%nbComponents != 0 {
		log.Panicf("%d values do not form tuples of %d components",
			len(values), nbComponents)
	}

	return &Array{values: values, nbComponents: nbComponents}
}

// Values returns the underlying slice.
func (a *Array) Values() []float64 {
	return a.values
}

// NbComponents returns the number of values per tuple.
func (a *Array) NbComponents() int {
	return a.nbComponents
}

// NbTuples returns the number of tuples.
func (a *Array) NbTuples() int {
	return len(a.values) / a.nbComponents
}

// Tuple returns the values of tuple i. The result aliases the array.
func (a *Array) Tuple(i int) []float64 {
	return a.values[i*a.nbComponents : (i+1)*a.nbComponents]
}

// SetTuple copies v into tuple i.
func (a *Array) SetTuple(i int, v []float64) {
	copy(a.Tuple(i), v)
}

// Fill sets every value to v.
func (a *Array) Fill(v float64) {
	for i := range a.values {
		a.values[i] = v
	}
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{
		values:       append([]float64(nil), a.values...),
		nbComponents: a.nbComponents,
	}
}

// Kind enumerates the time discretizations.
type Kind int

// The time discretizations.
const (
	NoTime Kind = iota
	OneTime
	Linear
	ConstOnTimeInterval
)

func (k Kind) String() string {
	switch k {
	case NoTime:
		return "NoTime"
	case OneTime:
		return "OneTime"
	case Linear:
		return "Linear"
	case ConstOnTimeInterval:
		return "ConstOnTimeInterval"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Discretization places the values of a field in time.
//
// NoTime and OneTime use StartArray only. Linear interpolates between
// StartArray at StartTime and EndArray at EndTime. ConstOnTimeInterval holds
// StartArray over [StartTime, EndTime].
type Discretization struct {
	Kind       Kind
	StartTime  float64
	EndTime    float64
	StartArray *Array
	EndArray   *Array
}

// Current returns the array exchanged for the current time: EndArray for
// Linear, StartArray otherwise.
func (d *Discretization) Current() *Array {
	if d.Kind == Linear {
		return d.EndArray
	}

	return d.StartArray
}

// Time returns the time of the current array.
func (d *Discretization) Time() float64 {
	switch d.Kind {
	case Linear, ConstOnTimeInterval:
		return d.EndTime
	default:
		return d.StartTime
	}
}

// DeltaTime returns the width of the time interval.
func (d *Discretization) DeltaTime() float64 {
	switch d.Kind {
	case Linear, ConstOnTimeInterval:
		return d.EndTime - d.StartTime
	default:
		return 0
	}
}

// ValuesAt returns the values at time t. Only Linear interpolates; the
// other kinds return a copy of their single array.
func (d *Discretization) ValuesAt(t float64) []float64 {
	if d.Kind != Linear || d.EndTime == d.StartTime {
		return append([]float64(nil), d.Current().values...)
	}

	w := (t - d.StartTime) / (d.EndTime - d.StartTime)
	start, end := d.StartArray.values, d.EndArray.values

	out := make([]float64, len(end))
	for i := range out {
		out[i] = (1-w)*start[i] + w*end[i]
	}

	return out
}

// Advance moves the discretization forward by dt. A Linear discretization
// copies the end values into the start array.
func (d *Discretization) Advance(dt float64) {
	switch d.Kind {
	case NoTime:
		return
	case OneTime:
		d.StartTime += dt
	case Linear:
		copy(d.StartArray.values, d.EndArray.values)
		d.StartTime = d.EndTime
		d.EndTime += dt
	case ConstOnTimeInterval:
		d.StartTime = d.EndTime
		d.EndTime += dt
	}
}

// A Field binds values to the elements of a topology.
type Field struct {
	Name           string
	Topology       topology.Topology
	Discretization Discretization
}

// New creates a field with a single zeroed array and no time
// discretization.
func New(name string, topo topology.Topology) *Field {
	return &Field{
		Name:     name,
		Topology: topo,
		Discretization: Discretization{
			Kind:       NoTime,
			StartArray: NewArray(topo.NbLocalElements(), topo.NbComponents()),
		},
	}
}

// NewLinear creates a field whose values are interpolated over
// [start, end].
func NewLinear(name string, topo topology.Topology, start, end float64) *Field {
	n, ncomp := topo.NbLocalElements(), topo.NbComponents()

	return &Field{
		Name:     name,
		Topology: topo,
		Discretization: Discretization{
			Kind:       Linear,
			StartTime:  start,
			EndTime:    end,
			StartArray: NewArray(n, ncomp),
			EndArray:   NewArray(n, ncomp),
		},
	}
}

// Data returns the array at the current time.
func (f *Field) Data() *Array {
	return f.Discretization.Current()
}

// IsTimeDependent reports whether the field carries a time.
func (f *Field) IsTimeDependent() bool {
	return f.Discretization.Kind != NoTime
}

// TimeMessage stamps the current values for the given exchange round.
func (f *Field) TimeMessage(round int) transport.TimeMessage {
	return transport.TimeMessage{
		Time:      f.Discretization.Time(),
		DeltaTime: f.Discretization.DeltaTime(),
		Tag:       round,
	}
}
