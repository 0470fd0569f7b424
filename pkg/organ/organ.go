// Package organ holds the table of organs-at-risk the contouring pipeline
// knows how to produce: display colours, labels, probability thresholds,
// axial extent priors and CT windows.
package organ

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownROI is returned when a name does not match any known organ.
var ErrUnknownROI = errors.New("unknown ROI")

// Kind enumerates the supported organs.
type Kind int

const (
	BrachialPlexus Kind = iota
	Brain
	CochleaL
	CochleaR
	Larynx
	ParotidL
	ParotidR
	SpinalCord
	BrainStem
	SubmandibularL
	SubmandibularR
)

// Window is a CT display window in HU.
type Window struct {
	Width float64
	Level float64
}

var (
	WindowBone   = Window{Width: 2000, Level: 400}
	WindowTissue = Window{Width: 400, Level: 40}
	WindowNone   = Window{Width: 4500, Level: 1000}
)

// Info describes how one organ is postprocessed and rendered.
type Info struct {
	Kind Kind

	// Name is the canonical key, e.g. "ParotidL"
	Name string

	// Label is the human-readable ROI name written to the structure set
	Label string

	// Color is the ROI display colour (R, G, B)
	Color [3]int

	// Threshold is the probability above which a voxel is foreground
	Threshold float64

	// MaxSlices bounds the axial extent of the organ; zero means no prior
	MaxSlices int

	// Bilateral organs keep the two largest regions per slice
	Bilateral bool

	// Window is applied to the CT before it is handed to the model
	Window Window
}

var table = []Info{
	{BrachialPlexus, "BrachialPlexus", "Brachial Plexus", [3]int{255, 255, 128}, 0.1, 0, true, WindowBone},
	{Brain, "Brain", "Brain", [3]int{0, 0, 198}, 0.66, 0, false, WindowTissue},
	{CochleaL, "CochleaL", "Cochlea L", [3]int{116, 84, 211}, 0.2, 0, false, WindowTissue},
	{CochleaR, "CochleaR", "Cochlea R", [3]int{128, 64, 64}, 0.2, 0, false, WindowTissue},
	{Larynx, "Larynx", "Larynx", [3]int{192, 241, 254}, 0.5, 18, false, WindowTissue},
	{ParotidL, "ParotidL", "Parotid L", [3]int{192, 192, 254}, 0.33, 33, false, WindowTissue},
	{ParotidR, "ParotidR", "Parotid R", [3]int{255, 192, 254}, 0.33, 33, false, WindowTissue},
	{SpinalCord, "SpinalCord", "Spinal Cord", [3]int{12, 191, 243}, 0.1, 0, false, WindowBone},
	{BrainStem, "BrainStem", "Brainstem", [3]int{251, 216, 151}, 0.2, 27, false, WindowTissue},
	{SubmandibularL, "SubmandibularL", "Submandibular L", [3]int{200, 249, 134}, 0.1, 17, false, WindowTissue},
	{SubmandibularR, "SubmandibularR", "Submandibular R", [3]int{255, 255, 187}, 0.1, 17, false, WindowTissue},
}

// String returns the canonical key.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(table) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return table[k].Name
}

// Info returns the built-in description of k.
func (k Kind) Info() Info {
	return table[k]
}

// All returns every known organ in canonical order.
func All() []Kind {
	out := make([]Kind, len(table))
	for i := range table {
		out[i] = Kind(i)
	}
	return out
}

// Parse resolves a canonical key ("ParotidL") or a label ("Parotid L").
func Parse(name string) (Kind, error) {
	n := strings.TrimSpace(name)
	for _, info := range table {
		if n == info.Name || strings.EqualFold(n, info.Label) {
			return info.Kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownROI, name)
}

// InterpretedType classifies an ROI name for the RT ROI Observations module.
func InterpretedType(name string) string {
	up := strings.ToUpper(name)
	for _, t := range []string{"GTV", "PTV", "CTV"} {
		if strings.Contains(up, t) {
			return t
		}
	}
	return "ORGAN"
}

// Override adjusts the built-in parameters of one organ.
type Override struct {
	Threshold *float64 `yaml:"threshold,omitempty"`
	MaxSlices *int     `yaml:"maxSlices,omitempty"`
}

// Table is a read-only lookup of organ parameters with overrides applied.
type Table struct {
	infos []Info
}

// DefaultTable returns the built-in parameters.
func DefaultTable() *Table {
	t := &Table{infos: make([]Info, len(table))}
	copy(t.infos, table)
	return t
}

// WithOverrides returns a table with the given per-organ overrides applied.
// Keys must name known organs.
func WithOverrides(overrides map[string]Override) (*Table, error) {
	t := DefaultTable()
	for name, o := range overrides {
		k, err := Parse(name)
		if err != nil {
			return nil, err
		}
		if o.Threshold != nil {
			if *o.Threshold < 0 || *o.Threshold >= 1 {
				return nil, fmt.Errorf("organ %s: threshold %.3f outside [0,1)", k, *o.Threshold)
			}
			t.infos[k].Threshold = *o.Threshold
		}
		if o.MaxSlices != nil {
			if *o.MaxSlices < 0 {
				return nil, fmt.Errorf("organ %s: negative maxSlices", k)
			}
			t.infos[k].MaxSlices = *o.MaxSlices
		}
	}
	return t, nil
}

// Get returns the parameters for k.
func (t *Table) Get(k Kind) Info {
	return t.infos[k]
}

// Lookup resolves name and returns its parameters.
func (t *Table) Lookup(name string) (Info, error) {
	k, err := Parse(name)
	if err != nil {
		return Info{}, err
	}
	return t.infos[k], nil
}
