package domain

// Conversion records one unit conversion applied during harmonization.
type Conversion struct {
	Column string `json:"column"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// Derivation methods recorded per irradiance component.
const (
	DerivedMeasured = "measured"
	DerivedDISC     = "disc"
	DerivedErbs     = "erbs"
	DerivedBeamSun  = "beam_over_sin_elevation"
	DerivedClosure  = "dni_dhi_closure"
	DerivedDefault  = "default"
	DerivedUnknown  = "unknown"
)

// SourceMeta is the provenance record attached to every fetched series.
type SourceMeta struct {
	Name        string            `json:"name"`
	Details     map[string]string `json:"details,omitempty"`
	Conversions []Conversion      `json:"conversions,omitempty"`
	Derived     map[string]string `json:"derived,omitempty"`
}

// MarkDerived records the derivation method for an irradiance component.
func (m *SourceMeta) MarkDerived(component, method string) {
	if m.Derived == nil {
		m.Derived = map[string]string{}
	}
	m.Derived[component] = method
}
