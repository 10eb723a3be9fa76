package lod

// PriorityFactors is the per-entity, per-tick input to tier scoring.
// All components except Importance are normalized to [0, 1]; Importance is
// the raw 0-10 role weight and gets scaled inside the composite score.
type PriorityFactors struct {
	Distance   float64
	Activity   float64
	Focus      float64
	SystemLoad float64
	Importance float64
	Density    float64
}

// FactorProvider supplies factors for an entity id during an assignment
// pass. Requesting an id that is not tracked is a caller error.
type FactorProvider interface {
	FactorsFor(id EntityID) (PriorityFactors, error)
}

// FactorProviderFunc adapts a function to the FactorProvider interface.
type FactorProviderFunc func(id EntityID) (PriorityFactors, error)

func (f FactorProviderFunc) FactorsFor(id EntityID) (PriorityFactors, error) {
	return f(id)
}
