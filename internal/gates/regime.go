package gates

import "context"

// Regime answers whether the current market regime permits new entries.
// The engine treats the answer as opaque; detection lives behind the
// interface.
type Regime interface {
	Favorable(ctx context.Context) bool
}

type staticRegime struct {
	favorable bool
}

// StaticRegime returns a regime gate pinned to a fixed answer, used when no
// detector is wired in.
func StaticRegime(favorable bool) Regime {
	return staticRegime{favorable: favorable}
}

func (s staticRegime) Favorable(context.Context) bool {
	return s.favorable
}
