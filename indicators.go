package j1708gw

//
// Indicators implementations
//

// NullIndicators is an [Indicators] that drops every pulse. It is the
// default for a Gateway constructed without an explicit Indicators.
type NullIndicators struct{}

// Pulse implements Indicators.
func (NullIndicators) Pulse(kind IndicatorKind) {
	// nothing
}

// CountingIndicators is an [Indicators] that counts pulses per kind,
// useful in tests that assert activity without a real GPIO sink.
type CountingIndicators struct {
	Rx       uint64
	Tx       uint64
	Security uint64
}

// Pulse implements Indicators.
func (ci *CountingIndicators) Pulse(kind IndicatorKind) {
	switch kind {
	case IndicatorRx:
		ci.Rx++
	case IndicatorTx:
		ci.Tx++
	case IndicatorSecurity:
		ci.Security++
	}
}
