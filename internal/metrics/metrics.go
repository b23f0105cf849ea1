package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	CyclesCompleted Counter
	SymbolFailures  Counter
	OrdersPlaced    Counter
	OrdersFailed    Counter
	OrdersCanceled  Counter
	ForceCloses     Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		CyclesCompleted: n,
		SymbolFailures:  n,
		OrdersPlaced:    n,
		OrdersFailed:    n,
		OrdersCanceled:  n,
		ForceCloses:     n,
	}
}
