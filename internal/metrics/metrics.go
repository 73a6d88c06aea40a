package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(v float64)
}

type Metrics struct {
	ScansRun        Counter
	ScanFailures    Counter
	Deployments     Counter
	Releases        Counter
	RejectedDeploys Counter
	ThinGridWarns   Counter
	ReserveUnlocks  Counter
	ReserveRelocks  Counter
	CoreDrawdown    Gauge
	TotalEquityUSD  Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	c := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		ScansRun:        c,
		ScanFailures:    c,
		Deployments:     c,
		Releases:        c,
		RejectedDeploys: c,
		ThinGridWarns:   c,
		ReserveUnlocks:  c,
		ReserveRelocks:  c,
		CoreDrawdown:    g,
		TotalEquityUSD:  g,
	}
}
