package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "gridgate"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(g)
		return g
	}

	m := &Metrics{
		ScansRun:        promCounter{counter("scans_total", "Total number of scan cycles run.")},
		ScanFailures:    promCounter{counter("scan_failures_total", "Total number of scan cycles that failed.")},
		Deployments:     promCounter{counter("deployments_total", "Total number of capital deployments committed.")},
		Releases:        promCounter{counter("releases_total", "Total number of capital releases.")},
		RejectedDeploys: promCounter{counter("rejected_deploys_total", "Total number of deployments rejected by the ledger.")},
		ThinGridWarns:   promCounter{counter("thin_grid_warnings_total", "Total number of thin-grid headroom warnings.")},
		ReserveUnlocks:  promCounter{counter("reserve_unlocks_total", "Total number of RESERVE bucket unlocks.")},
		ReserveRelocks:  promCounter{counter("reserve_relocks_total", "Total number of RESERVE bucket relocks.")},
		CoreDrawdown:    promGauge{gauge("core_drawdown", "Current CORE bucket drawdown fraction.")},
		TotalEquityUSD:  promGauge{gauge("total_equity_usd", "Last reconciled total account equity in USD.")},
	}

	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
