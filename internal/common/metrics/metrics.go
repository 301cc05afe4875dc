package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter names shared by the coordinator and the metrics service.
const (
	ChargesCreated       = "charges_created_total"
	ChargesReused        = "charges_reused_total"
	ConfirmNotYetPaid    = "confirm_not_yet_paid_total"
	ConfirmLedgerHits    = "confirm_ledger_hits_total"
	ResourcesProvisioned = "resources_provisioned_total"
	ProvisionFailures    = "provision_failures_total"
	LedgerWriteFailures  = "ledger_write_failures_total"
	GatewayErrors        = "gateway_errors_total"
	OperatorIncidents    = "operator_incidents_total"
	IncidentPersistFails = "incident_persist_failures_total"
	SettlementsReclaimed = "settlements_reclaimed_total"
)

// Collector defines the interface for metrics collection
type Collector interface {
	IncrementCounter(name string)
	GetCounter(name string) int64
}

type MockCollector struct {
	counters map[string]int64
	mu       sync.RWMutex
}

func NewMockCollector() *MockCollector {
	return &MockCollector{
		counters: make(map[string]int64),
	}
}

func (mc *MockCollector) IncrementCounter(name string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.counters[name]++
}

func (mc *MockCollector) GetCounter(name string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.counters[name]
}

// PrometheusCollector registers one counter per name on first use, under the given namespace.
type PrometheusCollector struct {
	namespace string
	registry  *prometheus.Registry
	mu        sync.Mutex
	counters  map[string]prometheus.Counter
	values    map[string]int64
}

func NewPrometheusCollector(namespace string) *PrometheusCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &PrometheusCollector{
		namespace: namespace,
		registry:  reg,
		counters:  make(map[string]prometheus.Counter),
		values:    make(map[string]int64),
	}
}

func (pc *PrometheusCollector) IncrementCounter(name string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	c, ok := pc.counters[name]
	if !ok {
		c = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: pc.namespace,
			Name:      name,
			Help:      "Provisioning saga counter " + name,
		})
		pc.registry.MustRegister(c)
		pc.counters[name] = c
	}
	c.Inc()
	pc.values[name]++
}

func (pc *PrometheusCollector) GetCounter(name string) int64 {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.values[name]
}

// Handler exposes the collector's registry in the Prometheus text format.
func (pc *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(pc.registry, promhttp.HandlerOpts{})
}
