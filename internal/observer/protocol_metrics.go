package observer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nulpointcorp/llm-gateway/internal/uif"
)

// protocolCounter extends the metrics registry with the client_protocol/
// provider_protocol/bypass labels the spec's C5 needs, registered onto the
// same private *prometheus.Registry the rest of internal/metrics uses
// (Registry.PromRegistry()) rather than a second one.
type protocolCounter struct {
	requests *prometheus.CounterVec
}

func newProtocolCounter(reg *prometheus.Registry) *protocolCounter {
	pc := &protocolCounter{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_protocol_requests_total",
			Help: "Requests by client protocol tag, provider protocol tag, and bypass status.",
		}, []string{"client_protocol", "provider_protocol", "bypass"}),
	}
	reg.MustRegister(pc.requests)
	return pc
}

func (pc *protocolCounter) inc(clientTag, providerTag uif.ProtocolTag, bypass bool) {
	pc.requests.WithLabelValues(string(clientTag), string(providerTag), boolLabel(bypass)).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
