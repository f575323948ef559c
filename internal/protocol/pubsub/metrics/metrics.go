// Package metrics 提供 pubsub.Tracer 的 Prometheus 实现
//
// 指标名为 {namespace}_pubsub_{name}:
//
//	dep2p_pubsub_peers
//	dep2p_pubsub_peer_events_total{event="add|remove"}
//	dep2p_pubsub_messages_validated_total
//	dep2p_pubsub_messages_delivered_total
//	dep2p_pubsub_messages_rejected_total{reason="<reason>"}
//	dep2p_pubsub_messages_dropped_total{reason="<reason>"}
//	dep2p_pubsub_validation_in_flight
//	dep2p_pubsub_validation_in_flight_max
//
// 使用示例:
//
//	tracer := metrics.NewTracer("", prometheus.DefaultRegisterer)
//	ps, err := pubsub.New(registrar, router, priv, pubsub.WithTracer(tracer))
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-dep2p-pubsub/internal/protocol/pubsub"
	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// DefaultNamespace 默认命名空间
const DefaultNamespace = "dep2p"

const subsystem = "pubsub"

// Tracer 基于 Prometheus 的事件追踪
type Tracer struct {
	peers      prometheus.Gauge
	peerEvents *prometheus.CounterVec

	validated prometheus.Counter
	delivered prometheus.Counter
	rejected  *prometheus.CounterVec
	dropped   *prometheus.CounterVec

	inFlight    prometheus.Gauge
	inFlightMax prometheus.Gauge

	mu  sync.Mutex
	max int64
}

var _ pubsub.Tracer = (*Tracer)(nil)

// NewTracer 创建 Tracer 并注册到 registerer
//
// namespace 为空时使用 DefaultNamespace；registerer 为 nil 时不注册。
// 重复注册会 panic，测试中应使用独立的 Registry。
func NewTracer(namespace string, registerer prometheus.Registerer) *Tracer {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	t := &Tracer{
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "peers",
			Help:      "Number of peers with active peer streams",
		}),
		peerEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "peer_events_total",
				Help:      "Total number of peer add/remove events",
			},
			[]string{"event"},
		),
		validated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_validated_total",
			Help:      "Total number of messages entering validation",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_delivered_total",
			Help:      "Total number of messages that passed validation",
		}),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "messages_rejected_total",
				Help:      "Total number of messages rejected by validation",
			},
			[]string{"reason"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "messages_dropped_total",
				Help:      "Total number of messages dropped before validation",
			},
			[]string{"reason"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "validation_in_flight",
			Help:      "Number of messages currently being validated",
		}),
		inFlightMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "validation_in_flight_max",
			Help:      "Highest observed number of concurrently validated messages",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			t.peers,
			t.peerEvents,
			t.validated,
			t.delivered,
			t.rejected,
			t.dropped,
			t.inFlight,
			t.inFlightMax,
		)
	}
	return t
}

// AddPeer 实现 pubsub.Tracer
func (t *Tracer) AddPeer(types.PeerID, string) {
	t.peers.Inc()
	t.peerEvents.WithLabelValues("add").Inc()
}

// RemovePeer 实现 pubsub.Tracer
func (t *Tracer) RemovePeer(types.PeerID) {
	t.peers.Dec()
	t.peerEvents.WithLabelValues("remove").Inc()
}

// ValidateMessage 实现 pubsub.Tracer
func (t *Tracer) ValidateMessage(*interfaces.Message) {
	t.validated.Inc()
}

// DeliverMessage 实现 pubsub.Tracer
func (t *Tracer) DeliverMessage(*interfaces.Message) {
	t.delivered.Inc()
}

// RejectMessage 实现 pubsub.Tracer
func (t *Tracer) RejectMessage(_ *interfaces.Message, err error) {
	t.rejected.WithLabelValues(RejectReason(err)).Inc()
}

// DropMessage 实现 pubsub.Tracer
func (t *Tracer) DropMessage(_ *interfaces.Message, reason string) {
	t.dropped.WithLabelValues(reason).Inc()
}

// InFlight 实现 pubsub.Tracer
func (t *Tracer) InFlight(n int64) {
	t.inFlight.Set(float64(n))

	t.mu.Lock()
	defer t.mu.Unlock()
	if n > t.max {
		t.max = n
		t.inFlightMax.Set(float64(n))
	}
}

// MaxInFlight 观测到的最大并发验证数
func (t *Tracer) MaxInFlight() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.max
}

// rejectReasons 验证错误到标签值的映射，按顺序匹配
var rejectReasons = []struct {
	err    error
	reason string
}{
	{pubsub.ErrMissingSignature, "missing_signature"},
	{pubsub.ErrMissingSeqno, "missing_seqno"},
	{pubsub.ErrInvalidSignature, "invalid_signature"},
	{pubsub.ErrUnexpectedFrom, "unexpected_from"},
	{pubsub.ErrUnexpectedSignature, "unexpected_signature"},
	{pubsub.ErrUnexpectedKey, "unexpected_key"},
	{pubsub.ErrUnexpectedSeqno, "unexpected_seqno"},
	{pubsub.ErrUnhandledSignaturePolicy, "unhandled_policy"},
	{pubsub.ErrRejected, "topic_validator"},
}

// RejectReason 验证错误对应的标签值
func RejectReason(err error) string {
	for _, r := range rejectReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
