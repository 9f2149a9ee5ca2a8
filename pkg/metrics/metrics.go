package metrics

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/marketsettle/pkg/ledger"
	"github.com/uhyunpark/marketsettle/pkg/settlement"
)

// Recorder exports settlement outcomes. It implements settlement.Observer.
type Recorder struct {
	gatherer prometheus.Gatherer
	decimals func(asset common.Address) int32

	settlements   *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	platformFees  *prometheus.CounterVec
	volume        *prometheus.CounterVec
}

// NewRecorder registers the collectors on reg. A nil reg gets a private registry.
// decimals reports the precision of a payment asset (zero address: native
// currency); nil means 18 for everything.
func NewRecorder(reg *prometheus.Registry, decimals func(asset common.Address) int32) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if decimals == nil {
		decimals = func(common.Address) int32 { return 18 }
	}
	r := &Recorder{
		gatherer: reg,
		decimals: decimals,
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsettle_settlements_total",
			Help: "Orders settled, by order kind.",
		}, []string{"kind"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsettle_rejections_total",
			Help: "Rejected engine calls, by operation and error code.",
		}, []string{"op", "code"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsettle_cancellations_total",
			Help: "Cancellations, by operation.",
		}, []string{"op"}),
		platformFees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsettle_platform_fees_total",
			Help: "Platform fees retained, in whole units of the payment asset.",
		}, []string{"asset"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsettle_volume_total",
			Help: "Traded amount, in whole units of the payment asset.",
		}, []string{"asset"}),
	}
	reg.MustRegister(r.settlements, r.rejections, r.cancellations, r.platformFees, r.volume)
	return r
}

func (r *Recorder) ObserveReceipt(rc *settlement.Receipt) {
	if rc.Status == ledger.Canceled {
		r.cancellations.WithLabelValues(string(rc.Operation)).Inc()
		return
	}
	r.settlements.WithLabelValues(rc.Kind.String()).Inc()

	asset := "native"
	if rc.PaymentAsset != (common.Address{}) {
		asset = rc.PaymentAsset.Hex()
	}
	dec := r.decimals(rc.PaymentAsset)
	if rc.Split.Amount != nil {
		r.volume.WithLabelValues(asset).Add(units(rc.Split.Amount, dec))
	}
	if rc.Split.PlatformFee != nil {
		r.platformFees.WithLabelValues(asset).Add(units(rc.Split.PlatformFee, dec))
	}
}

func (r *Recorder) ObserveRejection(op settlement.Operation, err error) {
	r.rejections.WithLabelValues(string(op), settlement.Code(err)).Inc()
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// units converts a base amount to whole units of its asset.
// Precision loss is fine for dashboards.
func units(v *big.Int, decimals int32) float64 {
	return decimal.NewFromBigInt(v, -decimals).InexactFloat64()
}
