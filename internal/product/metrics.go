package product

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultError    = "error"

	countTimeout = 2 * time.Second
)

// counter is implemented by stores that can report their size without
// materialising every record.
type counter interface {
	Count(ctx context.Context) (int, error)
}

type instrumented struct {
	Store
	ops    *prometheus.CounterVec
	stored prometheus.GaugeFunc
}

// Instrument wraps s so every store call is counted by outcome. The number of
// stored products is read from s on each scrape, so records written before
// wrapping or by another instance are reported too.
func Instrument(s Store, reg prometheus.Registerer) Store {
	i := &instrumented{
		Store: s,
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "products_store_operations_total",
				Help: "Product store calls by operation and outcome",
			},
			[]string{"op", "result"},
		),
	}
	i.stored = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "products_stored",
		Help: "Products currently held by the store",
	}, i.count)

	reg.MustRegister(i.ops, i.stored)
	return i
}

// count reports -1 when the store cannot be read.
func (i *instrumented) count() float64 {
	ctx, cancel := context.WithTimeout(context.Background(), countTimeout)
	defer cancel()

	if c, ok := i.Store.(counter); ok {
		n, err := c.Count(ctx)
		if err != nil {
			return -1
		}
		return float64(n)
	}

	list, err := i.Store.List(ctx)
	if err != nil {
		return -1
	}
	return float64(len(list))
}

func (i *instrumented) List(ctx context.Context) ([]Product, error) {
	out, err := i.Store.List(ctx)
	i.observe("list", true, err)
	return out, err
}

func (i *instrumented) Get(ctx context.Context, id int64) (Product, bool, error) {
	p, ok, err := i.Store.Get(ctx, id)
	i.observe("get", ok, err)
	return p, ok, err
}

func (i *instrumented) Create(ctx context.Context, d Draft) (Product, error) {
	p, err := i.Store.Create(ctx, d)
	i.observe("create", true, err)
	return p, err
}

func (i *instrumented) Replace(ctx context.Context, id int64, p Product) (Replacement, bool, error) {
	r, ok, err := i.Store.Replace(ctx, id, p)
	i.observe("replace", ok, err)
	return r, ok, err
}

func (i *instrumented) Delete(ctx context.Context, id int64) (Product, bool, error) {
	p, ok, err := i.Store.Delete(ctx, id)
	i.observe("delete", ok, err)
	return p, ok, err
}

func (i *instrumented) observe(op string, found bool, err error) {
	result := resultOK
	switch {
	case err != nil:
		result = resultError
	case !found:
		result = resultNotFound
	}
	i.ops.WithLabelValues(op, result).Inc()
}
