package model

import (
	"context"
	"math"
	"sort"
	"time"
)

const ModelTypeNaive = "naive"

// naiveWindow caps how many recent open days feed the naive average.
const naiveWindow = 7

// Forecaster trains a Snapshot from records and predicts from one. The
// numerical model behind it is opaque to callers.
type Forecaster interface {
	Train(ctx context.Context, records []DailyRecord, hp Hyperparameters) (Snapshot, error)
	Predict(ctx context.Context, snap Snapshot, days []FutureDay, itemIDs []string) (map[string][]Prediction, error)
}

// Snapshot is the serializable state of a trained model.
type Snapshot struct {
	ModelType       string                  `json:"model_type"`
	Hyperparameters Hyperparameters         `json:"hyperparameters"`
	Products        map[string]ProductState `json:"products"`
	LastDate        string                  `json:"last_date"`
}

type ProductState struct {
	Context []Point `json:"context"`
}

type Point struct {
	Date    string  `json:"date"`
	Units   float64 `json:"units"`
	Revenue float64 `json:"revenue"`
	Open    bool    `json:"open"`
}

// FutureDay is one day to forecast. Known closures predict zero.
type FutureDay struct {
	Date        string `json:"date"`
	IsStoreOpen *Flag  `json:"is_store_open,omitempty"`
}

func (d FutureDay) Open() bool {
	return d.IsStoreOpen == nil || bool(*d.IsStoreOpen)
}

type Prediction struct {
	ItemID          string  `json:"item_id"`
	SalesAmount     float64 `json:"sales_amount"`
	SalesQuantity   int     `json:"sales_quantity"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// Days expands [begin, end] into consecutive FutureDays.
func Days(begin, end time.Time) []FutureDay {
	var out []FutureDay
	for d := begin; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, FutureDay{Date: d.Format(DateLayout)})
	}
	return out
}

// Extend folds recent records into the snapshot context. A recent record
// replaces a stored point for the same product and day.
func (s Snapshot) Extend(records []DailyRecord) Snapshot {
	if len(records) == 0 {
		return s
	}

	out := Snapshot{
		ModelType:       s.ModelType,
		Hyperparameters: s.Hyperparameters,
		Products:        make(map[string]ProductState, len(s.Products)),
		LastDate:        s.LastDate,
	}
	byProduct := map[string]map[string]Point{}
	for id, st := range s.Products {
		byProduct[id] = map[string]Point{}
		for _, p := range st.Context {
			byProduct[id][p.Date] = p
		}
	}
	for _, p := range aggregate(records) {
		if byProduct[p.product] == nil {
			byProduct[p.product] = map[string]Point{}
		}
		byProduct[p.product][p.Date] = p.Point
	}

	limit := s.Hyperparameters.WithDefaults().InputChunkLength
	for id, points := range byProduct {
		ctx := make([]Point, 0, len(points))
		for _, p := range points {
			ctx = append(ctx, p)
		}
		sort.Slice(ctx, func(i, j int) bool { return ctx[i].Date < ctx[j].Date })
		if len(ctx) > limit {
			ctx = ctx[len(ctx)-limit:]
		}
		if n := len(ctx); n > 0 && ctx[n-1].Date > out.LastDate {
			out.LastDate = ctx[n-1].Date
		}
		out.Products[id] = ProductState{Context: ctx}
	}
	return out
}

type productPoint struct {
	Point
	product string
}

// aggregate sums duplicate (product, day) rows. Output is sorted by date.
func aggregate(records []DailyRecord) []productPoint {
	index := map[[2]string]int{}
	var out []productPoint
	for _, r := range SortRecords(records) {
		k := [2]string{r.ProductID, r.Date}
		if i, ok := index[k]; ok {
			out[i].Units += r.UnitsSold
			out[i].Revenue += r.Revenue
			out[i].Open = out[i].Open || r.Open()
			continue
		}
		index[k] = len(out)
		out = append(out, productPoint{
			product: r.ProductID,
			Point:   Point{Date: r.Date, Units: r.UnitsSold, Revenue: r.Revenue, Open: r.Open()},
		})
	}
	return out
}

// Naive predicts each product's recent average. It is the fallback strategy
// for shops with too little history for a learned model.
type Naive struct{}

var _ Forecaster = Naive{}

func (Naive) Train(ctx context.Context, records []DailyRecord, hp Hyperparameters) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if err := Validate(records); err != nil {
		return Snapshot{}, err
	}
	hp = hp.WithDefaults()
	if err := hp.Validate(); err != nil {
		return Snapshot{}, err
	}

	base := Snapshot{ModelType: ModelTypeNaive, Hyperparameters: hp, Products: map[string]ProductState{}}
	return base.Extend(records), nil
}

func (Naive) Predict(ctx context.Context, snap Snapshot, days []FutureDay, itemIDs []string) (map[string][]Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	window := min(naiveWindow, snap.Hyperparameters.WithDefaults().InputChunkLength)
	out := make(map[string][]Prediction, len(itemIDs))
	for _, id := range itemIDs {
		units, revenue, confidence := naiveStats(snap.Products[id].Context, window)
		preds := make([]Prediction, 0, len(days))
		for _, d := range days {
			p := Prediction{ItemID: id, ConfidenceScore: confidence}
			if d.Open() {
				p.SalesAmount = round(revenue, 2)
				p.SalesQuantity = int(math.Round(units))
			}
			preds = append(preds, p)
		}
		out[id] = preds
	}
	return out, nil
}

// naiveStats averages the last window open days. Confidence falls with the
// revenue variance of the whole context.
func naiveStats(ctx []Point, window int) (units, revenue, confidence float64) {
	if len(ctx) == 0 {
		return 0, 0, 0
	}

	var n int
	for i := len(ctx) - 1; i >= 0 && n < window; i-- {
		if !ctx[i].Open {
			continue
		}
		units += ctx[i].Units
		revenue += ctx[i].Revenue
		n++
	}
	if n > 0 {
		units /= float64(n)
		revenue /= float64(n)
	}

	revenues := make([]float64, len(ctx))
	for i, p := range ctx {
		revenues[i] = p.Revenue
	}
	confidence = round(clamp(100-variance(revenues)/100, 0, 100), 1)
	return units, revenue, confidence
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return sum / float64(len(xs))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
