package model

import (
	"context"
	"math"
)

const (
	SplitRatio             = "80/20"
	SplitRatioInsufficient = "100/0 (Insufficient Data)"
	notApplicable          = "N/A"
)

type Metrics struct {
	MAE               float64 `json:"mae"`
	MSE               float64 `json:"mse"`
	RMSE              float64 `json:"rmse"`
	MAPE              float64 `json:"mape"`
	R2Score           float64 `json:"r2_score"`
	ExplainedVariance float64 `json:"explained_variance"`
	Accuracy          float64 `json:"accuracy"`
}

type TrainingInfo struct {
	TrainStart string `json:"train_start"`
	TrainEnd   string `json:"train_end"`
	TestStart  string `json:"test_start"`
	TestEnd    string `json:"test_end"`
	SplitRatio string `json:"split_ratio"`
}

// Evaluate holds out the last 20% of records, trains on the rest and scores
// revenue predictions on the holdout. Short histories are not split and
// report zero metrics. records must already be sorted by date.
func Evaluate(ctx context.Context, f Forecaster, records []DailyRecord, hp Hyperparameters) (Metrics, TrainingInfo, error) {
	hp = hp.WithDefaults()
	n := len(records)
	if n == 0 {
		return Metrics{}, TrainingInfo{}, Validate(records)
	}

	splitIdx := int(float64(n) * 0.8)
	if splitIdx <= hp.InputChunkLength || n-splitIdx <= 1 {
		return Metrics{}, TrainingInfo{
			TrainStart: records[0].Date,
			TrainEnd:   records[n-1].Date,
			TestStart:  notApplicable,
			TestEnd:    notApplicable,
			SplitRatio: SplitRatioInsufficient,
		}, nil
	}

	train, test := records[:splitIdx], records[splitIdx:]
	snap, err := f.Train(ctx, train, hp)
	if err != nil {
		return Metrics{}, TrainingInfo{}, err
	}

	var dates []string
	seen := map[string]bool{}
	for _, r := range test {
		if !seen[r.Date] {
			seen[r.Date] = true
			dates = append(dates, r.Date)
		}
	}
	days := make([]FutureDay, len(dates))
	for i, d := range dates {
		days[i] = FutureDay{Date: d}
	}

	items := ProductIDs(test)
	forecast, err := f.Predict(ctx, snap, days, items)
	if err != nil {
		return Metrics{}, TrainingInfo{}, err
	}

	dayIndex := make(map[string]int, len(dates))
	for i, d := range dates {
		dayIndex[d] = i
	}
	var actual, predicted []float64
	for _, p := range aggregate(test) {
		preds := forecast[p.product]
		i := dayIndex[p.Date]
		if i >= len(preds) {
			continue
		}
		actual = append(actual, p.Revenue)
		predicted = append(predicted, preds[i].SalesAmount)
	}

	return ComputeMetrics(actual, predicted), TrainingInfo{
		TrainStart: train[0].Date,
		TrainEnd:   train[len(train)-1].Date,
		TestStart:  test[0].Date,
		TestEnd:    test[len(test)-1].Date,
		SplitRatio: SplitRatio,
	}, nil
}

// ComputeMetrics scores predicted against actual. MAPE skips zero actuals.
// Accuracy mirrors R².
func ComputeMetrics(actual, predicted []float64) Metrics {
	n := min(len(actual), len(predicted))
	if n == 0 {
		return Metrics{}
	}
	actual, predicted = actual[:n], predicted[:n]

	var absSum, sqSum, pctSum float64
	var pctN int
	residuals := make([]float64, n)
	for i := range actual {
		diff := actual[i] - predicted[i]
		residuals[i] = diff
		absSum += math.Abs(diff)
		sqSum += diff * diff
		if actual[i] != 0 {
			pctSum += math.Abs(diff / actual[i])
			pctN++
		}
	}

	m := Metrics{
		MAE: absSum / float64(n),
		MSE: sqSum / float64(n),
	}
	m.RMSE = math.Sqrt(m.MSE)
	if pctN > 0 {
		m.MAPE = pctSum / float64(pctN) * 100
	}

	totalVar := variance(actual)
	m.R2Score = explained(m.MSE, totalVar)
	m.ExplainedVariance = explained(variance(residuals), totalVar)
	m.Accuracy = m.R2Score
	return m
}

// explained returns 1 - num/den, with the degenerate constant-target case
// scored 1 for a perfect fit and 0 otherwise.
func explained(num, den float64) float64 {
	if den == 0 {
		if num == 0 {
			return 1
		}
		return 0
	}
	return 1 - num/den
}
