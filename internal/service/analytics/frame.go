// Package analytics содержит агрегаты дашборда: детерминированные функции над
// уже отфильтрованным набором строк датасета.
package analytics

import (
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

const (
	colKey   = "key"
	colValue = "value"
)

// groupAggregate группирует пары ключ/значение через gota и возвращает агрегат по ключу.
// Пустые ключи отбрасываются, как это делает groupby в pandas для NaN.
func groupAggregate(keys []string, values []int, agg dataframe.AggregationType) (map[string]float64, error) {
	filteredKeys := make([]string, 0, len(keys))
	filteredValues := make([]int, 0, len(values))
	for i, k := range keys {
		if k == "" {
			continue
		}
		filteredKeys = append(filteredKeys, k)
		filteredValues = append(filteredValues, values[i])
	}
	if len(filteredKeys) == 0 {
		return map[string]float64{}, nil
	}

	df := dataframe.New(
		series.New(filteredKeys, series.String, colKey),
		series.New(filteredValues, series.Int, colValue),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("build frame: %w", df.Err)
	}

	groups := df.GroupBy(colKey)
	if groups.Err != nil {
		return nil, fmt.Errorf("group by %s: %w", colKey, groups.Err)
	}
	aggregated := groups.Aggregation([]dataframe.AggregationType{agg}, []string{colValue})
	if aggregated.Err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", colValue, aggregated.Err)
	}

	aggCol := fmt.Sprintf("%s_%s", colValue, agg)
	names := aggregated.Col(colKey).Records()
	sums := aggregated.Col(aggCol).Float()
	if len(names) != len(sums) {
		return nil, fmt.Errorf("aggregate %s: %d keys vs %d values", aggCol, len(names), len(sums))
	}

	result := make(map[string]float64, len(names))
	for i, name := range names {
		result[name] = sums[i]
	}
	return result, nil
}

// toInt округляет агрегат gota (всегда float64) до целого.
func toInt(v float64) int {
	return int(math.Round(v))
}
