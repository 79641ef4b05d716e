package service

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SpeciesStats 单个物种（或通用量）在全部成功试验上的统计摘要。
// Count 是纳入统计的试验数（排除 not computed），Total 是成功试验总数，
// 两者一起上报，消费方据此判断统计置信度。
type SpeciesStats struct {
	Count int     `json:"count"`
	Total int     `json:"total"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	// "p5" -> 值，键由配置的分位数生成
	Percentiles map[string]float64 `json:"percentiles"`
}

// AggregateResult 批次的终端统计产物，生成后不可变。
// 按 (数据库, 物种) 组织。
type AggregateResult struct {
	Database    string    `json:"database"`
	TotalTrials int       `json:"total_trials"`
	Percentiles []float64 `json:"percentiles"`

	// 物种摩尔浓度统计
	Species map[string]SpeciesStats `json:"species"`
	// 物种对数活度统计
	Activities map[string]SpeciesStats `json:"activities"`
	// 相的饱和指数统计
	Phases map[string]SpeciesStats `json:"phases"`
	// 通用量（pH、碱度、离子强度等）统计
	General map[string]SpeciesStats `json:"general"`
}

// Aggregator 把成功试验的 SpeciesResult 归约为统计摘要
type Aggregator struct {
	// 统计所需的最少成功试验数，低于此数返回 InsufficientDataError
	MinTrials int
	// 分位数（0~100），默认 5/50/95
	Percentiles []float64
}

func NewAggregator(minTrials int, percentiles []float64) *Aggregator {
	if minTrials <= 0 {
		minTrials = 1
	}
	if len(percentiles) == 0 {
		percentiles = []float64{5, 50, 95}
	}
	return &Aggregator{MinTrials: minTrials, Percentiles: percentiles}
}

// Aggregate 计算每个物种的 mean/std/分位数。
// 某试验里标记 not computed 的物种不参与该物种的统计（不当作零），
// 所以各物种的 Count 可以小于成功试验总数。
func (a *Aggregator) Aggregate(results []*SpeciesResult) (*AggregateResult, error) {
	if len(results) < a.MinTrials {
		return nil, &InsufficientDataError{Got: len(results), Min: a.MinTrials}
	}

	agg := &AggregateResult{
		TotalTrials: len(results),
		Percentiles: append([]float64(nil), a.Percentiles...),
		Species:     map[string]SpeciesStats{},
		Activities:  map[string]SpeciesStats{},
		Phases:      map[string]SpeciesStats{},
		General:     map[string]SpeciesStats{},
	}
	agg.Database = results[0].Database

	molality := map[string][]float64{}
	activity := map[string][]float64{}
	si := map[string][]float64{}
	general := map[string][]float64{}
	for _, r := range results {
		for sp, v := range r.Molality {
			molality[sp] = append(molality[sp], v)
		}
		for sp, v := range r.LogActivity {
			activity[sp] = append(activity[sp], v)
		}
		for ph, v := range r.SI {
			si[ph] = append(si[ph], v)
		}
		for k, v := range r.General {
			general[k] = append(general[k], v)
		}
	}

	for sp, values := range molality {
		agg.Species[sp] = a.summarize(values, len(results))
	}
	for sp, values := range activity {
		agg.Activities[sp] = a.summarize(values, len(results))
	}
	for ph, values := range si {
		agg.Phases[ph] = a.summarize(values, len(results))
	}
	for k, values := range general {
		agg.General[k] = a.summarize(values, len(results))
	}

	return agg, nil
}

func (a *Aggregator) summarize(values []float64, total int) SpeciesStats {
	s := SpeciesStats{
		Count:       len(values),
		Total:       total,
		Percentiles: make(map[string]float64, len(a.Percentiles)),
	}

	mean, std := stat.MeanStdDev(values, nil)
	s.Mean = mean
	if len(values) > 1 {
		s.Std = std
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	for _, p := range a.Percentiles {
		key := fmt.Sprintf("p%g", p)
		s.Percentiles[key] = stat.Quantile(p/100, stat.Empirical, sorted, nil)
	}
	return s
}
