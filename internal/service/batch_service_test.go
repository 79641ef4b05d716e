package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"spec-mc/internal/config"
)

func seedPtr(v int64) *int64 { return &v }

func testMCConfig() config.MonteCarloConfig {
	return config.MonteCarloConfig{
		Trials:         20,
		MaxConcurrency: 4,
		MaxRetries:     1,
		RetryBackoffMs: 1,
		MinTrials:      5,
		Percentiles:    []float64{5, 50, 95},
	}
}

// 全链路：组成 -> 采样 -> 求解 -> 汇总 -> 报告落盘（不依赖 MySQL 与真实 phreeqc）
func TestBatchServiceRun(t *testing.T) {
	reg, _ := testRegistry(t)
	solver := newFakeSolver(func(tr *Trial, attempt int) (*SpeciesResult, error) {
		b, _ := tr.Get("B")
		return mkResult(tr.Index, map[string]float64{"B(OH)4-": b * 0.25}), nil
	})

	svc := NewBatchService(reg, solver, testMCConfig())
	svc.outDir = t.TempDir()

	result, err := svc.Run(context.Background(), BatchRunRequest{
		SolutionID: "seawater-mod",
		Measurements: []Measurement{
			{Name: "temp", Value: 25, Unit: "degC"},
			{Name: "pH", Value: 8.1, Sigma: 0.02},
			{Name: "B", Value: 0.42, Sigma: 0.01, Unit: "mmol/kgw"},
		},
		Database: "pitzer",
		Seed:     seedPtr(42),
	})
	if err != nil {
		t.Fatalf("批次运行失败: %v", err)
	}

	if result.Status != BatchCompleted {
		t.Errorf("状态期望 COMPLETED，得到 %s", result.Status)
	}
	if result.Succeeded != 20 || result.Failed != 0 {
		t.Errorf("成功/失败计数不对: %d/%d", result.Succeeded, result.Failed)
	}
	if result.Aggregate == nil {
		t.Fatal("缺少汇总结果")
	}
	s, ok := result.Aggregate.Species["B(OH)4-"]
	if !ok || s.Count != 20 {
		t.Errorf("B(OH)4- 统计不对: %+v ok=%v", s, ok)
	}
	// 失败报告即使全成功也要在
	if result.FailureReport == nil {
		t.Error("失败报告不应为 nil")
	}

	// 报告落盘且包含失败报告小节
	raw, err := os.ReadFile(result.ReportPath)
	if err != nil {
		t.Fatalf("读取报告失败: %v", err)
	}
	if !strings.Contains(string(raw), "## 失败报告") {
		t.Error("报告缺少失败报告小节")
	}
	if _, err := os.Stat(result.ResultPath); err != nil {
		t.Errorf("结果 JSON 未落盘: %v", err)
	}
}

// 同种子两次运行，汇总统计完全一致（端到端可复现）
func TestBatchServiceReproducible(t *testing.T) {
	reg, _ := testRegistry(t)
	mk := func() *BatchService {
		solver := newFakeSolver(func(tr *Trial, attempt int) (*SpeciesResult, error) {
			b, _ := tr.Get("B")
			return mkResult(tr.Index, map[string]float64{"B(OH)4-": b}), nil
		})
		svc := NewBatchService(reg, solver, testMCConfig())
		svc.outDir = t.TempDir()
		return svc
	}

	req := BatchRunRequest{
		SolutionID: "s",
		Measurements: []Measurement{
			{Name: "B", Value: 0.42, Sigma: 0.05, Unit: "mmol/kgw"},
		},
		Seed: seedPtr(99),
	}

	r1, err := mk().Run(context.Background(), req)
	if err != nil {
		t.Fatalf("第一次运行失败: %v", err)
	}
	r2, err := mk().Run(context.Background(), req)
	if err != nil {
		t.Fatalf("第二次运行失败: %v", err)
	}

	a := r1.Aggregate.Species["B(OH)4-"]
	b := r2.Aggregate.Species["B(OH)4-"]
	if a.Mean != b.Mean || a.Std != b.Std {
		t.Errorf("同种子两次运行统计不一致: %+v vs %+v", a, b)
	}
}

// 显式传 seed=0 就用 0，不退到配置 seed 或时间戳
func TestBatchServiceExplicitZeroSeed(t *testing.T) {
	reg, _ := testRegistry(t)
	cfg := testMCConfig()
	cfg.Seed = 777
	mk := func() *BatchService {
		solver := newFakeSolver(func(tr *Trial, attempt int) (*SpeciesResult, error) {
			b, _ := tr.Get("B")
			return mkResult(tr.Index, map[string]float64{"B(OH)4-": b}), nil
		})
		svc := NewBatchService(reg, solver, cfg)
		svc.outDir = t.TempDir()
		return svc
	}

	req := BatchRunRequest{
		SolutionID: "s",
		Measurements: []Measurement{
			{Name: "B", Value: 0.42, Sigma: 0.05, Unit: "mmol/kgw"},
		},
		Seed: seedPtr(0),
	}

	r1, err := mk().Run(context.Background(), req)
	if err != nil {
		t.Fatalf("第一次运行失败: %v", err)
	}
	if r1.Seed != 0 {
		t.Fatalf("显式 seed=0 被替换成了 %d", r1.Seed)
	}
	r2, err := mk().Run(context.Background(), req)
	if err != nil {
		t.Fatalf("第二次运行失败: %v", err)
	}
	a := r1.Aggregate.Species["B(OH)4-"]
	b := r2.Aggregate.Species["B(OH)4-"]
	if a.Mean != b.Mean || a.Std != b.Std {
		t.Errorf("seed=0 两次运行统计不一致: %+v vs %+v", a, b)
	}
}

func TestBatchServiceValidation(t *testing.T) {
	reg, _ := testRegistry(t)
	svc := NewBatchService(reg, newFakeSolver(nil), testMCConfig())
	svc.outDir = t.TempDir()

	_, err := svc.Run(context.Background(), BatchRunRequest{
		SolutionID: "s",
		Measurements: []Measurement{
			{Name: "B", Value: 0.4, Sigma: -1, Unit: "mmol/kgw"},
		},
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("期望 ValidationError，得到 %v", err)
	}

	// 不存在的数据库
	_, err = svc.Run(context.Background(), BatchRunRequest{
		SolutionID: "s",
		Measurements: []Measurement{
			{Name: "B", Value: 0.4, Sigma: 0.01, Unit: "mmol/kgw"},
		},
		Database: "no-such-db",
	})
	if err == nil {
		t.Fatal("不存在的数据库应报错")
	}
}
