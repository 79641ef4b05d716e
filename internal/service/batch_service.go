package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"spec-mc/internal/config"
	"spec-mc/internal/db"
	"spec-mc/internal/model"

	"gonum.org/v1/gonum/mat"
)

// CorrelationSpec 请求级的相关采样配置（可选）
type CorrelationSpec struct {
	Names  []string    `json:"names"`
	Matrix [][]float64 `json:"matrix"`
}

type BatchRunRequest struct {
	SolutionID    string             `json:"solution_id"`
	Measurements  []Measurement      `json:"measurements"`
	IsotopeRatios map[string]float64 `json:"isotope_ratios,omitempty"`
	Database      string             `json:"database"`
	Trials        int                `json:"trials"`
	// 不传时取配置 seed，再退到时间戳；显式传 0 就用 0（可复现要求）
	Seed *int64 `json:"seed,omitempty"`
	// 大批次用惰性采样，边采边跑
	Stream      bool             `json:"stream"`
	Correlation *CorrelationSpec `json:"correlation,omitempty"`
}

type BatchRunResult struct {
	RunID    uint        `json:"run_id"`
	Seed     int64       `json:"seed"`
	Database string      `json:"database"`
	Trials   int         `json:"trials"`
	Status   BatchStatus `json:"status"`

	Aggregate     *AggregateResult `json:"aggregate,omitempty"`
	FailureReport map[string]int   `json:"failure_report"`
	Succeeded     int              `json:"succeeded"`
	Failed        int              `json:"failed"`

	ResultPath     string   `json:"result_path"`
	ReportPath     string   `json:"report_path"`
	ReportMarkdown string   `json:"report_markdown"`
	Errors         []string `json:"errors"`
}

// BatchService 串起采样 -> 批次执行 -> 汇总 -> 落库/出报告的完整链路
type BatchService struct {
	registry *DatabaseRegistry
	solver   Solver
	mc       config.MonteCarloConfig
	outDir   string
}

func NewBatchService(registry *DatabaseRegistry, solver Solver, mc config.MonteCarloConfig) *BatchService {
	return &BatchService{
		registry: registry,
		solver:   solver,
		mc:       mc,
		outDir:   "outputs",
	}
}

func (s *BatchService) Run(ctx context.Context, req BatchRunRequest) (*BatchRunResult, error) {
	if req.Trials <= 0 {
		req.Trials = s.mc.Trials
	}
	var seed int64
	switch {
	case req.Seed != nil:
		seed = *req.Seed
	case s.mc.Seed != 0:
		seed = s.mc.Seed
	default:
		seed = time.Now().UnixNano()
	}

	comp, err := NewSolutionComposition(req.SolutionID, req.Measurements, req.IsotopeRatios)
	if err != nil {
		return nil, err
	}

	dbRef, err := s.registry.Resolve(req.Database)
	if err != nil {
		return nil, fmt.Errorf("解析数据库失败: %w", err)
	}

	sampler := NewSampler(seed)
	if req.Correlation != nil {
		corr, err := buildSymMatrix(req.Correlation.Matrix)
		if err != nil {
			return nil, err
		}
		if err := sampler.WithCorrelation(req.Correlation.Names, corr); err != nil {
			return nil, err
		}
	}

	compJSON, _ := json.Marshal(comp)
	run := &model.BatchRun{
		SolutionID:      comp.ID(),
		Database:        dbRef.Name,
		Trials:          req.Trials,
		Seed:            seed,
		Status:          string(BatchPending),
		CompositionJSON: string(compJSON),
	}
	if db.DB != nil {
		if err := db.DB.Create(run).Error; err != nil {
			return nil, fmt.Errorf("创建批次run失败: %w", err)
		}
	}

	runner := &BatchRunner{
		Solver:           s.solver,
		MaxConcurrency:   s.mc.MaxConcurrency,
		MaxRetries:       s.mc.MaxRetries,
		RetryBackoff:     time.Duration(s.mc.RetryBackoffMs) * time.Millisecond,
		AbortFailureRate: s.mc.AbortFailureRate,
	}

	var outcome *BatchOutcome
	var runErr error
	if req.Stream {
		trials, serr := sampler.Stream(ctx, comp, req.Trials)
		if serr != nil {
			return nil, serr
		}
		outcome, runErr = runner.RunStream(ctx, trials, req.Trials, dbRef)
	} else {
		trials, serr := sampler.Sample(comp, req.Trials)
		if serr != nil {
			return nil, serr
		}
		outcome, runErr = runner.Run(ctx, trials, dbRef)
	}

	s.persistRecords(ctx, run.ID, outcome)

	result := &BatchRunResult{
		RunID:         run.ID,
		Seed:          seed,
		Database:      dbRef.Name,
		Trials:        req.Trials,
		Status:        outcome.Status,
		FailureReport: outcome.FailureReport,
		Succeeded:     outcome.Succeeded(),
		Failed:        outcome.Total - outcome.Succeeded(),
	}

	if runErr != nil {
		// 零成功：上报失败归因后整体失败
		s.saveRun(run, outcome, result)
		return nil, runErr
	}

	aggregator := NewAggregator(s.mc.MinTrials, s.mc.Percentiles)
	agg, aggErr := aggregator.Aggregate(outcome.Results)
	if aggErr != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("run=%d aggregate failed: %v", run.ID, aggErr))
		// 取消的批次保留已收集结果返回，不把统计不足当整体失败
		if outcome.Status != BatchCancelled {
			s.saveRun(run, outcome, result)
			return nil, aggErr
		}
	}
	result.Aggregate = agg

	// 输出文件
	_ = os.MkdirAll(s.outDir, 0o755)
	result.ResultPath = filepath.Join(s.outDir, fmt.Sprintf("batch_run_%d.json", run.ID))
	result.ReportPath = filepath.Join(s.outDir, fmt.Sprintf("batch_run_%d_report.md", run.ID))
	result.ReportMarkdown = RenderReportMarkdown(run, result)

	if b, err := json.MarshalIndent(result, "", "  "); err == nil {
		_ = os.WriteFile(result.ResultPath, b, 0o644)
	}
	_ = os.WriteFile(result.ReportPath, []byte(result.ReportMarkdown), 0o644)

	run.ResultPath = result.ResultPath
	run.ReportPath = result.ReportPath
	s.saveRun(run, outcome, result)

	return result, nil
}

func (s *BatchService) saveRun(run *model.BatchRun, outcome *BatchOutcome, result *BatchRunResult) {
	run.Status = string(outcome.Status)
	run.Succeeded = result.Succeeded
	run.Failed = result.Failed
	if db.DB != nil {
		_ = db.DB.Save(run).Error
	}
}

func (s *BatchService) persistRecords(ctx context.Context, runID uint, outcome *BatchOutcome) {
	if db.DB == nil || len(outcome.Records) == 0 {
		return
	}
	records := make([]model.TrialRecord, 0, len(outcome.Records))
	for _, rec := range outcome.Records {
		records = append(records, model.TrialRecord{
			RunID:      runID,
			TrialIndex: rec.TrialIndex,
			Status:     rec.Status,
			Attempts:   rec.Attempts,
			Error:      rec.Error,
			ElapsedMs:  rec.ElapsedMs,
		})
	}
	_ = db.DB.WithContext(ctx).CreateInBatches(records, 200).Error
}

func buildSymMatrix(rows [][]float64) (*mat.SymDense, error) {
	n := len(rows)
	if n == 0 {
		return nil, &ValidationError{Reason: "相关矩阵为空"}
	}
	data := make([]float64, 0, n*n)
	for i, row := range rows {
		if len(row) != n {
			return nil, &ValidationError{Reason: fmt.Sprintf("相关矩阵第 %d 行长度 %d != %d", i, len(row), n)}
		}
		data = append(data, row...)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if rows[i][j] != rows[j][i] {
				return nil, &ValidationError{Reason: fmt.Sprintf("相关矩阵不对称: [%d][%d] != [%d][%d]", i, j, j, i)}
			}
		}
	}
	return mat.NewSymDense(n, data), nil
}
