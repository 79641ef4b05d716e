package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// 批次状态机：PENDING -> RUNNING -> {COMPLETED, PARTIALLY_FAILED, CANCELLED, FAILED}
type BatchStatus string

const (
	BatchPending         BatchStatus = "PENDING"
	BatchRunning         BatchStatus = "RUNNING"
	BatchCompleted       BatchStatus = "COMPLETED"
	BatchPartiallyFailed BatchStatus = "PARTIALLY_FAILED"
	BatchCancelled       BatchStatus = "CANCELLED"
	BatchFailed          BatchStatus = "FAILED"
)

// 单试验终态
const (
	TrialSucceeded         = "succeeded"
	TrialTimeout           = "timeout"
	TrialInvocationFailed  = "invocation_failed"
	TrialConvergenceFailed = "convergence_failed"
	TrialCancelled         = "cancelled"
)

// TrialExecution 一次试验的执行记录（落库与失败归因用）
type TrialExecution struct {
	TrialIndex int    `json:"trial_index"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

// BatchOutcome 一个批次的全部产出。
// 无论成败都带失败报告（按原因计数），部分退化绝不静默。
type BatchOutcome struct {
	Status  BatchStatus       `json:"status"`
	Total   int               `json:"total"`
	Results []*SpeciesResult  `json:"results"`
	Records []TrialExecution  `json:"records"`
	// 失败原因 -> 次数
	FailureReport map[string]int `json:"failure_report"`
	// 因失败率超阈值而提前终止
	Aborted bool `json:"aborted"`
}

func (o *BatchOutcome) Succeeded() int { return len(o.Results) }

// BatchRunner 有界并发地把试验派发给求解器，管理重试与失败策略。
// 结果收集是唯一的同步点（互斥保护、按试验序号排序返回）。
type BatchRunner struct {
	Solver         Solver
	MaxConcurrency int
	MaxRetries     int
	RetryBackoff   time.Duration
	// 已完成试验失败率超过该值则中止派发；0 表示不启用。
	// 至少观察 abortMinObserved 个结果后阈值才生效，避免开头噪声误杀。
	AbortFailureRate float64
}

const abortMinObserved = 10

// Run 执行一批试验。
// 重试策略：超时/调用失败重试 MaxRetries 次（固定间隔退避 k*RetryBackoff）；
// 不收敛是确定性失败，不重试，记为该试验的永久失败。
// 取消：外层 ctx 取消后停止派发，在途求解按宽限期处理，已收集结果保留返回。
func (r *BatchRunner) Run(ctx context.Context, trials []Trial, db DatabaseRef) (*BatchOutcome, error) {
	ch := make(chan Trial)
	go func() {
		defer close(ch)
		for _, t := range trials {
			ch <- t
		}
	}()
	return r.RunStream(ctx, ch, len(trials), db)
}

// RunStream 从惰性序列消费试验（大批次时配合 Sampler.Stream 控制内存）。
// total 必须等于序列长度，用于判定 COMPLETED。
func (r *BatchRunner) RunStream(ctx context.Context, trials <-chan Trial, total int, db DatabaseRef) (*BatchOutcome, error) {
	outcome := &BatchOutcome{
		Status:        BatchRunning,
		Total:         total,
		FailureReport: map[string]int{},
	}
	if total == 0 {
		outcome.Status = BatchFailed
		return outcome, &BatchFailureError{Total: 0, Causes: map[string]int{}}
	}

	abortCtx, abortDispatch := context.WithCancel(ctx)
	defer abortDispatch()

	var (
		mu       sync.Mutex
		finished int
		failed   int
	)

	g := new(errgroup.Group)
	g.SetLimit(r.maxConcurrency())

	for t := range trials {
		if abortCtx.Err() != nil {
			// 中止后把序列排空，让采样方退出
			continue
		}
		t := t
		g.Go(func() error {
			res, rec := r.runTrial(ctx, &t, db)

			mu.Lock()
			defer mu.Unlock()
			outcome.Records = append(outcome.Records, rec)
			if res != nil {
				outcome.Results = append(outcome.Results, res)
			} else {
				outcome.FailureReport[rec.Status]++
				if rec.Status != TrialCancelled {
					failed++
				}
			}
			finished++

			// 失败率熔断：系统性配置错误时尽早止损
			if r.AbortFailureRate > 0 && finished >= abortMinObserved &&
				float64(failed)/float64(finished) > r.AbortFailureRate {
				outcome.Aborted = true
				abortDispatch()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(outcome.Results, func(a, b int) bool {
		return outcome.Results[a].TrialIndex < outcome.Results[b].TrialIndex
	})
	sort.Slice(outcome.Records, func(a, b int) bool {
		return outcome.Records[a].TrialIndex < outcome.Records[b].TrialIndex
	})

	switch {
	case ctx.Err() != nil:
		outcome.Status = BatchCancelled
	case len(outcome.Results) == 0:
		outcome.Status = BatchFailed
		return outcome, &BatchFailureError{Total: outcome.Total, Causes: outcome.FailureReport}
	case len(outcome.Results) == outcome.Total:
		outcome.Status = BatchCompleted
	default:
		outcome.Status = BatchPartiallyFailed
	}
	return outcome, nil
}

func (r *BatchRunner) maxConcurrency() int {
	if r.MaxConcurrency <= 0 {
		return 1
	}
	return r.MaxConcurrency
}

func (r *BatchRunner) runTrial(ctx context.Context, t *Trial, db DatabaseRef) (*SpeciesResult, TrialExecution) {
	rec := TrialExecution{TrialIndex: t.Index}
	start := time.Now()
	defer func() {
		rec.ElapsedMs = time.Since(start).Milliseconds()
	}()

	for attempt := 1; ; attempt++ {
		rec.Attempts = attempt

		if ctx.Err() != nil {
			rec.Status = TrialCancelled
			rec.Error = ctx.Err().Error()
			return nil, rec
		}

		res, err := r.Solver.Solve(ctx, t, db)
		if err == nil {
			rec.Status = TrialSucceeded
			return res, rec
		}
		rec.Error = err.Error()

		var convErr *SolverConvergenceError
		if errors.As(err, &convErr) {
			// 确定性化学失败，不重试
			rec.Status = TrialConvergenceFailed
			return nil, rec
		}

		var timeoutErr *SolverTimeoutError
		if errors.As(err, &timeoutErr) {
			rec.Status = TrialTimeout
		} else {
			var invErr *SolverInvocationError
			if errors.As(err, &invErr) {
				rec.Status = TrialInvocationFailed
			} else if ctx.Err() != nil {
				rec.Status = TrialCancelled
				return nil, rec
			} else {
				rec.Status = TrialInvocationFailed
			}
		}

		if attempt > r.MaxRetries {
			return nil, rec
		}

		// 固定间隔退避，第 k 次重试等 k*backoff
		select {
		case <-time.After(time.Duration(attempt) * r.RetryBackoff):
		case <-ctx.Done():
			rec.Status = TrialCancelled
			rec.Error = ctx.Err().Error()
			return nil, rec
		}
	}
}
