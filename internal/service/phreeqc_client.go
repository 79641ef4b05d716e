package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Solver 抽象外部平衡求解能力。批次运行器只依赖这个接口，
// 三类失败（调用/超时/不收敛）必须可区分，重试策略依赖这个区分。
type Solver interface {
	Solve(ctx context.Context, t *Trial, db DatabaseRef) (*SpeciesResult, error)
}

// 求解器输出里标记不收敛的片段（不同版本措辞略有差异）
var convergenceMarkers = []string{
	"did not converge",
	"Numerical method failed",
	"ERROR: The program has reached its convergence limit",
}

// PhreeqcClient 通过子进程调用 phreeqc。
// 每次求解独立临时目录，调用之间无共享可变状态，可放心并行。
type PhreeqcClient struct {
	BinaryPath string
	WorkDir    string
	Timeout    time.Duration
	KillGrace  time.Duration
	Output     OutputSpec
}

func NewPhreeqcClient(binaryPath, workDir string, timeout, killGrace time.Duration) *PhreeqcClient {
	if binaryPath == "" {
		binaryPath = "phreeqc"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if killGrace <= 0 {
		killGrace = 5 * time.Second
	}
	return &PhreeqcClient{
		BinaryPath: binaryPath,
		WorkDir:    workDir,
		Timeout:    timeout,
		KillGrace:  killGrace,
		Output:     DefaultOutputSpec(),
	}
}

// Solve 渲染输入 -> 跑 phreeqc -> 解析选择性输出。
// 失败分类：
//   - 上下文超时                 -> SolverTimeoutError
//   - 输出含不收敛标记           -> SolverConvergenceError
//   - 进程起不来/输出不可解析     -> SolverInvocationError
func (c *PhreeqcClient) Solve(ctx context.Context, t *Trial, db DatabaseRef) (*SpeciesResult, error) {
	dir, err := os.MkdirTemp(c.WorkDir, "phreeqc-*")
	if err != nil {
		return nil, &SolverInvocationError{Detail: "创建临时目录失败", Err: err}
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "input.pqi")
	outputPath := filepath.Join(dir, "output.pqo")
	selectedPath := filepath.Join(dir, "selected.tsv")

	input := BuildInput(t, selectedPath, c.Output)
	if err := os.WriteFile(inputPath, []byte(input), 0o644); err != nil {
		return nil, &SolverInvocationError{Detail: "写入输入文件失败", Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.BinaryPath, inputPath, outputPath, db.Path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// 取消时先礼后兵：SIGINT，宽限期后强杀
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = c.KillGrace

	runErr := cmd.Run()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &SolverTimeoutError{Timeout: c.Timeout}
	}
	if ctx.Err() != nil {
		// 外层取消，不归入求解失败
		return nil, fmt.Errorf("求解被取消: %w", ctx.Err())
	}

	// 不收敛判定优先于进程退出码：phreeqc 不收敛时可能非零退出
	solverLog := stderr.String()
	if logBytes, err := os.ReadFile(outputPath); err == nil {
		solverLog += "\n" + string(logBytes)
	}
	if marker := findConvergenceMarker(solverLog); marker != "" {
		return nil, &SolverConvergenceError{
			Detail: fmt.Sprintf("trial=%d database=%s: %s", t.Index, db.Name, marker),
		}
	}

	if runErr != nil {
		return nil, &SolverInvocationError{
			Detail: fmt.Sprintf("phreeqc 退出异常（trial=%d）: %s", t.Index, firstLine(stderr.String())),
			Err:    runErr,
		}
	}

	raw, err := os.ReadFile(selectedPath)
	if err != nil {
		return nil, &SolverInvocationError{Detail: "读取选择性输出失败", Err: err}
	}
	result, err := ParseSelectedOutput(string(raw), c.Output.Species)
	if err != nil {
		return nil, &SolverInvocationError{Detail: "解析选择性输出失败", Err: err}
	}

	result.TrialIndex = t.Index
	result.Database = db.Name
	return result, nil
}

func findConvergenceMarker(out string) string {
	for _, marker := range convergenceMarkers {
		if strings.Contains(out, marker) {
			return marker
		}
	}
	return ""
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
