package service

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// 错误分类：
//   - ValidationError        输入组成非法，致命，立即返回
//   - SolverInvocationError  外部求解进程启动失败/输出不可解析，瞬时，可重试
//   - SolverTimeoutError     单次求解超时，瞬时，可重试
//   - SolverConvergenceError 求解器运行但未收敛，确定性失败，不重试
//   - BatchFailureError      整批零成功，致命，带失败归因
//   - InsufficientDataError  成功试验数不足以做统计，致命

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("输入校验失败: %s", e.Reason)
	}
	return fmt.Sprintf("输入校验失败: %s: %s", e.Field, e.Reason)
}

type SolverInvocationError struct {
	Detail string
	Err    error
}

func (e *SolverInvocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("求解器调用失败: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("求解器调用失败: %s", e.Detail)
}

func (e *SolverInvocationError) Unwrap() error { return e.Err }

type SolverTimeoutError struct {
	Timeout time.Duration
}

func (e *SolverTimeoutError) Error() string {
	return fmt.Sprintf("求解超时（%s）", e.Timeout)
}

type SolverConvergenceError struct {
	Detail string
}

func (e *SolverConvergenceError) Error() string {
	return fmt.Sprintf("求解未收敛: %s", e.Detail)
}

// BatchFailureError 整批没有任何成功试验时返回，Causes 为失败原因计数
type BatchFailureError struct {
	Total  int
	Causes map[string]int
}

func (e *BatchFailureError) Error() string {
	parts := make([]string, 0, len(e.Causes))
	for cause, n := range e.Causes {
		parts = append(parts, fmt.Sprintf("%s=%d", cause, n))
	}
	sort.Strings(parts)
	return fmt.Sprintf("整批失败: 0/%d 次试验成功（%s）", e.Total, strings.Join(parts, ", "))
}

type InsufficientDataError struct {
	Got int
	Min int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("成功试验数不足以做统计: %d < %d", e.Got, e.Min)
}
