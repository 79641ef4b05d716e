package service

import (
	"context"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// TrialEntry 试验中一个已确定取值的量
type TrialEntry struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Trial 一次蒙特卡洛采样得到的完全确定的组成实例，创建后不可变
type Trial struct {
	Index      int          `json:"index"`
	SolutionID string       `json:"solution_id"`
	Entries    []TrialEntry `json:"entries"`
}

// Get 按名读取试验取值
func (t *Trial) Get(name string) (float64, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return 0, false
}

// Sampler 按配置的分布对溶液组成做扰动采样。
// 同一 seed + 组成 + 数量下产出逐位一致的试验序列（科学审计的可复现要求）。
type Sampler struct {
	Seed int64

	corrNames []string
	corrIndex map[string]int
	lower     *mat.TriDense
}

func NewSampler(seed int64) *Sampler {
	return &Sampler{Seed: seed}
}

// WithCorrelation 启用相关采样：对 names 列出的正态分布量，
// 用给定相关矩阵的 Cholesky 分解生成相关标准正态，再映射到各自的 mean/sigma。
// 矩阵必须对称正定，维度与 names 一致。
func (s *Sampler) WithCorrelation(names []string, corr *mat.SymDense) error {
	n := len(names)
	if n == 0 {
		return &ValidationError{Reason: "相关采样至少需要一个量名"}
	}
	if r, _ := corr.Dims(); r != n {
		return &ValidationError{Reason: fmt.Sprintf("相关矩阵维度 %d 与量名个数 %d 不一致", r, n)}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(corr); !ok {
		return &ValidationError{Reason: "相关矩阵不是正定矩阵，Cholesky 分解失败"}
	}

	s.corrNames = append([]string(nil), names...)
	s.corrIndex = make(map[string]int, n)
	for i, name := range names {
		s.corrIndex[name] = i
	}
	s.lower = mat.NewTriDense(n, mat.Lower, nil)
	chol.LTo(s.lower)
	return nil
}

// Sample 产出恰好 n 个试验（全部物化）。
func (s *Sampler) Sample(comp *SolutionComposition, n int) ([]Trial, error) {
	if n <= 0 {
		return nil, &ValidationError{Reason: fmt.Sprintf("试验次数必须为正: %d", n)}
	}
	if err := s.checkCorrelation(comp); err != nil {
		return nil, err
	}

	out := make([]Trial, 0, n)
	s.generate(comp, n, func(t Trial) bool {
		out = append(out, t)
		return true
	})
	return out, nil
}

// Stream 产出惰性的有限试验序列（大 n 时控制内存）。
// 序列不可重放；ctx 取消后生产方停止发送并关闭 channel。
func (s *Sampler) Stream(ctx context.Context, comp *SolutionComposition, n int) (<-chan Trial, error) {
	if n <= 0 {
		return nil, &ValidationError{Reason: fmt.Sprintf("试验次数必须为正: %d", n)}
	}
	if err := s.checkCorrelation(comp); err != nil {
		return nil, err
	}

	ch := make(chan Trial)
	go func() {
		defer close(ch)
		s.generate(comp, n, func(t Trial) bool {
			select {
			case ch <- t:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return ch, nil
}

func (s *Sampler) checkCorrelation(comp *SolutionComposition) error {
	for _, name := range s.corrNames {
		m, ok := comp.Get(name)
		if !ok {
			return &ValidationError{Field: name, Reason: "相关矩阵引用了组成中不存在的量"}
		}
		if m.Dist != DistNormal && m.Dist != "" {
			return &ValidationError{Field: name, Reason: fmt.Sprintf("相关采样只支持 normal 分布的量（当前 %s）", m.Dist)}
		}
	}
	return nil
}

// generate 是 Sample/Stream 的共同实现。
// 抽样顺序固定：试验外层、测量量内层（相关向量在每个试验开头抽取），保证可复现。
func (s *Sampler) generate(comp *SolutionComposition, n int, yield func(Trial) bool) {
	src := rand.NewSource(uint64(s.Seed))
	stdNorm := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	uni := distuv.Uniform{Min: 0, Max: 1, Src: src}

	measurements := comp.Measurements()
	nc := len(s.corrNames)
	z := make([]float64, nc)
	y := make([]float64, nc)

	for i := 0; i < n; i++ {
		// 相关标准正态：y = L·z
		if nc > 0 {
			for j := range z {
				z[j] = stdNorm.Rand()
			}
			for r := 0; r < nc; r++ {
				sum := 0.0
				for c := 0; c <= r; c++ {
					sum += s.lower.At(r, c) * z[c]
				}
				y[r] = sum
			}
		}

		entries := make([]TrialEntry, len(measurements))
		for j, m := range measurements {
			v := m.Value
			if m.Sigma > 0 && m.Dist != DistFixed {
				if ci, ok := s.corrIndex[m.Name]; ok {
					v = m.Value + m.Sigma*y[ci]
				} else {
					switch m.Dist {
					case DistUniform:
						uni.Min = m.Value - m.Sigma
						uni.Max = m.Value + m.Sigma
						v = uni.Rand()
					default: // normal
						v = m.Value + m.Sigma*stdNorm.Rand()
					}
				}
			}
			entries[j] = TrialEntry{Name: m.Name, Value: v, Unit: m.Unit}
		}

		if !yield(Trial{Index: i, SolutionID: comp.ID(), Entries: entries}) {
			return
		}
	}
}
