package service

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// PHREEQC SELECTED_OUTPUT 解析。
// 列名语法（不同数据库版本列序、可选列会变化，按模式识别而非位置）：
//   m_<物种>(mol/kgw)  摩尔浓度
//   <物种>(mol/kgw)    元素总量
//   la_<物种>          log10 活度
//   si_<相>            饱和指数
//   其余               通用量（pH、temp(C)、Alk(eq/kgw)、mu 等）

// phreeqc 对未计算量输出的哨兵值
const notComputedSentinel = -999.999

var (
	molalityColPat = regexp.MustCompile(`^m_(.+)\(mol/kgw\)$`)
	totalColPat    = regexp.MustCompile(`^([^m_].*)\(mol/kgw\)$`)
	activityColPat = regexp.MustCompile(`^la_(.+)$`)
	siColPat       = regexp.MustCompile(`^si_(.+)$`)
)

// SpeciesResult 一次求解的结构化输出。
// 各 map 只收录确实算出来的量；请求了但缺失/哨兵值的物种记入 NotComputed，
// 与浓度为零严格区分。
type SpeciesResult struct {
	TrialIndex int    `json:"trial_index"`
	Database   string `json:"database"`

	Molality    map[string]float64 `json:"molality"`
	Total       map[string]float64 `json:"total"`
	LogActivity map[string]float64 `json:"log_activity"`
	SI          map[string]float64 `json:"si"`
	General     map[string]float64 `json:"general"`

	// 请求了但求解器没有给出的物种（排序后）
	NotComputed []string `json:"not_computed,omitempty"`
}

// Computed 物种的摩尔浓度是否被算出
func (r *SpeciesResult) Computed(species string) bool {
	_, ok := r.Molality[species]
	return ok
}

// ParseSelectedOutput 解析 SELECTED_OUTPUT 文件内容。
// requested 为 SELECTED_OUTPUT 中请求的摩尔浓度物种列表，用于标记缺失项。
func ParseSelectedOutput(content string, requested []string) (*SpeciesResult, error) {
	lines := []string{}
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return nil, fmt.Errorf("选择性输出为空（%d 行）", len(lines))
	}

	headers := splitOutputFields(lines[0])
	// 每个 SOLUTION 求解一行；批次里单试验单溶液，取最后一行（首行可能是初始解）
	values := splitOutputFields(lines[len(lines)-1])
	if len(values) != len(headers) {
		return nil, fmt.Errorf("数据行字段数 %d 与表头 %d 不一致", len(values), len(headers))
	}

	result := &SpeciesResult{
		Molality:    map[string]float64{},
		Total:       map[string]float64{},
		LogActivity: map[string]float64{},
		SI:          map[string]float64{},
		General:     map[string]float64{},
	}

	for i, h := range headers {
		v, err := strconv.ParseFloat(values[i], 64)
		if err != nil {
			// 非数值列（如 state 字符串）跳过
			continue
		}
		computed := v != notComputedSentinel

		if m := molalityColPat.FindStringSubmatch(h); m != nil {
			if computed {
				result.Molality[m[1]] = v
			}
			continue
		}
		if m := activityColPat.FindStringSubmatch(h); m != nil {
			if computed {
				result.LogActivity[m[1]] = v
			}
			continue
		}
		if m := siColPat.FindStringSubmatch(h); m != nil {
			if computed {
				result.SI[m[1]] = v
			}
			continue
		}
		if m := totalColPat.FindStringSubmatch(h); m != nil {
			if computed {
				result.Total[m[1]] = v
			}
			continue
		}
		if computed {
			result.General[h] = v
		}
	}

	// 请求过但没算出来的物种显式上报
	for _, sp := range requested {
		if !result.Computed(sp) {
			result.NotComputed = append(result.NotComputed, sp)
		}
	}
	sort.Strings(result.NotComputed)

	return result, nil
}

// splitOutputFields 兼容制表符分隔与多空格对齐两种格式
func splitOutputFields(line string) []string {
	var raw []string
	if strings.Contains(line, "\t") {
		raw = strings.Split(line, "\t")
	} else {
		raw = strings.Fields(line)
	}
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
