package service

import (
	"fmt"
	"strings"
)

// PHREEQC 输入生成：SOLUTION 块 + SELECTED_OUTPUT 块 + END

// 默认输出的物种/总量/相（硼、碳、硫酸盐体系）
var (
	DefaultOutputTotals = []string{"Cl", "Na", "Mg", "K", "B", "Ca", "C", "S(6)"}

	DefaultOutputSpecies = []string{
		"OH-", "H+",
		// 硼
		"B(OH)4-", "B(OH)3", "CaB(OH)4+", "MgB(OH)4+", "NaB(OH)4", "B3O3(OH)4-", "B4O5(OH)4-2",
		// 碳
		"HCO3-", "CO3-2", "CO2", "CaCO3", "MgCO3", "SrCO3", "NaCO3-", "KCO3-",
		// 硫
		"SO4-2", "HSO4-",
	}

	DefaultOutputPhases = []string{"Calcite", "Aragonite"}
)

// OutputSpec 一次求解要求的输出集合
type OutputSpec struct {
	Totals  []string
	Species []string
	Phases  []string
}

// DefaultOutputSpec 默认输出集合的独立拷贝
func DefaultOutputSpec() OutputSpec {
	return OutputSpec{
		Totals:  append([]string(nil), DefaultOutputTotals...),
		Species: append([]string(nil), DefaultOutputSpecies...),
		Phases:  append([]string(nil), DefaultOutputPhases...),
	}
}

// BuildSolutionInput 把一个试验渲染为 SOLUTION 块。
// 数值统一 %.8e，避免不同平台默认格式差异影响可复现性。
func BuildSolutionInput(t *Trial, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SOLUTION %d  %s\n", n, t.SolutionID)
	for _, e := range t.Entries {
		if e.Unit != "" {
			fmt.Fprintf(&b, "    %-20s%.8e %s\n", e.Name, e.Value, e.Unit)
		} else {
			fmt.Fprintf(&b, "    %-20s%.8e\n", e.Name, e.Value)
		}
	}
	return b.String()
}

// BuildSelectedOutput 渲染 SELECTED_OUTPUT 块，file 为选择性输出落盘路径
func BuildSelectedOutput(file string, spec OutputSpec) string {
	lines := []string{
		"SELECTED_OUTPUT",
		fmt.Sprintf("    -file %s", file),
		"    -pH",
		"    -temperature",
		"    -alkalinity",
		"    -ionic_strength",
	}
	if len(spec.Totals) > 0 {
		lines = append(lines, "    -totals "+strings.Join(spec.Totals, " "))
	}
	if len(spec.Species) > 0 {
		lines = append(lines, "    -m "+strings.Join(spec.Species, " "))
		lines = append(lines, "    -a "+strings.Join(spec.Species, " "))
	}
	if len(spec.Phases) > 0 {
		lines = append(lines, "    -si "+strings.Join(spec.Phases, " "))
	}
	return strings.Join(lines, "\n")
}

// BuildInput 组装完整的 phreeqc 输入串
func BuildInput(t *Trial, selectedOutputFile string, spec OutputSpec) string {
	return BuildSolutionInput(t, 1) + "\n" + BuildSelectedOutput(selectedOutputFile, spec) + "\nEND\n"
}
