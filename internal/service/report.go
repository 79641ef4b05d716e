package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"spec-mc/internal/model"
)

// RenderReportMarkdown 渲染批次报告。
// 失败报告无论成败都要出现，部分退化绝不静默。
func RenderReportMarkdown(run *model.BatchRun, result *BatchRunResult) string {
	var b strings.Builder
	b.WriteString("# 蒙特卡洛形态分布报告\n\n")
	b.WriteString(fmt.Sprintf("- run_id: %d\n", run.ID))
	b.WriteString(fmt.Sprintf("- solution: %s\n", run.SolutionID))
	b.WriteString(fmt.Sprintf("- database: %s\n", result.Database))
	b.WriteString(fmt.Sprintf("- trials: %d\n", result.Trials))
	b.WriteString(fmt.Sprintf("- seed: %d\n", result.Seed))
	b.WriteString(fmt.Sprintf("- status: %s\n", result.Status))
	b.WriteString(fmt.Sprintf("- created_at: %s\n\n", run.CreatedAt.Format(time.RFC3339)))

	b.WriteString("## 失败报告\n\n")
	b.WriteString(fmt.Sprintf("- 成功/总数: %d/%d\n", result.Succeeded, result.Trials))
	if len(result.FailureReport) == 0 {
		b.WriteString("- 无失败\n\n")
	} else {
		causes := make([]string, 0, len(result.FailureReport))
		for cause := range result.FailureReport {
			causes = append(causes, cause)
		}
		sort.Strings(causes)
		for _, cause := range causes {
			b.WriteString(fmt.Sprintf("- %s: %d\n", cause, result.FailureReport[cause]))
		}
		b.WriteString("\n")
	}

	if result.Aggregate != nil {
		writeStatsTable(&b, "物种摩尔浓度 (mol/kgw)", result.Aggregate.Species, result.Aggregate.Percentiles)
		writeStatsTable(&b, "物种对数活度", result.Aggregate.Activities, result.Aggregate.Percentiles)
		writeStatsTable(&b, "相饱和指数", result.Aggregate.Phases, result.Aggregate.Percentiles)
		writeStatsTable(&b, "通用量", result.Aggregate.General, result.Aggregate.Percentiles)
	}

	if len(result.Errors) > 0 {
		b.WriteString("## 运行期错误\n\n")
		for _, e := range result.Errors {
			b.WriteString(fmt.Sprintf("- %s\n", e))
		}
		b.WriteString("\n")
	}

	b.WriteString("## 原始统计 (JSON)\n\n")
	if result.Aggregate != nil {
		j, _ := json.MarshalIndent(result.Aggregate, "", "  ")
		b.WriteString("```json\n")
		b.Write(j)
		b.WriteString("\n```\n")
	} else {
		b.WriteString("- 无（批次失败或成功试验数不足）\n")
	}

	return b.String()
}

func writeStatsTable(b *strings.Builder, title string, stats map[string]SpeciesStats, percentiles []float64) {
	if len(stats) == 0 {
		return
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString(fmt.Sprintf("## %s\n\n", title))
	header := "| 物种 | 纳入/总数 | Mean | Std |"
	sep := "| --- | ---: | ---: | ---: |"
	for _, p := range percentiles {
		header += fmt.Sprintf(" p%g |", p)
		sep += " ---: |"
	}
	b.WriteString(header + "\n")
	b.WriteString(sep + "\n")

	for _, name := range names {
		s := stats[name]
		row := fmt.Sprintf("| %s | %d/%d | %.4e | %.4e |", name, s.Count, s.Total, s.Mean, s.Std)
		for _, p := range percentiles {
			row += fmt.Sprintf(" %.4e |", s.Percentiles[fmt.Sprintf("p%g", p)])
		}
		b.WriteString(row + "\n")
	}
	b.WriteString("\n")
}
