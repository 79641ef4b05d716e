package service

import (
	"strings"
	"testing"
)

const sampleOutput = "" +
	"sim\tstate\tsoln\tpH\ttemp(C)\tAlk(eq/kgw)\tmu\tB(mol/kgw)\tm_B(OH)4-(mol/kgw)\tm_B(OH)3(mol/kgw)\tm_CaB(OH)4+(mol/kgw)\tla_B(OH)4-\tsi_Calcite\n" +
	"1\ti_soln\t1\t8.1000\t25.000\t2.3000e-03\t0.7215\t4.2000e-04\t1.0500e-04\t3.1500e-04\t-999.999\t-4.0200\t0.7421\n"

func TestParseSelectedOutput(t *testing.T) {
	requested := []string{"B(OH)4-", "B(OH)3", "CaB(OH)4+", "NaB(OH)4"}

	result, err := ParseSelectedOutput(sampleOutput, requested)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	if v, ok := result.Molality["B(OH)4-"]; !ok || v != 1.05e-04 {
		t.Errorf("B(OH)4- 摩尔浓度期望 1.05e-04，得到 %g (ok=%v)", v, ok)
	}
	if v, ok := result.Molality["B(OH)3"]; !ok || v != 3.15e-04 {
		t.Errorf("B(OH)3 摩尔浓度期望 3.15e-04，得到 %g (ok=%v)", v, ok)
	}
	if v, ok := result.Total["B"]; !ok || v != 4.2e-04 {
		t.Errorf("B 总量期望 4.2e-04，得到 %g (ok=%v)", v, ok)
	}
	if v, ok := result.LogActivity["B(OH)4-"]; !ok || v != -4.02 {
		t.Errorf("B(OH)4- 活度期望 -4.02，得到 %g (ok=%v)", v, ok)
	}
	if v, ok := result.SI["Calcite"]; !ok || v != 0.7421 {
		t.Errorf("Calcite 饱和指数期望 0.7421，得到 %g (ok=%v)", v, ok)
	}
	if v, ok := result.General["pH"]; !ok || v != 8.1 {
		t.Errorf("pH 期望 8.1，得到 %g (ok=%v)", v, ok)
	}
}

// 哨兵值 -999.999 与请求了但缺列的物种都标记为 not computed，与浓度为零严格区分
func TestParseNotComputed(t *testing.T) {
	requested := []string{"B(OH)4-", "B(OH)3", "CaB(OH)4+", "NaB(OH)4"}

	result, err := ParseSelectedOutput(sampleOutput, requested)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	// CaB(OH)4+ 是哨兵值，NaB(OH)4 根本没有这一列
	want := []string{"CaB(OH)4+", "NaB(OH)4"}
	if len(result.NotComputed) != len(want) {
		t.Fatalf("not computed 期望 %v，得到 %v", want, result.NotComputed)
	}
	for i, sp := range want {
		if result.NotComputed[i] != sp {
			t.Errorf("not computed[%d] 期望 %s，得到 %s", i, sp, result.NotComputed[i])
		}
	}
	if result.Computed("CaB(OH)4+") {
		t.Error("哨兵值物种不应算作已计算")
	}
	if _, ok := result.Molality["CaB(OH)4+"]; ok {
		t.Error("哨兵值不应以数值形式出现在结果里（会被误当成浓度）")
	}
}

// 列序变化与可选列缺失都要能解析（数据库版本间的输出差异）
func TestParseReorderedColumns(t *testing.T) {
	out := "si_Calcite\tm_B(OH)4-(mol/kgw)\tpH\n" +
		"0.5\t2.0000e-04\t7.9\n"

	result, err := ParseSelectedOutput(out, []string{"B(OH)4-"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if result.Molality["B(OH)4-"] != 2.0e-04 {
		t.Errorf("列序变化后解析错误: %v", result.Molality)
	}
	if len(result.NotComputed) != 0 {
		t.Errorf("不应有 not computed: %v", result.NotComputed)
	}
}

// 多行输出（初始解+反应解）取最后一行
func TestParseTakesLastRow(t *testing.T) {
	out := "pH\tm_B(OH)4-(mol/kgw)\n" +
		"7.0\t1.0000e-04\n" +
		"8.2\t2.5000e-04\n"

	result, err := ParseSelectedOutput(out, nil)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if result.General["pH"] != 8.2 || result.Molality["B(OH)4-"] != 2.5e-04 {
		t.Errorf("应取最后一行: pH=%g m=%g", result.General["pH"], result.Molality["B(OH)4-"])
	}
}

func TestParseMalformedOutput(t *testing.T) {
	if _, err := ParseSelectedOutput("", nil); err == nil {
		t.Error("空输出应报错")
	}
	if _, err := ParseSelectedOutput("pH\tm_X(mol/kgw)\n", nil); err == nil {
		t.Error("只有表头没有数据行应报错")
	}
	if _, err := ParseSelectedOutput("pH\tm_X(mol/kgw)\n7.0\n", nil); err == nil {
		t.Error("字段数与表头不一致应报错")
	}
}

// 空格对齐（非制表符）的输出同样可解析
func TestParseWhitespaceSeparated(t *testing.T) {
	out := strings.Join([]string{
		"pH   m_B(OH)4-(mol/kgw)   si_Calcite",
		"8.1      1.0500e-04           0.74",
	}, "\n")

	result, err := ParseSelectedOutput(out, []string{"B(OH)4-"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if result.Molality["B(OH)4-"] != 1.05e-04 {
		t.Errorf("空格分隔解析错误: %v", result.Molality)
	}
}
