package service

import (
	"encoding/json"
	"fmt"
)

// Distribution 单个测量量的重采样策略
type Distribution string

const (
	// DistNormal 正态扰动 N(mean, sigma)，默认
	DistNormal Distribution = "normal"
	// DistUniform 均匀扰动 [mean-sigma, mean+sigma]
	DistUniform Distribution = "uniform"
	// DistFixed 不扰动
	DistFixed Distribution = "fixed"
)

// Measurement 一个带不确定度的测量量（如总硼、碱度、温度）
type Measurement struct {
	Name  string       `json:"name"`
	Value float64      `json:"value"`
	// 不确定度：normal 下为标准差，uniform 下为半区间宽度
	Sigma float64      `json:"sigma"`
	Unit  string       `json:"unit"`
	Dist  Distribution `json:"dist,omitempty"`
}

// PHREEQC SOLUTION 块的通用键（非元素总量类输入）
var generalQuantities = map[string]bool{
	"temp": true, "pH": true, "pe": true, "density": true,
	"Alkalinity": true, "units": true,
}

var concentrationUnits = map[string]bool{
	"mol/kgw": true, "mmol/kgw": true, "umol/kgw": true,
	"mol/l": true, "mmol/l": true, "umol/l": true,
	"ppm": true, "ppb": true,
}

var alkalinityUnits = map[string]bool{
	"eq/kgw": true, "meq/kgw": true, "ueq/kgw": true,
}

// validateUnit 按量的类型检查单位
func validateUnit(m Measurement) error {
	switch m.Name {
	case "temp":
		if m.Unit != "degC" && m.Unit != "" {
			return &ValidationError{Field: m.Name, Reason: fmt.Sprintf("不支持的温度单位 %q（应为 degC）", m.Unit)}
		}
	case "pH", "pe":
		if m.Unit != "" {
			return &ValidationError{Field: m.Name, Reason: fmt.Sprintf("%s 无量纲，不应带单位 %q", m.Name, m.Unit)}
		}
	case "density":
		if m.Unit != "kg/L" && m.Unit != "g/cm3" {
			return &ValidationError{Field: m.Name, Reason: fmt.Sprintf("不支持的密度单位 %q", m.Unit)}
		}
	case "Alkalinity":
		if !concentrationUnits[m.Unit] && !alkalinityUnits[m.Unit] {
			return &ValidationError{Field: m.Name, Reason: fmt.Sprintf("不支持的碱度单位 %q", m.Unit)}
		}
	default:
		// 元素总量 / 物种输入
		if !concentrationUnits[m.Unit] {
			return &ValidationError{Field: m.Name, Reason: fmt.Sprintf("不支持的浓度单位 %q", m.Unit)}
		}
	}
	return nil
}

// SolutionComposition 一个溶液的全部测量量，构造后不可变
type SolutionComposition struct {
	id            string
	measurements  []Measurement
	index         map[string]int
	isotopeRatios map[string]float64
}

// NewSolutionComposition 校验并构造溶液组成。
// 拒绝：重复的量名、负不确定度、不认识的单位、非法的物种名。
func NewSolutionComposition(id string, measurements []Measurement, isotopeRatios map[string]float64) (*SolutionComposition, error) {
	if id == "" {
		return nil, &ValidationError{Reason: "溶液 ID 不能为空"}
	}
	if len(measurements) == 0 {
		return nil, &ValidationError{Reason: "至少需要一个测量量"}
	}

	c := &SolutionComposition{
		id:           id,
		measurements: make([]Measurement, 0, len(measurements)),
		index:        make(map[string]int, len(measurements)),
	}

	for _, m := range measurements {
		if m.Name == "" {
			return nil, &ValidationError{Reason: "测量量名不能为空"}
		}
		if _, dup := c.index[m.Name]; dup {
			return nil, &ValidationError{Field: m.Name, Reason: "重复的测量量"}
		}
		if m.Sigma < 0 {
			return nil, &ValidationError{Field: m.Name, Reason: fmt.Sprintf("不确定度不能为负: %g", m.Sigma)}
		}
		if !generalQuantities[m.Name] && !IsValidMolecule(m.Name) {
			return nil, &ValidationError{Field: m.Name, Reason: "不是合法的元素/物种名"}
		}
		switch m.Dist {
		case "":
			m.Dist = DistNormal
		case DistNormal, DistUniform, DistFixed:
		default:
			return nil, &ValidationError{Field: m.Name, Reason: fmt.Sprintf("未知的分布类型 %q", m.Dist)}
		}
		if err := validateUnit(m); err != nil {
			return nil, err
		}

		c.index[m.Name] = len(c.measurements)
		c.measurements = append(c.measurements, m)
	}

	if len(isotopeRatios) > 0 {
		c.isotopeRatios = make(map[string]float64, len(isotopeRatios))
		for k, v := range isotopeRatios {
			c.isotopeRatios[k] = v
		}
	}

	return c, nil
}

func (c *SolutionComposition) ID() string { return c.id }

func (c *SolutionComposition) Len() int { return len(c.measurements) }

// Get 按名读取测量量
func (c *SolutionComposition) Get(name string) (Measurement, bool) {
	i, ok := c.index[name]
	if !ok {
		return Measurement{}, false
	}
	return c.measurements[i], true
}

// Measurements 按构造顺序返回全部测量量（拷贝）
func (c *SolutionComposition) Measurements() []Measurement {
	out := make([]Measurement, len(c.measurements))
	copy(out, c.measurements)
	return out
}

// IsotopeRatios 附带的同位素比元数据（拷贝；可能为 nil）
func (c *SolutionComposition) IsotopeRatios() map[string]float64 {
	if c.isotopeRatios == nil {
		return nil
	}
	out := make(map[string]float64, len(c.isotopeRatios))
	for k, v := range c.isotopeRatios {
		out[k] = v
	}
	return out
}

// MarshalJSON 输出快照（用于 BatchRun.CompositionJSON 持久化）
func (c *SolutionComposition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID            string             `json:"id"`
		Measurements  []Measurement      `json:"measurements"`
		IsotopeRatios map[string]float64 `json:"isotope_ratios,omitempty"`
	}{c.id, c.measurements, c.isotopeRatios})
}
