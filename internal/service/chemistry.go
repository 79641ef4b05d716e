package service

import (
	"regexp"
	"strconv"
)

// 化学式处理：从物种名里提取元素、分解化学计量数（供输入校验与物种过滤）

var validElements = map[string]bool{
	"H": true, "He": true, "Li": true, "Be": true, "B": true, "C": true,
	"N": true, "O": true, "F": true, "Ne": true, "Na": true, "Mg": true,
	"Al": true, "Si": true, "P": true, "S": true, "Cl": true, "Ar": true,
	"K": true, "Ca": true, "Sc": true, "Ti": true, "V": true, "Cr": true,
	"Mn": true, "Fe": true, "Co": true, "Ni": true, "Cu": true, "Zn": true,
	"Ga": true, "Ge": true, "As": true, "Se": true, "Br": true, "Kr": true,
	"Rb": true, "Sr": true, "Y": true, "Zr": true, "Nb": true, "Mo": true,
	"Tc": true, "Ru": true, "Rh": true, "Pd": true, "Ag": true, "Cd": true,
	"In": true, "Sn": true, "Sb": true, "Te": true, "I": true, "Xe": true,
	"Cs": true, "Ba": true, "La": true, "Ce": true, "Pr": true, "Nd": true,
	"Pm": true, "Sm": true, "Eu": true, "Gd": true, "Tb": true, "Dy": true,
	"Ho": true, "Er": true, "Tm": true, "Yb": true, "Lu": true, "Hf": true,
	"Ta": true, "W": true, "Re": true, "Os": true, "Ir": true, "Pt": true,
	"Au": true, "Hg": true, "Tl": true, "Pb": true, "Bi": true, "Po": true,
	"At": true, "Rn": true, "Fr": true, "Ra": true, "Ac": true, "Th": true,
	"Pa": true, "U": true,
}

var (
	elementPat = regexp.MustCompile(`[A-Z][a-z]{0,2}`)
	parensPat  = regexp.MustCompile(`\(([A-Za-z0-9()]+)\)([0-9]+)?`)
	stoichPat  = regexp.MustCompile(`([A-Z][a-z]?)([0-9]+)?`)
	valencePat = regexp.MustCompile(`([+-][0-9])`)
)

func IsValidElement(name string) bool {
	return validElements[name]
}

// GetElements 返回化学式中出现的元素集合
func GetElements(formula string) map[string]bool {
	out := map[string]bool{}
	for _, m := range elementPat.FindAllString(formula, -1) {
		out[m] = true
	}
	return out
}

// IsValidMolecule 化学式中的元素都是合法元素符号
func IsValidMolecule(formula string) bool {
	els := GetElements(formula)
	if len(els) == 0 {
		return false
	}
	for el := range els {
		if !validElements[el] {
			return false
		}
	}
	return true
}

// DecomposeMolecule 分解化学式为元素计数，支持括号子式与末尾价态（如 B(OH)4-、Ca+2）。
// 价态（若存在）以 "valence" 键返回，值为出现次数无关的 ±N。
func DecomposeMolecule(formula string, n int) map[string]int {
	if n <= 0 {
		n = 1
	}

	comp := map[string]int{}

	// 括号子式先递归，再处理余下部分
	for _, ps := range parensPat.FindAllStringSubmatch(formula, -1) {
		sub, count := ps[1], 1
		if ps[2] != "" {
			count, _ = strconv.Atoi(ps[2])
		}
		for el, c := range DecomposeMolecule(sub, count) {
			if el == "valence" {
				continue
			}
			comp[el] += c * n
		}
	}
	rem := parensPat.ReplaceAllString(formula, "")

	for _, m := range stoichPat.FindAllStringSubmatch(rem, -1) {
		el, count := m[1], 1
		if m[2] != "" {
			count, _ = strconv.Atoi(m[2])
		}
		comp[el] += count * n
	}

	if v := valencePat.FindString(rem); v != "" {
		val, _ := strconv.Atoi(v)
		comp["valence"] = val
	}

	return comp
}
