package domain

import "strings"

// Specialty 是规范化（去除首尾空白并转为小写）之后的专科名称
type Specialty string

func NormalizeSpecialty(s string) Specialty {
	return Specialty(strings.ToLower(strings.TrimSpace(s)))
}

func NormalizeSpecialties(ss []string) []Specialty {
	res := make([]Specialty, 0, len(ss))
	seen := make(map[Specialty]bool)
	for _, s := range ss {
		sp := NormalizeSpecialty(s)
		if sp == "" || seen[sp] {
			continue
		}
		seen[sp] = true
		res = append(res, sp)
	}
	return res
}
