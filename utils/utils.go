package utils

import (
	"math"
	"regexp"
	"strings"
)

var blankLines = regexp.MustCompile(`\n([ \t\r]*\n)+`)

// 规范化回复文本：多个空行压缩为一个空行，去掉首尾空白
func NormalizeAnswer(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// 规范化字符串：转小写并去掉全角/半角空格
func NormalizeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + 32)
		case r == '　' || r == ' ':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// 任意关键词出现即返回 true
func ContainsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// 统计命中的关键词个数（每个关键词最多计一次）
func CountMatches(s string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			n++
		}
	}
	return n
}

// 保留两位小数
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}
