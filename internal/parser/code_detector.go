package parser

import (
	"regexp"
	"strings"
)

// CodeDetector finds one-time codes in message text
type CodeDetector struct {
	patterns []*regexp.Regexp
}

// NewCodeDetector creates a new code detector
func NewCodeDetector() *CodeDetector {
	return &CodeDetector{
		patterns: []*regexp.Regexp{
			// Keyword followed by 4-8 digits
			regexp.MustCompile(`(?i)\b(?:code|otp|pin|passcode)\b(?:\s+is)?[\s:\-]*(\d{4,8})\b`),
			// Verification wording
			regexp.MustCompile(`(?i)\b(?:verification|verify|confirm(?:ation)?|security|2fa|two.factor)\b[\s\w]{0,20}?[\s:\-]+(\d{4,8})\b`),
			// Standalone number on its own line
			regexp.MustCompile(`(?m)^\s*(\d{4,8})\s*$`),
			// Alphanumeric code after keyword, at least one digit required below
			regexp.MustCompile(`(?i)\bcode\b[\s:\-]+([A-Z0-9]{4,12})\b`),
		},
	}
}

// Detect returns distinct codes in order of first match
func (d *CodeDetector) Detect(text string) []string {
	var codes []string
	seen := make(map[string]bool)

	for _, pattern := range d.patterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			if len(match) < 2 {
				continue
			}
			code := strings.TrimSpace(match[1])
			if seen[code] || len(code) < 4 || !strings.ContainsAny(code, "0123456789") {
				continue
			}
			seen[code] = true
			codes = append(codes, code)
		}
	}

	return codes
}
