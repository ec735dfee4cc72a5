package security

import "unicode/utf8"

// ScanForRisk applies the advisory risk patterns to downloaded source and
// returns every issue found. It never fails; an empty result means nothing
// matched.
func ScanForRisk(content []byte) []string {
	if !utf8.Valid(content) {
		return []string{"unsupported encoding: content is not valid UTF-8"}
	}
	text := string(content)
	issues := []string{}
	for _, p := range riskPatterns {
		if p.Re.MatchString(text) {
			issues = append(issues, p.Message)
		}
	}
	return issues
}
