package validate

import (
	"regexp"
	"strconv"
)

// TestCounts is the tally reported by the test runner's summary line.
type TestCounts struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errors  int `json:"errors"`
	Skipped int `json:"skipped"`
}

func (c TestCounts) Total() int {
	return c.Passed + c.Failed + c.Errors + c.Skipped
}

var summaryCount = regexp.MustCompile(`(\d+) (passed|failed|errors?|skipped)`)

// parseTestCounts reads pytest style summaries such as
// "3 passed, 1 failed, 2 errors in 0.12s". ok is false when no count was
// found.
func parseTestCounts(output string) (TestCounts, bool) {
	var c TestCounts
	matches := summaryCount.FindAllStringSubmatch(output, -1)
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		switch m[2] {
		case "passed":
			c.Passed = n
		case "failed":
			c.Failed = n
		case "error", "errors":
			c.Errors = n
		case "skipped":
			c.Skipped = n
		}
	}
	return c, len(matches) > 0
}
