// Package reply parses the free-text replies of the reasoning service.
//
// Every parser here is total: an unrecognized reply resolves to a documented
// conservative default instead of an error, so ambiguous text never fails a
// session. The defaults are:
//
//   - Verdict: INSUFFICIENT
//   - Route: ADD_STEP
//   - Code: the reply as-is
//   - FileDescription: file type "unknown" with the reply as description
package reply

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Iron-Ham/dsstar/internal/plan"
	"github.com/Iron-Ham/dsstar/internal/session"
)

const (
	verdictSufficient   = "SUFFICIENT"
	verdictInsufficient = "INSUFFICIENT"
)

// ResultMarker introduces the answer block generated programs print.
const ResultMarker = "FINAL RESULT:"

// Separator is the line generated programs print around the answer block.
var Separator = strings.Repeat("=", 50)

// Verdict parses a verification reply.
func Verdict(text string) session.Verification {
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)

	var verdict session.Verdict
	switch {
	case strings.HasPrefix(upper, verdictSufficient):
		verdict = session.VerdictSufficient
	case strings.HasPrefix(upper, verdictInsufficient):
		verdict = session.VerdictInsufficient
	case strings.Contains(upper, verdictSufficient) && !strings.Contains(upper, verdictInsufficient):
		verdict = session.VerdictSufficient
	default:
		verdict = session.VerdictInsufficient
	}

	return session.Verification{Verdict: verdict, Reasoning: verdictReasoning(trimmed)}
}

// verdictReasoning strips a leading verdict token and the colon after it.
// Text without a leading token is returned trimmed but otherwise intact.
func verdictReasoning(text string) string {
	upper := strings.ToUpper(text)
	for _, token := range []string{verdictInsufficient, verdictSufficient} {
		if strings.HasPrefix(upper, token) {
			rest := strings.TrimSpace(text[len(token):])
			return strings.TrimSpace(strings.TrimPrefix(rest, ":"))
		}
	}
	return text
}

var (
	backtrackRe = regexp.MustCompile(`BACKTRACK[:\s]*(\d+)`)
	wrongStepRe = regexp.MustCompile(`STEP\s*(\d+)\s*(?:IS\s*)?(?:WRONG|INCORRECT|ERROR)`)
)

// unparsedRouteLimit bounds how much of an unparseable reply is kept.
const unparsedRouteLimit = 200

// Route parses a routing reply. Only the first line carries the decision;
// the remaining lines are the reasoning.
func Route(text string) plan.Route {
	trimmed := strings.TrimSpace(text)
	first, rest, _ := strings.Cut(trimmed, "\n")
	decision := strings.ToUpper(strings.TrimSpace(first))
	reasoning := strings.TrimSpace(rest)

	if strings.Contains(decision, "ADD_STEP") || strings.Contains(decision, "ADD STEP") {
		return plan.AddStep(reasoning)
	}
	if n, ok := submatchInt(backtrackRe, decision); ok {
		return plan.BacktrackTo(n, reasoning)
	}
	if n, ok := submatchInt(wrongStepRe, decision); ok {
		return plan.BacktrackTo(n, reasoning)
	}

	return plan.AddStep(fmt.Sprintf("Could not parse response, defaulting to ADD_STEP. Original: %s",
		truncateRunes(trimmed, unparsedRouteLimit)))
}

func submatchInt(re *regexp.Regexp, s string) (int, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(m[1], "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

var fenceRes = []*regexp.Regexp{
	regexp.MustCompile("(?s)```python\n(.*?)```"),
	regexp.MustCompile("(?s)```py\n(.*?)```"),
	regexp.MustCompile("(?s)```\n(.*?)```"),
}

// Code extracts a program from a code-generation reply: the first fenced
// block, else everything from the first comment or import line, else the
// reply itself.
func Code(text string) string {
	return extractCode(text, true)
}

// RepairCode extracts a program from a repair reply. It differs from Code
// only in that an unfenced program must start at an import line.
func RepairCode(text string) string {
	return extractCode(text, false)
}

func extractCode(text string, allowComment bool) string {
	for _, re := range fenceRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "import ") || strings.HasPrefix(l, "from ") ||
			(allowComment && strings.HasPrefix(l, "#")) {
			return strings.TrimSpace(strings.Join(lines[i:], "\n"))
		}
	}
	return strings.TrimSpace(text)
}

// Step cleans a planning reply down to the step description.
func Step(text string) string {
	desc := strings.TrimSpace(text)
	desc = strings.TrimPrefix(desc, "- ")
	desc = strings.TrimPrefix(desc, "* ")

	if label, body, found := strings.Cut(desc, ":"); found &&
		strings.HasPrefix(strings.ToLower(strings.TrimSpace(label)), "step") {
		desc = strings.TrimSpace(body)
	}
	return desc
}

// fallbackDescriptionLimit bounds the description kept from unparseable
// analysis replies.
const fallbackDescriptionLimit = 500

// fileReply is the JSON object the analyzer is asked to return
type fileReply struct {
	FileType    string         `json:"file_type"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
	SampleData  any            `json:"sample_data"`
	RowCount    *int           `json:"row_count"`
}

// FileDescription parses an analysis reply. Path and size are not part of
// the reply and are left for the caller to set.
func FileDescription(text string) session.FileDescription {
	var r fileReply
	if err := json.Unmarshal([]byte(jsonPayload(text)), &r); err != nil {
		return session.FileDescription{
			FileType:    "unknown",
			Description: truncateRunes(text, fallbackDescriptionLimit),
		}
	}

	fd := session.FileDescription{
		FileType:    r.FileType,
		Description: r.Description,
		RowCount:    r.RowCount,
		SampleData:  stringify(r.SampleData),
	}
	if fd.FileType == "" {
		fd.FileType = "unknown"
	}
	if len(r.Schema) > 0 {
		fd.Schema = make(map[string]string, len(r.Schema))
		for k, v := range r.Schema {
			fd.Schema[k] = stringify(v)
		}
	}
	return fd
}

// jsonPayload returns the body of the first ```json or ``` fence, or the
// whole text when there is no fence.
func jsonPayload(text string) string {
	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(text, fence)
		if start < 0 {
			continue
		}
		body := text[start+len(fence):]
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(text)
}

func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

var answerPrefixes = []string{"The answer is:", "Answer:", "Result:", "Final answer:", "RESULT:"}

// Answer cleans a finalizer reply by removing a leading answer label.
func Answer(text string) string {
	answer := strings.TrimSpace(text)
	for _, prefix := range answerPrefixes {
		if len(answer) >= len(prefix) && strings.EqualFold(answer[:len(prefix)], prefix) {
			answer = strings.TrimSpace(answer[len(prefix):])
		}
	}
	return answer
}

// FinalResult scans program output for the answer. It prefers the block
// printed after the ResultMarker line and falls back to the last line that
// is neither blank nor a separator. It reports false when stdout holds
// nothing usable.
func FinalResult(stdout string) (string, bool) {
	lines := strings.Split(stdout, "\n")

	for i, line := range lines {
		if !strings.Contains(line, ResultMarker) {
			continue
		}
		var block []string
		for _, next := range lines[i+1:] {
			t := strings.TrimSpace(next)
			if t == Separator {
				continue
			}
			if t == "" {
				if len(block) > 0 {
					break
				}
				continue
			}
			block = append(block, strings.TrimRight(next, " \t\r"))
		}
		if len(block) > 0 {
			return strings.TrimSpace(strings.Join(block, "\n")), true
		}
		break
	}

	for i := len(lines) - 1; i >= 0; i-- {
		t := strings.TrimSpace(lines[i])
		if t != "" && t != Separator {
			return t, true
		}
	}
	return "", false
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
