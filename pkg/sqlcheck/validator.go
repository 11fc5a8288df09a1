package sqlcheck

import (
	"fmt"
	"regexp"
	"strings"
)

// Error kinds returned by the validator. Callers branch on these codes,
// never on message text.
const (
	ErrorKindNotSelect              = "NOT_SELECT"
	ErrorKindForbiddenKeyword       = "FORBIDDEN_KEYWORD"
	ErrorKindForbiddenInCombination = "FORBIDDEN_KEYWORD_IN_COMBINATION"
	ErrorKindInjectionDetected      = "INJECTION_DETECTED"
	ErrorKindTooManyJoins           = "TOO_MANY_JOINS"
)

// Result is the outcome of validating one SQL statement.
type Result struct {
	Valid     bool   `json:"valid"`
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Validator classifies SQL text as safe-read-only or rejected. It never
// executes anything; all checks are pure text analysis.
type Validator struct {
	maxJoins int
}

// NewValidator creates a validator with the given JOIN ceiling.
func NewValidator(maxJoins int) *Validator {
	return &Validator{maxJoins: maxJoins}
}

// forbiddenKeywords are rejected as whole words anywhere in the statement,
// unconditionally. Keywords that are legal inside read-only idioms (SET inside
// a DECLARE block, WITH) are handled by combination rules instead.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "TRUNCATE", "MERGE", "REPLACE", "UPSERT",
	"CREATE", "ALTER", "DROP", "RENAME",
	"GRANT", "REVOKE", "DENY",
	"COMMIT", "ROLLBACK", "SAVEPOINT",
	"EXEC", "EXECUTE", "CALL",
	"LOCK", "UNLOCK",
	"ATTACH", "DETACH", "VACUUM", "REINDEX", "PRAGMA",
	"USE", "SHUTDOWN", "KILL",
}

var forbiddenKeywordPattern = regexp.MustCompile(
	`(?i)\b(?:` + strings.Join(forbiddenKeywords, "|") + `)\b`)

// combinationRule describes a keyword combination that is a legitimate
// read-only idiom but carries its own additional forbidden set. The first
// rule whose required set matches wins and short-circuits the rest.
type combinationRule struct {
	name      string
	required  []string
	forbidden []string
}

var combinationRules = []combinationRule{
	{
		name:      "DECLARE+SET+SELECT",
		required:  []string{"DECLARE", "SET", "SELECT"},
		forbidden: []string{"CURSOR", "OPENQUERY", "OPENROWSET", "OPENDATASOURCE"},
	},
	{
		name:      "WITH+SELECT",
		required:  []string{"WITH", "SELECT"},
		forbidden: []string{"RECURSIVE"},
	},
}

// injectionPattern flags a known injection shape. Lenient validation skips
// patterns marked unionOnly, for SQL the system generated itself.
type injectionPattern struct {
	re          *regexp.Regexp
	description string
	unionOnly   bool
}

var injectionPatterns = []injectionPattern{
	{regexp.MustCompile(`;\s*\S`), "statement chaining", false},
	{regexp.MustCompile(`(?:--|#)`), "comment-based truncation", false},
	{regexp.MustCompile(`/\*`), "block comment truncation", false},
	{regexp.MustCompile(`(?i)\b(?:or|and)\b\s*'[^']*'\s*=\s*'`), "quoted tautology", false},
	{regexp.MustCompile(`(?i)\b(?:or|and)\b\s+\d+\s*=\s*\d+`), "numeric tautology", false},
	{regexp.MustCompile(`(?i)\bunion\b[\s(]+(?:all\s+)?select\b`), "UNION SELECT smuggling", true},
	{regexp.MustCompile(`(?i)0x[0-9a-f]{8,}`), "hex-encoded payload", false},
	{regexp.MustCompile(`(?i)\b(?:xp_cmdshell|sp_executesql|load_file)\b`), "dangerous built-in", false},
	{regexp.MustCompile(`(?i)\binto\s+(?:outfile|dumpfile)\b`), "file write built-in", false},
	{regexp.MustCompile(`(?i)\b(?:benchmark|sleep|pg_sleep)\s*\(`), "timing function", false},
	{regexp.MustCompile(`(?i)\bwaitfor\s+delay\b`), "timing function", false},
}

var (
	wordPattern = regexp.MustCompile(`[A-Za-z_]+`)
	joinPattern = regexp.MustCompile(`(?i)\bJOIN\b`)
)

// Validate runs the strict ruleset: entry point, injection scan, absolute
// forbidden keywords, combination rules, then the JOIN guard. The first
// failing check wins.
func (v *Validator) Validate(sqlText string) Result {
	return v.validate(sqlText, false)
}

// ValidateLenient is Validate minus the UNION-specific injection pattern.
// It exists only for SQL the system produced itself (pivoted multi-metric
// aggregations legitimately contain UNION SELECT) and must never be used on
// user-influenced text.
func (v *Validator) ValidateLenient(sqlText string) Result {
	return v.validate(sqlText, true)
}

func (v *Validator) validate(sqlText string, lenient bool) Result {
	trimmed := strings.TrimSpace(sqlText)
	upper := strings.ToUpper(trimmed)

	// Entry-point check
	if !hasReadEntryPoint(upper) {
		return Result{
			Valid:     false,
			ErrorKind: ErrorKindNotSelect,
			Message:   "only SELECT statements are allowed",
		}
	}

	// Injection-pattern scan. Runs ahead of the keyword scan so chained
	// statements report as injection rather than as whatever keyword the
	// smuggled tail happens to contain.
	trailTrimmed := strings.TrimRight(trimmed, "; \t\r\n")
	for _, p := range injectionPatterns {
		if lenient && p.unionOnly {
			continue
		}
		if p.re.MatchString(trailTrimmed) {
			return Result{
				Valid:     false,
				ErrorKind: ErrorKindInjectionDetected,
				Message:   fmt.Sprintf("possible SQL injection: %s", p.description),
			}
		}
	}

	// Absolute forbidden-keyword scan
	if hit := forbiddenKeywordPattern.FindString(trimmed); hit != "" {
		return Result{
			Valid:     false,
			ErrorKind: ErrorKindForbiddenKeyword,
			Message:   fmt.Sprintf("forbidden keyword: %s", strings.ToUpper(hit)),
		}
	}

	// Conditional combination rules: first matching required set wins
	keywords := keywordSet(upper)
	for _, rule := range combinationRules {
		if !containsAll(keywords, rule.required) {
			continue
		}
		for _, kw := range rule.forbidden {
			if keywords[kw] {
				return Result{
					Valid:     false,
					ErrorKind: ErrorKindForbiddenInCombination,
					Message:   fmt.Sprintf("keyword %s is not allowed in a %s statement", kw, rule.name),
				}
			}
		}
		break
	}

	// Resource guard
	if joins := len(joinPattern.FindAllString(trimmed, -1)); joins > v.maxJoins {
		return Result{
			Valid:     false,
			ErrorKind: ErrorKindTooManyJoins,
			Message:   fmt.Sprintf("query has %d JOINs, maximum allowed is %d", joins, v.maxJoins),
		}
	}

	return Result{Valid: true}
}

// hasReadEntryPoint checks the statement begins like a read. WITH and DECLARE
// prefixes are accepted when a SELECT appears anywhere after them; their
// extra restrictions are enforced by the combination rules.
func hasReadEntryPoint(upper string) bool {
	switch {
	case strings.HasPrefix(upper, "SELECT"):
		return true
	case strings.HasPrefix(upper, "(SELECT"):
		return true
	case strings.HasPrefix(upper, "WITH"):
		return strings.Contains(upper, "SELECT")
	case strings.HasPrefix(upper, "DECLARE"):
		return strings.Contains(upper, "SELECT")
	}
	return false
}

func keywordSet(upper string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range wordPattern.FindAllString(upper, -1) {
		set[word] = true
	}
	return set
}

func containsAll(set map[string]bool, required []string) bool {
	for _, kw := range required {
		if !set[kw] {
			return false
		}
	}
	return true
}
