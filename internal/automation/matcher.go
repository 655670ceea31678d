package automation

import (
	"regexp"
	"sort"
	"strings"

	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// matcher is the compiled form of a rule keyword, chosen once at load time.
type matcher interface {
	match(text string) bool
}

type exactMatcher struct{ keyword string }

func (m exactMatcher) match(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), m.keyword)
}

type containsMatcher struct{ needle string }

func (m containsMatcher) match(text string) bool {
	return strings.Contains(strings.ToLower(text), m.needle)
}

type regexMatcher struct{ re *regexp.Regexp }

func (m regexMatcher) match(text string) bool {
	return m.re.MatchString(text)
}

// neverMatcher stands in for rules whose pattern did not compile.
type neverMatcher struct{}

func (neverMatcher) match(string) bool { return false }

func compileMatcher(rule Rule, logger *logging.Logger) matcher {
	keyword := strings.TrimSpace(rule.Keyword)
	switch rule.MatchType {
	case MatchExact:
		return exactMatcher{keyword: keyword}
	case MatchContains:
		return containsMatcher{needle: strings.ToLower(keyword)}
	case MatchRegex:
		re, err := regexp.Compile("(?i)" + rule.Keyword)
		if err != nil {
			logger.Warn("automation rule regex invalid, rule disabled", "rule_id", rule.ID, "error", err)
			return neverMatcher{}
		}
		return regexMatcher{re: re}
	default:
		logger.Warn("automation rule match type unknown, rule disabled", "rule_id", rule.ID, "match_type", rule.MatchType)
		return neverMatcher{}
	}
}

type compiledRule struct {
	rule    Rule
	matcher matcher
}

// RuleSet is an immutable, priority-ordered set of active rules.
type RuleSet struct {
	rules []compiledRule
}

// Compile keeps the active rules, compiles their keywords and orders them by
// priority descending. Equal priorities keep ascending id order.
func Compile(rules []Rule, logger *logging.Logger) *RuleSet {
	if logger == nil {
		logger = logging.Default()
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		compiled = append(compiled, compiledRule{rule: rule, matcher: compileMatcher(rule, logger)})
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].rule.Priority != compiled[j].rule.Priority {
			return compiled[i].rule.Priority > compiled[j].rule.Priority
		}
		return compiled[i].rule.ID < compiled[j].rule.ID
	})
	return &RuleSet{rules: compiled}
}

// Match returns the first rule whose keyword matches text.
func (s *RuleSet) Match(text string) (Rule, bool) {
	if s == nil {
		return Rule{}, false
	}
	for _, entry := range s.rules {
		if entry.matcher.match(text) {
			return entry.rule, true
		}
	}
	return Rule{}, false
}

// Len returns the number of active rules.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}
