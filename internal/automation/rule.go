// Package automation holds the administrator-defined keyword rules the
// conversation router falls back to when no flow or command claims a message.
package automation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MatchType selects how a rule's keyword is compared with the message.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchContains MatchType = "contains"
	MatchRegex    MatchType = "regex"
)

// Action is what the router does when a rule matches.
type Action string

const (
	ActionReply          Action = "reply"
	ActionForward        Action = "forward"
	ActionInvokeFunction Action = "invoke_function"
)

var ErrInvalidRule = errors.New("automation: invalid rule")

// Rule is one row of the rule table.
type Rule struct {
	ID           int64     `json:"id"`
	Keyword      string    `json:"keyword"`
	MatchType    MatchType `json:"match_type"`
	Action       Action    `json:"action"`
	ReplyText    string    `json:"reply_text,omitempty"`
	TargetRole   string    `json:"target_role,omitempty"`
	FunctionName string    `json:"function_name,omitempty"`
	Priority     int       `json:"priority"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks a rule before it is stored. Regex keywords must compile.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Keyword) == "" {
		return fmt.Errorf("%w: keyword is required", ErrInvalidRule)
	}
	switch r.MatchType {
	case MatchExact, MatchContains:
	case MatchRegex:
		if _, err := regexp.Compile("(?i)" + r.Keyword); err != nil {
			return fmt.Errorf("%w: regex: %v", ErrInvalidRule, err)
		}
	default:
		return fmt.Errorf("%w: unknown match type %q", ErrInvalidRule, r.MatchType)
	}
	switch r.Action {
	case ActionReply:
		if strings.TrimSpace(r.ReplyText) == "" {
			return fmt.Errorf("%w: reply_text is required for reply", ErrInvalidRule)
		}
	case ActionForward:
		if strings.TrimSpace(r.TargetRole) == "" {
			return fmt.Errorf("%w: target_role is required for forward", ErrInvalidRule)
		}
	case ActionInvokeFunction:
		if strings.TrimSpace(r.FunctionName) == "" {
			return fmt.Errorf("%w: function_name is required for invoke_function", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRule, r.Action)
	}
	return nil
}
