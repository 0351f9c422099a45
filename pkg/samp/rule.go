package samp

import (
	"fmt"

	"github.com/woozymasta/sampq/pkg/samp/wire"
)

// Rule is a single server variable. Encoding is the one detected on the value.
type Rule struct {
	Name     string        `json:"name"`
	Value    string        `json:"value"`
	Encoding wire.Encoding `json:"encoding"`
}

// RuleList is the rule table in server order.
type RuleList []Rule

// Get returns the first rule named name. Names are compared case-sensitively.
func (l RuleList) Get(name string) (Rule, bool) {
	for _, r := range l {
		if r.Name == name {
			return r, true
		}
	}

	return Rule{}, false
}

// DecodeRuleList parses an 'r' body.
func DecodeRuleList(data []byte) (RuleList, error) {
	rules, rest, err := wire.UnpackCountedList(data, 2, decodeRule)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	if err := wire.ExpectEmpty("rules", rest); err != nil {
		return nil, err
	}

	return rules, nil
}

func decodeRule(data []byte) (Rule, []byte, error) {
	name, rest, _, err := wire.UnpackString(data, 1)
	if err != nil {
		return Rule{}, data, err
	}
	value, rest, enc, err := wire.UnpackString(rest, 1)
	if err != nil {
		return Rule{}, data, err
	}

	return Rule{Name: name, Value: value, Encoding: enc}, rest, nil
}
