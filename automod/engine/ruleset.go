package engine

import (
	"fmt"
)

type MessageRuleFunc = func(c *MessageContext) error
type JoinRuleFunc = func(c *JoinContext) error

type MessageRule struct {
	Name string
	Func MessageRuleFunc
}

type JoinRule struct {
	Name string
	Func JoinRuleFunc
}

// Holds configuration of which rules of various types should be run, and helps dispatch events to those rules.
type RuleSet struct {
	MessageRules []MessageRule
	JoinRules    []JoinRule
}

// Runs every message rule in order. A rule which errors or panics is logged and skipped; the remaining rules still run.
func (r *RuleSet) CallMessageRules(c *MessageContext) {
	for _, rule := range r.MessageRules {
		err := callIsolated(rule.Name, func() error { return rule.Func(c) })
		if err == nil {
			err = c.Err
		}
		if err != nil {
			c.Logger.Error("message rule failed", "rule", rule.Name, "err", err)
			ruleFailures.WithLabelValues(rule.Name).Inc()
		}
		c.Err = nil
	}
}

func (r *RuleSet) CallJoinRules(c *JoinContext) {
	for _, rule := range r.JoinRules {
		err := callIsolated(rule.Name, func() error { return rule.Func(c) })
		if err == nil {
			err = c.Err
		}
		if err != nil {
			c.Logger.Error("join rule failed", "rule", rule.Name, "err", err)
			ruleFailures.WithLabelValues(rule.Name).Inc()
		}
		c.Err = nil
	}
}

// similar to an HTTP server, we want to recover any panics from rule execution
func callIsolated(name string, f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule %s panicked: %v", name, r)
		}
	}()
	return f()
}
