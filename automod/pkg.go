package automod

import (
	"github.com/hearth-social/warden/automod/engine"
)

type Engine = engine.Engine
type RuleSet = engine.RuleSet
type Verdict = engine.Verdict

type MessageContext = engine.MessageContext
type JoinContext = engine.JoinContext
type MessageEvent = engine.MessageEvent
type JoinEvent = engine.JoinEvent
type BanEvent = engine.BanEvent
type Event = engine.Event

type MessageRule = engine.MessageRule
type JoinRule = engine.JoinRule
type MessageRuleFunc = engine.MessageRuleFunc
type JoinRuleFunc = engine.JoinRuleFunc
