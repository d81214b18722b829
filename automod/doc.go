// Auto-moderation engine for chat communities: spam, raid, link, mention, word, and image detection, with strike escalation and enforcement.
//
// This package contains a "rules engine" which processes inbound community events (messages, member joins, bans). Sliding-window rate trackers and per-community configuration drive detector rules; detector verdicts flow through a strike ledger and a single enforcement executor, and every detection and action is written to an audit trail. Quarantine of new members and expiry of automatic slowmode run as periodic sweeps.
//
// See `cmd/warden` for a daemon built on this package.
package automod
