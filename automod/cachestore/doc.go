// Component for caching serialized documents (eg, per-community moderation configuration) with a fixed TTL and explicit purging.
//
// Includes an interface and implementations using redis (with a local TinyLFU tier) and in-process memory.
package cachestore
