// Package processors contains the statistics collectors that subscribe to
// gameplay events. Each processor owns its counters: they are only mutated
// from its own callbacks and only read through Statistics, which returns a
// copy.
package processors
