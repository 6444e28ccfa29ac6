// Package logx wraps zerolog behind a small structured-logging API.
//
// Components receive a Logger and tag themselves with a fixed "comp" field
// via With(). The backing Service can swap sinks and level at runtime, so a
// Logger created once stays valid across config reloads.
package logx
