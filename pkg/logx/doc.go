// Package logx configures chored's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Sinks and levels swappable at runtime (config hot reload)
//
// The zero value of Logger is a safe no-op, so components that receive a
// logger never have to nil-check it before logging.
package logx
