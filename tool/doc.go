// Package tool defines the tool execution framework.
//
// The package is split by concern:
//   - param: parameter declarations, validation and resolved values
//   - descriptor: immutable tool descriptors and their execution strategies
//   - registry: the catalog of descriptors in registration order
//   - dispatcher: validation, strategy dispatch and structured outcomes
//   - process: the external process runner and command substitution
//   - parsers: built-in interpreters for external tool output
//
// The package is presentation-agnostic so the CLI and the HTTP server share
// one descriptor and outcome contract.
package tool
