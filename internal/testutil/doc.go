// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing execution histories and deterministic
// agents. They are not intended for production usage.
package testutil
