// Package protocol implements the worker wire protocol: a 4-byte big-endian
// length prefix followed by a UTF-8 JSON payload, symmetric in both
// directions, plus the command and event message types spoken over it.
// Framing is a byte-exact compatibility contract with any caller.
package protocol
