/*
Package tools implements the tool-invocation loop.

A model node emits an assistant message carrying structured tool calls. The
tool node built by Node resolves every call through a Lookup, runs it and
appends one role=tool message per call, in call order. Unknown tools,
malformed arguments, failures and panics come back as in-band messages
tagged with a domain.ErrorKind; they never abort the run, so the model can
see the error and recover.

Route wires the loop: it sends control back to the tool node while the last
message still requests tools, and on to the next node otherwise.
*/
package tools
