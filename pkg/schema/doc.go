// Package schema declares the inputs a graph expects and checks run input
// against them before execution.
//
// Types are parsed from the short names used in definition files:
//
//	inputs:
//	  topic: string
//	  max_attempts: int?
//	  tags: "[string]"
//	  messages: messages
//
// A trailing "?" marks a field optional. Values decoded from JSON are
// accepted, so a whole float64 satisfies "int".
package schema
