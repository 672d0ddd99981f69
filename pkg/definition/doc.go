// Package definition builds graphs from declarative YAML or JSON documents.
//
// A document names its nodes by type and wires them with edges:
//
//	id: retry
//	entry: count
//	nodes:
//	  - id: count
//	    type: compute
//	    with:
//	      set: {attempts: "(attempts ?? 0) + 1"}
//	  - id: done
//	    type: append_message
//	    with: {content: finished}
//	edges:
//	  - from: count
//	    branches:
//	      - {when: "attempts < 3", to: count}
//	      - {to: done}
//	terminal: [done]
//
// Node types come from a Catalog. The built-in ones are noop, set, compute,
// append_message, interrupt, llm, tools, retrieve and subgraph; the last four
// need their collaborator supplied through a CatalogOption.
package definition
