// Package nodeflow builds declarative dataflow graphs on top of a task
// scheduler whose native primitives are acyclic graphs with integer-indexed
// conditional edges and statically composed subgraphs.
//
// A graph is a set of named nodes that produce and consume values by string
// key. Values travel through single-assignment, multi-reader channels, and
// dependencies are inferred from which keys a node reads: node B reading key
// K written by node A implies A runs before B. There are no heuristics and
// no implicit dependencies through shared external state.
//
// Two realizations coexist. Type-erased nodes exchange map[string]any and
// validate dynamic types at access time; typed nodes use generics
// (Transform1, Transform2, Split, ...) so value types are fixed at
// construction, with builder-generated adapter tasks performing the single
// validated downcast at the erased/typed boundary.
//
// Control flow is encoded on the acyclic scheduler:
//
//   - Condition nodes select exactly one successor by integer index.
//   - MultiCondition nodes select a subset of successors to run in parallel.
//   - Loop nodes combine a body, a condition and an exit task; because
//     channels are single-assignment, every iteration constructs a fresh
//     nested graph and cross-iteration state lives in an explicit Cell.
//   - Subgraphs compose a nested graph statically; Subtasks rebuild one on
//     every invocation.
//
// Construction-time mistakes (duplicate node names, references to unknown
// nodes or keys) fail immediately. Runtime type errors are fatal to the
// offending node's task only; its unfulfilled channels block dependents
// until the run context is cancelled.
package nodeflow
