// Package vm executes translated Argon bytecode.
//
// An Interpreter holds everything shared between threads: the global
// scope, the built-in classes and the native module registry. A State is
// one thread of control with its own frame stack; several States may run
// against the same Interpreter concurrently, and every scope or object
// store they share is internally locked.
//
// Execution is register based. Each frame owns a register file sized by
// the unit's RegisterCount; r0 receives the value of the unit.
package vm
