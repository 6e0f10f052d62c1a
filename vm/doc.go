// Package vm implements the clearwing-vm CORE runtime.
//
// This package contains:
//   - the object header and class descriptor model
//   - the class registry (assignability sets, interface dispatch cache)
//   - per-thread contexts and the stack-frame registry
//   - the heap allocator and tracing mark-and-sweep collector
//   - the safepoint / stop-the-world coordinator
//   - the re-entrant object monitor
//   - frame-scoped exception propagation
//   - the weak-reference table and the eternal string-literal pool
//
// Source-to-native codegen, the class library, the FFI bridge, platform
// I/O, and the command-line driver are collaborators that sit outside
// this package.
package vm
