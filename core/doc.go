// Package core provides the handler chain that lets independent session
// backends cooperate behind one session store contract. It defines:
//
//   - Handler, the five-operation contract (create, read, write, delete,
//     clean) every backend implements
//   - typed continuations (CreateNext, ReadNext, ...) that hand the rest of
//     the chain to a handler
//   - Chain, five parallel LIFO sequences grown and drained in lockstep
//   - Terminal, the always-present base case returning neutral results
//
// The most recently pushed handler runs first and receives a continuation
// bound to whatever was on top when it was pushed, down to Terminal.
// Concrete storage lives in the session packages and decorators in the
// handler package; the locking facade lives in the root package.
package core
