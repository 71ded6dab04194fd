// Package session houses the canonical storage backends that terminate a
// core.Chain: they service every request themselves and never call their
// continuation. Decorators that do delegate (logging, encryption, caching,
// metrics, tracing) live in the handler package.
//
// The in-process backends (InMemoryStore, FileStore) live here; backends
// with third-party drivers live in sub-packages (badger, s3, sqlstore) so
// that only the wiring layer decides which implementation to instantiate.
package session
