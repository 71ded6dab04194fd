// Package handler provides decorators that wrap the rest of a core.Chain:
// they do their own work and delegate to their continuation. Register them
// after a canonical store from the session packages so they run first.
//
//	m := sessionmesh.New()
//	_ = m.AddHandler(
//	    session.NewFileStore(),
//	    handler.NewEncryptingHandler(cipher),
//	    handler.NewLoggingHandler(logger),
//	)
//
// Embed Passthrough to implement only the operations a decorator cares
// about.
package handler
