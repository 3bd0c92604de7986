// Package server holds the HTTP server configuration.
//
// The serve command builds a Fiber app from this Config: it listens on Port,
// rejects bodies above BodyLimit, and protects every route with ApiKey when one
// is set.
package server
