// Package middleware contains HTTP middleware for the Fiber application.
//
// # Components
//
//   - auth: API key validation through the X-API-Key header or a bearer token.
//
// Request ids come from Fiber's requestid middleware, configured by the serve
// command to store the id under logger.RequestIDKey so handlers can log with
// logger.WithRequestID.
package middleware
