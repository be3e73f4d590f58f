// Package logging provides structured, context-aware logging for docchatd.
//
// It wraps zap with methods that automatically attach correlation fields
// (request ID, tenant ID, document ID, trace/span IDs) carried in the
// request context, so handlers and coordinators never thread those fields
// by hand.
package logging
