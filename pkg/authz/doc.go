// Package authz centralizes authorization: a declarative rule table
// (resource × action × role) plus the ownership predicates that narrow
// manager and tenant access to their own rows.
//
// Handlers never test roles directly. They ask the Checker twice: first
// the coarse role gate (Allows), then the ownership predicate for the
// specific entity (ManagesBuilding, CanViewPayment, CanViewDocument,
// ...). Every predicate reads the caller's id from auth.Identity.UserID
// and nowhere else.
package authz
