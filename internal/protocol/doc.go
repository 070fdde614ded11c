// Package protocol owns the liquid-handling Protocol Document.
//
// Ownership boundary:
//   - document value types and their JSON contract with the kiosk UI
//   - initial / wizard-seeded constructors
//   - read-time reference validation
//
// Documents are values. Nothing in this package mutates a Document in place;
// transitions live in package state.
package protocol
