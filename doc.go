// Package content implements the core of a content platform backend:
// JWT issuance and verification for access, refresh, and
// purpose-scoped tokens, a static role/permission model, the request guard
// pipeline that resolves an authenticated identity, and the single error
// classification boundary that maps every failure to the stable wire
// contract.
//
// Route handlers, persistence repositories, and the HTTP runtime consume
// these primitives; see cmd/server for process wiring.
package content
