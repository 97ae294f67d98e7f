// Package auth implements OxiDB's per-connection authentication state:
// a SCRAM-SHA-256 handshake (scram.go), a persisted user credential
// store (users.go), and the RBAC permission matrix session commands are
// checked against (rbac.go, session.go).
package auth
