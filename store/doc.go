// Package store defines the persistence contracts the engine consumes: the
// message store used for retry and resend lookups, the chat and contact
// stores mutated by notifications, and the credentials store holding the
// local identity, registration and pre-key material.
//
// Two implementations ship with the package: an in-memory store for tests
// and short-lived sessions, and a SQLite-backed message store for durable
// message history. Deployments are free to implement the interfaces against
// any other backend.
package store
