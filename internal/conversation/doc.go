// Package conversation holds the local projection of a conversation: the
// message log, the turn model mutated while a response streams in, and the
// reconciler that commits finished turns. It also provides the HTTP client
// for the conversation list and character lookup services.
package conversation
