// Package recovery implements password recovery through a short one-time code.
//
// A user asks for a code by email. The code is hashed like a password, stored
// with an expiry (at most one per user) and sent through a notify.Sender.
// Presenting the code with a new password replaces the credential and deletes
// the code. Wrong and expired codes are indistinguishable to the caller.
package recovery
