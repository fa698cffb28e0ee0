// Package dedupe remembers the outcome of idempotent submissions for a
// bounded time so a client resubmitting with the same key gets the original
// result instead of a second write.
package dedupe
