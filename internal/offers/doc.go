// Package offers is the offer directory: filtered, cursor-paginated listing
// plus the owner-side create and edit operations.
//
// Listing order is newest first (created_at, then id, descending). The cursor
// returned with a page encodes the last offer of that page in this order, so
// the two must change together. Callers must keep the same Filter while
// following cursors; a fresh search starts without one.
package offers
