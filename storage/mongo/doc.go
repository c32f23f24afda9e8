// Package mongo stores canonical articles in a MongoDB collection.
//
// Uniqueness is enforced by a partial unique index on uniqueID. Bulk inserts
// are unordered, and unique-key violations are reported as
// *storage.DuplicateKeyError.
package mongo
