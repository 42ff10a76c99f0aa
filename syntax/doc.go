// Package syntax provides string types for the identifier formats used in
// repository storage: TID, DID, NSID, and record keys.
//
// Each type has a Parse constructor which validates syntax; the types
// themselves are plain strings and can be serialized directly.
package syntax
