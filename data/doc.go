/*
Package data implements the schema-less data model used for repository
records: maps, arrays, strings, bytes, integers, and CID links, with a
single canonical DAG-CBOR encoding per logical value.

Generic objects are represented as map[string]any, with the wrapper types
CIDLink, Bytes, and Blob standing in for the data model types that have
special serialization rules. Parsing (from JSON or CBOR) validates the
model's restrictions: integer-only numbers, string and container size
limits, and the required shape of $link, $bytes, and blob objects.

Serialization to CBOR goes through MarshalCBOR, which produces canonical
bytes (sorted map keys, minimal-length integers). There is no MarshalJSON;
the wrapper types cooperate with the standard library's encoding/json.
*/
package data
