package data

const (
	// maximum size of any CBOR data handled by this package
	MAX_CBOR_SIZE = 5 * 1024 * 1024
	// maximum serialized size of an individual record, in CBOR format
	MAX_CBOR_RECORD_SIZE = 1 * 1024 * 1024
	// maximum size of any individual string inside a record
	MAX_RECORD_STRING_LEN = MAX_CBOR_RECORD_SIZE
	// maximum size of any individual byte array inside a record
	MAX_RECORD_BYTES_LEN = MAX_CBOR_RECORD_SIZE
	// maximum number of elements in an object or array
	MAX_CBOR_CONTAINER_LEN = 128 * 1024
	// maximum length of an object key (UTF-8 bytes)
	MAX_OBJECT_KEY_LEN = 8192
	// largest integer which survives a round-trip through float64
	MAX_SAFE_INTEGER = 9007199254740991
	// most negative integer which survives a round-trip through float64
	MIN_SAFE_INTEGER = -9007199254740991
)
