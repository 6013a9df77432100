// Package describecache persists AI descriptions keyed by image content hash
// and producer identity, so resumed or repeated runs skip model calls for
// unchanged inputs.
package describecache
