// Package transfer implements the chunked copy pipeline: range planning,
// a bounded worker pool, index-ordered checksum accumulation, and the
// optional compression path.
//
// Workers copy chunks concurrently, but every byte is accounted for in
// chunk-index order, so the destination content and the accumulated digest
// are deterministic regardless of which worker finishes first.
package transfer
