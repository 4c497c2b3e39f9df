// Package artifact answers queries for a token's image path, thumbnail
// path, and metadata, rendering on demand.
//
// Lookups walk three tiers from cheapest to most expensive:
//
//	in-process cache  tokenHash -> metadata
//	metadata store    metadata_<tokenId> -> metadata
//	artifact store    generated/<tokenHash>.png, generated/thumb_<tokenHash>.png
//
// A miss on the tier a query needs triggers a render through the
// render.Coordinator, which repopulates every tier. Concurrent misses for
// the same token hash share one render, whichever query caused them.
package artifact
