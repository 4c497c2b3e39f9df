// Package store holds the two durable tiers behind the render cache.
//
// ArtifactStore persists image and thumbnail bytes as files named after the
// token hash. MetadataStore persists JSON metadata under "metadata_<tokenId>";
// Redis, SQLite, and in-memory implementations are provided. Neither tier
// caches, retries, or validates content beyond JSON well-formedness; all
// policy lives in the render and artifact packages.
package store
