// Package render turns a script plus token parameters into an image,
// a thumbnail, and JSON metadata.
//
// The Coordinator owns the single shared Resource (a headless browser in
// production). It serializes every execution behind an exclusive guard,
// decodes the document's completion signal, and fans the result out to the
// artifact files, the metadata store, and the in-process cache.
//
// # Completion protocol
//
// A rendered document calls complete(metadata, image, thumbnail); the
// Resource hands the slots back as a Completion. Images are base64 strings
// (a data: URL prefix is accepted). A null image slot means "screenshot the
// #render element"; a null or missing thumbnail slot means "resize the image".
package render
