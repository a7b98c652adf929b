// Package handlers provides HTTP request handlers for the ingest API.
//
// It includes handlers for:
//   - Multipart uploads into a configured field
//   - Field listings and accept attributes for upload forms
//   - Stored upload lookup by name
//   - Health checks, version and application stats
package handlers
