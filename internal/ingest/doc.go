// Package ingest runs an upload through the whole pipeline: receive into
// TEMP_DIR, extract metadata, validate against the field's constraints,
// move into the field's collection, plan and transcode, pick a unique name,
// register the upload and publish its artifacts.
//
// A failure after validation removes everything produced for the upload
// (stored files, the registry record and published objects) before the error
// is returned. Rejections carry the user-facing message from mediaerr; every
// other error maps to mediaerr.MsgProcessingFailed.
package ingest
