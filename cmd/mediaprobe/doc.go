// Command mediaprobe inspects media files against the upload policy without
// storing anything.
//
// Usage:
//
//	mediaprobe <command> [arguments]
//
// Commands:
//
//	fields               List the configured upload fields.
//	policy               Print the effective policy as YAML.
//	probe <file>         Print the metadata extracted from a file.
//	check <field> <file> Validate a file for a field and print the
//	                     transcode plan it would get.
//
// check works on a scratch copy, so the input file is never renamed or
// deleted. It exits with status 2 when the file would be rejected.
//
// Environment:
//
//	POLICY_FILE  - YAML upload policy (default: built-in policy)
//	FFPROBE_PATH - ffprobe executable (default: ffprobe)
package main
