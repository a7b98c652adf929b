// Package validation decides whether an extracted upload satisfies a field's
// constraint specification and produces the messages shown to uploaders.
package validation
