package metadata

import (
	"context"
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"media-ingest/internal/logging"
	"media-ingest/internal/mediatypes"
)

// genericContainers are sniffer verdicts too vague to trust for media files.
var genericContainers = map[string]bool{
	mediatypes.MIMEOctetStream: true,
	mediatypes.MIMEOggGeneric:  true,
	"audio/ogg":                true,
	"audio/webm":               true,
}

// Sniff returns the canonical MIME type of the file at path from its content.
// When the magic-byte verdict is a generic container and prober is not nil,
// a definite video verdict from the prober replaces it.
func Sniff(ctx context.Context, path string, prober Prober) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("sniff %s: %w", path, err)
	}
	verdict := mediatypes.CanonicalMIME(mt.String())
	if !genericContainers[verdict] || prober == nil {
		return verdict, nil
	}

	res, err := prober.Probe(ctx, path)
	if err != nil {
		logging.Debug("probe fallback failed for %s: %v", path, err)
		return verdict, nil
	}
	if m := containerMIME(res); m != "" {
		logging.Debug("%s reclassified from %s to %s", path, verdict, m)
		return m, nil
	}
	return verdict, nil
}
