package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"lsmview/pkg/compression"

	"github.com/goccy/go-yaml"
)

// Format is the serialization of a manifest dump.
type Format uint8

const (
	JSON Format = iota
	YAML
)

// FormatFromPath picks the dump format from the file extension. Unknown
// extensions are treated as JSON, which is what the manifest dumper emits.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return JSON
	}
}

// Load reads, decompresses, decodes and validates the dump at path.
// Compression is detected from a trailing .gz or .zst extension, the format
// from the extension before it.
func Load(path string) (*Data, error) {
	codec, inner := compression.FromPath(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest dump: %w", err)
	}
	defer f.Close()

	rc, err := compression.NewReader(f, codec)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s stream: %w", codec, err)
	}
	defer rc.Close()

	data, err := Decode(rc, FormatFromPath(inner))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	slog.Debug("manifest dump loaded",
		"path", path,
		"codec", codec.String(),
		"files", len(data.Files),
		"edits", len(data.Edits),
	)
	return data, nil
}

// Decode parses a dump from r and validates it.
func Decode(r io.Reader, format Format) (*Data, error) {
	var data Data

	switch format {
	case JSON:
		if err := json.NewDecoder(r).Decode(&data); err != nil {
			return nil, fmt.Errorf("failed to parse manifest dump: %w", err)
		}
	case YAML:
		if err := yaml.NewDecoder(r).Decode(&data); err != nil {
			return nil, fmt.Errorf("failed to parse manifest dump: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, format)
	}

	if err := data.Validate(); err != nil {
		return nil, err
	}
	return &data, nil
}

// Encode writes d to w in the given format.
func Encode(w io.Writer, d *Data, format Format) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	case YAML:
		return yaml.NewEncoder(w).Encode(d)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownFormat, format)
	}
}
