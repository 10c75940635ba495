package config

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// unmarshalYAML decodes data onto an existing *Config, overriding only
// the fields present in the document and leaving every other field at
// whatever Default() already set — the donor's "defaults, then struct
// literal override" pattern, generalized to accept caller-supplied bytes
// instead of reading a file itself.
func unmarshalYAML(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return fmt.Errorf("failed to parse config: expected single document")
	}
	return nil
}
