// Command schema writes the JSON Schema for the subscriber wire protocol,
// consumed by client codegen.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"sightline/server/internal/proto"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}

	keyframe := reflector.Reflect(new(proto.KeyframeMessage))
	keyframe.Title = "Keyframe Frame"
	keyframe.Description = "Full entity snapshot sent when a subscriber attaches."

	batch := reflector.Reflect(new(proto.BatchMessage))
	batch.Title = "Batch Frame"
	batch.Description = "Per-tick visibility change records and lifecycle notices."

	root := &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Sightline Subscriber Protocol",
		Description: "Frames delivered over the /ws subscriber stream.",
		OneOf: []*jsonschema.Schema{
			keyframe,
			batch,
		},
	}
	return root
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
