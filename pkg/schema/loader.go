package schema

import (
	_ "embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed sweep.schema.json
var sweepSchema []byte

// Validate checks doc against the JSON schema stored at schemaPath.
func Validate(schemaPath string, doc any) ([]string, error) {
	return validate(gojsonschema.NewReferenceLoader("file://"+schemaPath), schemaPath, doc)
}

// ValidateSweep checks a decoded sweep configuration against the bundled schema.
func ValidateSweep(doc any) ([]string, error) {
	return validate(gojsonschema.NewBytesLoader(sweepSchema), "sweep.schema.json", doc)
}

func SweepSchema() []byte {
	out := make([]byte, len(sweepSchema))
	copy(out, sweepSchema)
	return out
}

func validate(schemaLoader gojsonschema.JSONLoader, name string, doc any) ([]string, error) {
	docLoader := gojsonschema.NewGoLoader(doc)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", name, err)
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}
