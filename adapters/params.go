package adapters

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ParamsValidator checks the bidder params declared on a placement.
type ParamsValidator interface {
	Validate(params json.RawMessage) error
	// Schema returns the JSON schema used to perform validation.
	Schema() string
}

type schemaValidator struct {
	contents string
	parsed   *gojsonschema.Schema
}

// NewSchemaValidator compiles a JSON schema into a ParamsValidator.
func NewSchemaValidator(schema string) (ParamsValidator, error) {
	parsed, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("Failed to load json schema: %v", err)
	}
	return &schemaValidator{
		contents: schema,
		parsed:   parsed,
	}, nil
}

// RequiredParams builds a validator which only checks that the named params are present.
func RequiredParams(names ...string) (ParamsValidator, error) {
	required, err := json.Marshal(names)
	if err != nil {
		return nil, err
	}
	return NewSchemaValidator(fmt.Sprintf(`{"$schema":"http://json-schema.org/draft-04/schema#","type":"object","required":%s}`, required))
}

func (v *schemaValidator) Validate(params json.RawMessage) error {
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage("{}")
	}
	result, err := v.parsed.Validate(gojsonschema.NewBytesLoader(params))
	if err != nil {
		return err
	}
	if !result.Valid() {
		errBuilder := bytes.NewBuffer(make([]byte, 0, 300))
		for i, err := range result.Errors() {
			if i > 0 {
				errBuilder.WriteString("; ")
			}
			errBuilder.WriteString(err.String())
		}
		return errors.New(errBuilder.String())
	}
	return nil
}

func (v *schemaValidator) Schema() string {
	return v.contents
}
