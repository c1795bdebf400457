package app

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"

	"invoice-reconciler/internal/core"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// ResultSchema returns the JSON Schema of core.ReconciliationResult as emitted by the
// reconcile endpoints. Decimals are encoded as strings.
func ResultSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == decimalType {
				return &jsonschema.Schema{
					Type:    "string",
					Pattern: `^-?[0-9]+(\.[0-9]+)?$`,
				}
			}
			return nil
		},
	}
	schema := reflector.Reflect(&core.ReconciliationResult{})
	return json.MarshalIndent(schema, "", "  ")
}
