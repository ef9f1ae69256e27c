package poster

import "github.com/invopop/jsonschema"

// GenerateSchema reflects a JSON schema suitable for strict structured output.
func GenerateSchema[T any]() any {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var analysisSchema = GenerateSchema[VisualAnalysis]()

// AnalysisSchema is the schema of the model's analysis reply.
func AnalysisSchema() any { return analysisSchema }
