package llm

import "google.golang.org/genai"

// Gemini rejects several standard JSON Schema keywords, and requires every
// declared property to be listed as required.
var geminiUnsupportedKeywords = []string{
	"$schema", "format", "exclusiveMinimum", "exclusiveMaximum",
	"minimum", "maximum", "minLength", "maxLength", "minItems", "maxItems",
	"uniqueItems", "pattern", "default", "examples", "const",
	"additionalProperties", "title",
}

// normalizeSchemaForGemini strips unsupported keywords from a tool schema.
// The input is not modified.
func normalizeSchemaForGemini(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	return normalizeGeminiNode(copySchemaMap(schema))
}

func copySchemaMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[k] = copySchemaValue(v)
	}
	return result
}

func copySchemaValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copySchemaMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copySchemaValue(item)
		}
		return out
	default:
		return v
	}
}

func normalizeGeminiNode(schema map[string]interface{}) map[string]interface{} {
	for _, keyword := range geminiUnsupportedKeywords {
		delete(schema, keyword)
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok && len(props) > 0 {
		required := make([]string, 0, len(props))
		for key, val := range props {
			if propSchema, ok := val.(map[string]interface{}); ok {
				props[key] = normalizeGeminiNode(propSchema)
			}
			required = append(required, key)
		}
		schema["required"] = required
	}

	if items, ok := schema["items"].(map[string]interface{}); ok {
		schema["items"] = normalizeGeminiNode(items)
	}

	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		if arr, ok := schema[key].([]interface{}); ok {
			for i, item := range arr {
				if itemSchema, ok := item.(map[string]interface{}); ok {
					arr[i] = normalizeGeminiNode(itemSchema)
				}
			}
		}
	}

	return schema
}

// schemaToGenai converts a JSON Schema map to the genai typed schema.
func schemaToGenai(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}

	out := &genai.Schema{
		Type:     genaiType(schema),
		Required: schemaRequired(schema),
	}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]interface{}); ok {
				out.Properties[name] = schemaToGenai(propMap)
			}
		}
	}

	if items, ok := schema["items"].(map[string]interface{}); ok {
		out.Items = schemaToGenai(items)
	}

	return out
}

func genaiType(schema map[string]interface{}) genai.Type {
	t, _ := schema["type"].(string)
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	}
	return genai.TypeString
}
