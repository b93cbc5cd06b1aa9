package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/localsonly/localsbot/internal/i18n"
	"github.com/localsonly/localsbot/internal/schema"
)

// systemInstruction frames every extraction call. The format parameter is the
// community display name.
const systemInstruction = "You are a helpful assistant that extracts structured information from text. " +
	"The text is a message from a Telegram user who is part of the '%s' community. " +
	"Keep that in mind when extracting information."

// buildPrompt constructs the extraction request for the AI-extracted fields
// of a kind. It asks the service to reuse an existing category verbatim on an
// exact or near match, to answer with every requested field plus a 0-100
// confidence score, and to use null for anything not present in the text.
func buildPrompt(req Request, fields []schema.Field, kindDescription string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("kind %s has no extracted fields", req.Kind)
	}

	names := make([]string, 0, len(fields))
	contracts := make(map[string]string, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
		contracts[f.Name] = fmt.Sprintf("%s; %s. Type: %s", f.Description, f.Example, f.Type)
	}

	contractsJSON, err := json.MarshalIndent(contracts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode field contracts: %w", err)
	}

	categories := "[]"
	if len(req.Categories) > 0 {
		encoded, err := json.Marshal(req.Categories)
		if err != nil {
			return "", fmt.Errorf("failed to encode categories: %w", err)
		}
		categories = string(encoded)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Extract the following information from the given text for %s:\n", kindDescription)
	sb.WriteString(strings.Join(names, ", "))
	sb.WriteString("\n\n")
	sb.WriteString("Only extract information that is explicitly stated in the text. Do not make assumptions or generate content that isn't present. If a field cannot be filled with information from the text, use null.\n\n")
	sb.WriteString("Respect the following descriptions, examples, and data types for each field:\n")
	sb.Write(contractsJSON)
	sb.WriteString("\n\n")
	sb.WriteString(`Important: For date fields, use the ISO format "YYYY-MM-DDTHH:MM:SS".` + "\n\n")
	fmt.Fprintf(&sb, "Categories to take into account: %s. ", categories)
	sb.WriteString("If any of the categories match the text exactly - use it. But if you're not certain or if it's only partially related - come up with a new category.\n")
	sb.WriteString("Example: Categories: ['Clothes'], and text about gopro with accessories like handle, batteries, etc - you should come up with a new category 'Electronics'.\n")
	sb.WriteString("Example: Categories: ['Electronics'], and text about a new iPhone 15 - you should use existing category 'Electronics'.\n\n")
	fmt.Fprintf(&sb, "The current date is %s.\n", time.Now().Format("2006-01-02T15:04:05"))
	sb.WriteString("Also, provide a confidence score (0-100) indicating how well the extracted information matches the given text. Lower the score if many fields are null.\n\n")
	fmt.Fprintf(&sb, "Text: %s\n\n", req.Text)
	sb.WriteString("Response format:\n")
	sb.WriteString("{\n")
	sb.WriteString("    \"extracted_info\": {\n")
	sb.WriteString("        \"field1\": value1,\n")
	sb.WriteString("        \"field2\": null\n")
	sb.WriteString("    },\n")
	sb.WriteString("    \"confidence_score\": 85\n")
	sb.WriteString("}\n\n")
	sb.WriteString("Respond only with the JSON, no additional text. Use null for any field that cannot be determined from the given text.\n\n")
	fmt.Fprintf(&sb, "Note: The extracted values MUST be in %s.\n", i18n.DisplayName(req.Language))

	return sb.String(), nil
}
