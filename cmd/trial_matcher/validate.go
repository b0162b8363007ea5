package main

import (
	"fmt"
	"os"

	"github.com/jonathan/trial-matcher/internal/schemas"
	rootschemas "github.com/jonathan/trial-matcher/schemas"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a JSON file against a schema",
	Long: `Validate a JSON document against a JSON Schema. --schema accepts a path or one of the
built-in names "patient" and "criteria".`,
	RunE: runValidate,
}

var (
	validateSchema string
	validateJSON   string
)

// builtinSchemas maps short names onto the files under schemas/
var builtinSchemas = map[string]string{
	"patient":  rootschemas.PatientProfileFile,
	"criteria": rootschemas.EligibilitySpecFile,
}

func init() {
	validateCmd.Flags().StringVar(&validateSchema, "schema", "", "Schema path or built-in name (patient, criteria)")
	validateCmd.Flags().StringVar(&validateJSON, "json", "", "Path to JSON file to validate")

	if err := validateCmd.MarkFlagRequired("schema"); err != nil {
		panic(fmt.Sprintf("failed to mark schema flag as required: %v", err))
	}
	if err := validateCmd.MarkFlagRequired("json"); err != nil {
		panic(fmt.Sprintf("failed to mark json flag as required: %v", err))
	}

	rootCmd.AddCommand(validateCmd)
}

func runValidate(_ *cobra.Command, _ []string) error {
	if err := validateFile(validateSchema, validateJSON); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Validation passed: %s\n", validateJSON)
	return nil
}

func validateFile(schema, jsonPath string) error {
	if name, ok := builtinSchemas[schema]; ok {
		document, err := os.ReadFile(jsonPath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", jsonPath, err)
		}
		return schemas.ValidateEmbedded(name, document)
	}

	schemaPath := schemas.ResolveSchemaPath(schema)
	if schemaPath == "" {
		return fmt.Errorf("schema file not found: %s", schema)
	}
	return schemas.ValidateJSON(schemaPath, jsonPath)
}
