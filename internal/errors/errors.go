package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
	Err        error
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

func (e ConfigError) Unwrap() error {
	return e.Err
}

// BackendError enhances backend-specific errors (secret stores, object store,
// warehouse) with a suggestion for the user
func BackendError(backend string, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s error during %s", backend, operation),
		Suggestion: getBackendSuggestion(backend, err),
		Details:    err.Error(),
		Err:        err,
	}
}

func getBackendSuggestion(backend string, err error) string {
	errStr := err.Error()

	switch backend {
	case "aws", "aws.secretsmanager", "aws.ssm", "s3":
		if strings.Contains(errStr, "AccessDenied") {
			return "Check IAM permissions for the secret, parameter or bucket"
		}
		if strings.Contains(errStr, "ResourceNotFoundException") || strings.Contains(errStr, "NoSuchKey") ||
			strings.Contains(errStr, "ParameterNotFound") {
			return "Verify the name and region. Register blocks with 'dsload register'"
		}
		if strings.Contains(errStr, "credentials") {
			return "Register AWS credentials with 'dsload register aws-credentials' or set AWS_PROFILE"
		}

	case "gcp", "gcp.secretmanager":
		if strings.Contains(errStr, "PermissionDenied") {
			return "Grant roles/secretmanager.secretAccessor to the service account"
		}
		if strings.Contains(errStr, "could not find default credentials") {
			return "Run 'gcloud auth application-default login' or set GOOGLE_APPLICATION_CREDENTIALS"
		}

	case "azure", "azure.keyvault":
		if strings.Contains(errStr, "Forbidden") {
			return "Check Key Vault access policies for the identity in use"
		}
		if strings.Contains(errStr, "DefaultAzureCredential") {
			return "Run 'az login' or configure a managed identity"
		}

	case "keyring":
		if strings.Contains(errStr, "secret not found") {
			return "Register the secret with 'dsload register secrets'"
		}
		return "Make sure an OS keyring (Keychain, Secret Service) is available"

	case "warehouse":
		if strings.Contains(errStr, "password authentication failed") || strings.Contains(errStr, "Access denied") {
			return "Verify the warehouse user and password secrets"
		}
		if strings.Contains(errStr, "does not exist") {
			return "Check the database and schema names"
		}
	}

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "The operation timed out. Check your network connection or increase timeout_ms"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and endpoint configuration"
	}

	return ""
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	var userErr UserError
	if errors.As(err, &userErr) {
		return err
	}
	var cfgErr ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}

	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}
	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	return err
}
