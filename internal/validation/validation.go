package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ValidationError represents a structured validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects multiple field errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// Err returns ve as an error, or nil when nothing was collected.
func (ve *ValidationErrors) Err() error {
	if !ve.HasErrors() {
		return nil
	}
	return ve
}

// RequireField checks a required string field is non-empty.
func RequireField(ve *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
	}
}

// ValidateIntRange checks a field is within a specified range.
func ValidateIntRange(ve *ValidationErrors, field string, value, min, max int) {
	if value < min || value > max {
		ve.Add(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
}

// Limits shared by the entry forms.
const (
	MaxQuantity     = 100000
	MaxStringLength = 200
	MaxFrameSize    = 20 * 1024 * 1024
)

// ValidateMaxLength checks string doesn't exceed max characters.
func ValidateMaxLength(ve *ValidationErrors, field, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		ve.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// ValidateItemCode rejects codes that cannot name a label file.
func ValidateItemCode(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if strings.ContainsAny(value, `/\`) || value == "." || value == ".." {
		ve.Add(field, "must not contain path separators or be '.' or '..'")
	}
	if strings.ContainsAny(value, "\x00\r\n\t") {
		ve.Add(field, "contains control characters")
	}
}

// ImageExtensions are the frame formats the scanner can decode.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

// IsImageFile reports whether name has a decodable image extension.
func IsImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ValidateFrameUpload validates an uploaded camera frame.
func ValidateFrameUpload(ve *ValidationErrors, filename string, size int64) {
	if size == 0 {
		ve.Add("frame", "cannot be empty (0 bytes)")
		return
	}
	if size > MaxFrameSize {
		ve.Add("frame", fmt.Sprintf("exceeds maximum size of %d MB", MaxFrameSize/(1024*1024)))
		return
	}
	if filename != "" && !IsImageFile(filename) {
		ve.Add("frame", fmt.Sprintf("file type not allowed (allowed: %s)", strings.Join(ImageExtensions, ", ")))
	}
}
