package config

import (
	"errors"
	"strings"
)

// Location represents a configuration location
type Location struct {
	File string
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message   string
	Locations []Location
}

func (e *ValidationError) Error() string {
	if len(e.Locations) == 0 {
		return e.Message
	}
	var sb strings.Builder
	sb.WriteString(e.Message)
	sb.WriteString("\n\n")
	for _, loc := range e.Locations {
		sb.WriteString("--> ")
		sb.WriteString(loc.File)
		sb.WriteString("\n")
	}
	return sb.String()
}

// withLocation attaches the config file to a validation error
func withLocation(err error, file string) error {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		validationErr.Locations = append(validationErr.Locations, Location{File: file})
		return validationErr
	}
	return err
}
