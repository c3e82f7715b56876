package config

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_ErrorFormats(t *testing.T) {
	e := &ValidationError{Message: "oops", Locations: []Location{{File: "a.yaml"}, {File: "b.yaml"}}}
	s := e.Error()
	assert.Contains(t, s, "oops")
	assert.Contains(t, s, "--> a.yaml")
	assert.Contains(t, s, "--> b.yaml")

	assert.Equal(t, "plain", (&ValidationError{Message: "plain"}).Error())
}

func TestWithLocation(t *testing.T) {
	wrapped := withLocation(fmt.Errorf("decode: %w", &ValidationError{Message: "bad"}), "inboxhub.yaml")
	var ve *ValidationError
	assert.True(t, errors.As(wrapped, &ve))
	assert.Equal(t, []Location{{File: "inboxhub.yaml"}}, ve.Locations)

	other := errors.New("io")
	assert.Same(t, other, withLocation(other, "inboxhub.yaml"))
}
