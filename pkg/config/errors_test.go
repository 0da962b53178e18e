package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadErrorError(t *testing.T) {
	err := &LoadError{File: "govcore.yaml", Err: errors.New("file not found")}
	assert.Contains(t, err.Error(), "govcore.yaml")
	assert.Contains(t, err.Error(), "file not found")
}

func TestLoadErrorUnwrap(t *testing.T) {
	baseErr := errors.New("base error")
	loadErr := &LoadError{File: "test.yaml", Err: baseErr}

	assert.Equal(t, baseErr, loadErr.Unwrap())
	assert.True(t, errors.Is(loadErr, baseErr))
}
