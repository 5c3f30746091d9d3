package main

import (
	"testing"

	"choreo/cmd"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	assert.Equal(t, "dev", version)

	cmd.SetVersion(version)
	assert.Equal(t, "dev", cmd.GetVersion())
}
