package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgent(t *testing.T) {
	defer func() { Version = EmptyValue }()

	assert.Equal(t, "SSH-2.0-sftpsync", UserAgent())

	Version = "1.2.0"
	assert.Equal(t, "SSH-2.0-sftpsync_1.2.0", UserAgent())
}
