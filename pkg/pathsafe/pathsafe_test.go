package pathsafe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContains(t *testing.T) {
	assert.True(t, Contains("/etc", "/etc"))
	assert.True(t, Contains("/etc", "/etc/hosts"))
	assert.True(t, Contains("/etc", "/etc/ssl/certs"))
	assert.False(t, Contains("/etc", "/etc2"))
	assert.False(t, Contains("/etc", "/etc2/hosts"))
	assert.False(t, Contains("/etc", "/var/etc"))
	assert.False(t, Contains("/etc/ssl", "/etc"))
}

func TestContainsNormalizes(t *testing.T) {
	assert.True(t, Contains("/work", "/work/a/../b"))
	assert.False(t, Contains("/work", "/work/../outside"))
}

func TestHasTraversal(t *testing.T) {
	assert.True(t, HasTraversal("../secrets"))
	assert.True(t, HasTraversal("a/../../b"))
	assert.False(t, HasTraversal("a/b/c"))
	assert.False(t, HasTraversal("/abs/path"))
	assert.False(t, HasTraversal("..hidden"))
}
