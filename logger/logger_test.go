package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVs(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"user_id", "user-42",
		"admin_key", "hunter2",
		"collection", "course_content",
		"dangling",
	})

	assert.Len(t, out, 7)
	assert.Equal(t, "user_id", out[0])
	assert.NotEqual(t, "user-42", out[1])
	assert.Contains(t, out[1], "hash:")
	assert.Equal(t, "[REDACTED]", out[3])
	assert.Equal(t, "course_content", out[5])
	assert.Equal(t, "dangling", out[6])
}

func TestHashValue_Stable(t *testing.T) {
	assert.Equal(t, hashValue("abc"), hashValue("abc"))
	assert.Equal(t, "", hashValue(""))
}
