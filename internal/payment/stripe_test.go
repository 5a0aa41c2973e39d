package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntentIDFromSecret(t *testing.T) {
	assert.Equal(t, "pi_3abc", intentIDFromSecret("pi_3abc_secret_xyz"))
	assert.Equal(t, "pi_3abc", intentIDFromSecret("pi_3abc"))
	assert.Equal(t, "", intentIDFromSecret(""))
}
