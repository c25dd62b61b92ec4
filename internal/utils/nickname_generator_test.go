package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateNickname(t *testing.T) {
	name, err := GenerateNickname()
	require.NoError(t, err)
	require.Regexp(t, `^[A-Za-z]+_[A-Za-z]+_\d{4}$`, name)
}

func TestUsernameBase(t *testing.T) {
	require.Equal(t, "jane_doe", UsernameBase("Jane Doe"))
	require.Equal(t, "jose_garcia", UsernameBase("José García"))
	require.Equal(t, "j_smith", UsernameBase("", "J.Smith@example.com"))
	require.Equal(t, "", UsernameBase("", "!!!"))

	long := UsernameBase(strings.Repeat("a", 60))
	require.Len(t, long, 40)
}

func TestWithSuffix(t *testing.T) {
	name, err := WithSuffix("jane_doe")
	require.NoError(t, err)
	require.Regexp(t, `^jane_doe_\d{4}$`, name)
}
