package privilege

import (
	"os/user"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIdentityForCurrentUser(t *testing.T) {
	cur, err := user.Current()
	if err != nil {
		t.Skip("no current user available in this environment")
	}

	id, err := ResolveIdentity(cur.Username)
	require.NoError(t, err)
	assert.Equal(t, cur.Uid, strconv.FormatUint(uint64(id.UID), 10))
	assert.LessOrEqual(t, len(id.Groups), MaxSupplementaryGroups)
}

func TestResolveIdentityUnknownUser(t *testing.T) {
	_, err := ResolveIdentity("definitely-not-a-real-user-xyz")
	assert.Error(t, err)
}

func TestValidateCapabilityNamesRejectsUnknown(t *testing.T) {
	err := ValidateCapabilityNames([]string{"CAP_NOT_REAL"})
	require.Error(t, err)
	var target *UnknownCapability
	assert.ErrorAs(t, err, &target)
}

func TestValidateCapabilityNamesAcceptsKnown(t *testing.T) {
	err := ValidateCapabilityNames([]string{"CAP_NET_BIND_SERVICE", "CAP_SYS_NICE"})
	assert.NoError(t, err)
}

func TestResolveCapabilitiesRejectsUnknown(t *testing.T) {
	_, err := ResolveCapabilities([]string{"CAP_BOGUS"})
	assert.Error(t, err)
}
