package projects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByPID(t *testing.T) {
	p, ok := ByPID("4hXj_E-5fAKmo4E8KjgQvuDJKAFk9P2grhycVmISDLs")
	require.True(t, ok)
	assert.Equal(t, "PI", p.Name)
	assert.Equal(t, 12, p.Denomination)

	_, ok = ByPID("not-a-project")
	assert.False(t, ok)
}

func TestIsFLPProject(t *testing.T) {
	assert.True(t, IsFLPProject("rW7h9J9jE2Xp36y4SKn2HgZaOuzRmbMfBRPwrFFifHE"))
	assert.False(t, IsFLPProject("6ZralDzYGiGLyFs9v-bfWtTsQEb8EEGTA2jIdVru2XU"))
	assert.False(t, IsFLPProject(""))
}

// The implicit-delegation sentinel must stay inside the registry so default
// preferences survive the FLP gate.
func TestInternalPIPIDIsTheRegisteredPIProject(t *testing.T) {
	p, ok := ByPID(InternalPIPID)
	require.True(t, ok)
	assert.Equal(t, "PI", p.Name)
}

func TestRegistryPIDsAreUnique(t *testing.T) {
	seen := make(map[string]string, len(All))
	for _, p := range All {
		if prev, dup := seen[p.PID]; dup {
			t.Fatalf("pid %s shared by %s and %s", p.PID, prev, p.Name)
		}
		seen[p.PID] = p.Name
	}
}

func TestOraclePID(t *testing.T) {
	pid, ok := OraclePID("usds")
	require.True(t, ok)
	assert.Equal(t, USDSOraclePID, pid)

	_, ok = OraclePID("doge")
	assert.False(t, ok)
}

func TestStakingAddress(t *testing.T) {
	addr, ok := StakingAddress("steth")
	require.True(t, ok)
	assert.Equal(t, STETHStakingAddress, addr)

	_, ok = StakingAddress("usdc")
	assert.False(t, ok)
}
