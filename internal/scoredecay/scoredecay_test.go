package scoredecay

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comprl/server/internal/store"
)

func TestRunOnceIncrementsEverySigma(t *testing.T) {
	st, err := store.OpenTest(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	u1, err := st.CreateUser("active", "pw", store.RoleUser, "", "")
	require.NoError(t, err)
	u2, err := st.CreateUser("idle", "pw", store.RoleUser, "", "")
	require.NoError(t, err)

	require.NoError(t, st.UpdateMatchmakingParameters(u1.UserID, 30, 2))

	RunOnce(st, 0.5)

	_, sigma1, err := st.GetMatchmakingParameters(u1.UserID)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, sigma1, 1e-9)

	_, sigma2, err := st.GetMatchmakingParameters(u2.UserID)
	require.NoError(t, err)
	assert.InDelta(t, store.DefaultSigma+0.5, sigma2, 1e-9)
}
