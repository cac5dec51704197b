package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/saga/internal/store"
)

// tamper runs a raw statement against the database behind the CLI's back.
func tamper(t *testing.T, path, query string) {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()
	_, err = st.DB().Exec(query)
	require.NoError(t, err)
}
