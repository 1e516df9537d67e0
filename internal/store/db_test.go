package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteDSN(t *testing.T) {
	cases := []struct{ in, want string }{
		{
			in:   "roundhouse.db",
			want: "roundhouse.db?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on",
		},
		{
			in:   "file:test.db?cache=shared",
			want: "file:test.db?cache=shared&_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on",
		},
		{
			in:   "x.db?_busy_timeout=100&_journal_mode=DELETE",
			want: "x.db?_busy_timeout=100&_journal_mode=DELETE&_txlock=immediate&_foreign_keys=on",
		},
		{
			in:   "y.db?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on",
			want: "y.db?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on",
		},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, sqliteDSN(tc.in), tc.in)
	}
}
