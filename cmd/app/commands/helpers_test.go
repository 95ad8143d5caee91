package commands

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIO(t *testing.T) {
	io := DefaultIO()
	require.Equal(t, os.Stdin, io.Reader)
	require.Equal(t, os.Stdout, io.Writer)
}

func TestParseDate(t *testing.T) {
	t.Run("date-only", func(t *testing.T) {
		parsed, err := parseDate("2026-03-15")
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), parsed)
	})

	t.Run("datetime", func(t *testing.T) {
		parsed, err := parseDate("2026-03-15 13:45:00")
		require.NoError(t, err)
		require.Equal(t, 13, parsed.Hour())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := parseDate("15/03/2026")
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid date format")
	})
}

func TestParseDateRange(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		start, end, err := parseDateRange("2026-01-01", "2026-02-01")
		require.NoError(t, err)
		require.True(t, end.After(start))
	})

	t.Run("inverted", func(t *testing.T) {
		_, _, err := parseDateRange("2026-02-01", "2026-01-01")
		require.Error(t, err)
		require.Contains(t, err.Error(), "end date must be after start date")
	})
}
