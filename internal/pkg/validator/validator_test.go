package validator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"battle-tracker/internal/pkg/xerrors"
)

type sample struct {
	ID    string   `validate:"battle_id"`
	Lines []string `validate:"required,min=1,dive,log_line"`
	Time  float64  `validate:"gt=0"`
}

func TestValidate(t *testing.T) {
	v := New()

	ok := sample{ID: "0123456789abcdef0123456789abcdef", Lines: []string{"a"}, Time: 1}
	require.NoError(t, v.Validate(&ok))

	bad := ok
	bad.Lines = []string{"a\nb"}
	err := v.Validate(&bad)
	require.Error(t, err)
	require.True(t, xerrors.HasCode(err, xerrors.CodeInvalidParams))

	bad = ok
	bad.ID = "not-an-id"
	require.Error(t, v.Validate(&bad))

	bad = ok
	bad.Time = 0
	require.Error(t, v.Validate(&bad))
}
