package servicetask_test

import (
	"testing"
	"time"

	"servicetask/internal/servicetask"

	"github.com/stretchr/testify/require"
)

func TestSettingsClone(t *testing.T) {
	t.Parallel()
	orig := &servicetask.Settings{
		Name:          "alpha",
		Repeatable:    true,
		Delay:         time.Second,
		MaxExecutions: 7,
		RetryOnError:  true,
		ErrorDelay:    2 * time.Second,
	}

	cp := orig.Clone()
	require.Equal(t, orig, cp)
	require.NotSame(t, orig, cp)

	cp.Name = "beta"
	cp.Delay = time.Hour
	cp.MaxExecutions = 1
	require.Equal(t, "alpha", orig.Name)
	require.Equal(t, time.Second, orig.Delay)
	require.Equal(t, int64(7), orig.MaxExecutions)

	var nilSettings *servicetask.Settings
	require.Nil(t, nilSettings.Clone())
}

func TestExecutorHoldsPrivateSettings(t *testing.T) {
	t.Parallel()
	given := &servicetask.Settings{Name: "alpha", Repeatable: true, Delay: time.Minute}
	e, err := servicetask.New(given, nopWorker())
	require.NoError(t, err)

	given.Name = "mutated"
	given.Delay = 0
	require.Equal(t, "alpha", e.Name())
	require.Equal(t, time.Minute, e.Settings().Delay)

	got := e.Settings()
	got.Name = "also mutated"
	require.Equal(t, "alpha", e.Settings().Name)
}

func TestSettingsValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scenario string
		given    *servicetask.Settings
		ok       bool
	}{
		{"zero", &servicetask.Settings{}, true},
		{"full", &servicetask.Settings{Delay: time.Second, ErrorDelay: time.Second}, true},
		{"negative_delay", &servicetask.Settings{Delay: -time.Second}, false},
		{"negative_error_delay", &servicetask.Settings{ErrorDelay: -1}, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			err := tc.given.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, servicetask.ErrInvalidArgument)
		})
	}
}
