package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fuelstation/backoffice/internal/app"
	_ "github.com/fuelstation/backoffice/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
