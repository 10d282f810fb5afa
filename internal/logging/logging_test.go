package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONCarriesDeploymentAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{
		Service:     "peerpay-api",
		Level:       "info",
		Env:         "production",
		StoreDriver: "redis",
		Currency:    "PHP",
		Output:      &buf,
	})

	logger.Info("transfer completed", "amount", 25000)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "peerpay-api", rec["service"])
	assert.Equal(t, "redis", rec["store_driver"])
	assert.Equal(t, "PHP", rec["currency"])
	assert.Equal(t, float64(25000), rec["amount"])
	assert.True(t, strings.HasSuffix(rec["time"].(string), "Z"))
}

func TestNew_DevelopmentIsText(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Service: "svc", Env: "development", Output: &buf}).Info("hello")

	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "service=svc")
	assert.NotContains(t, buf.String(), "store_driver")
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: " WARN ", Output: &buf})

	logger.Info("dropped")
	assert.Empty(t, buf.String())
	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	l := New(Options{Service: "svc", Output: &bytes.Buffer{}})
	assert.Same(t, l, FromContext(WithLogger(context.Background(), l)))
}
