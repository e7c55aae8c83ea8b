package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/httpx"
	"github.com/nephi-asha/kishkumen/internal/infrastructure/logger"
)

func TestDeniedEntry(t *testing.T) {
	var buf bytes.Buffer
	al := NewLogger(logger.New(&buf, "info"))

	ctx := httpx.WithRequestID(context.Background(), "req-1")
	al.Denied(ctx, domain.Identity{UserID: 4, TenantID: 7, Username: "carol"}, "POST /api/expenses", "insufficient_privilege")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["log_type"])
	assert.Equal(t, "access_denied", entry["action"])
	assert.Equal(t, "insufficient_privilege", entry["detail"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.EqualValues(t, 7, entry["tenant_id"])
	assert.EqualValues(t, 4, entry["user_id"])
}
