package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
)

// stubRow feeds canned column values into scanRequest.
type stubRow struct {
	values []any
}

func (r stubRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = r.values[i].(string)
		case *int:
			*v = r.values[i].(int)
		case *bool:
			*v = r.values[i].(bool)
		case *time.Time:
			*v = r.values[i].(time.Time)
		}
	}
	return nil
}

func TestScanRequestLegacyColumnsWin(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		isLocked   bool
		isPlayed   bool
		statusName string
		want       domain.Status
	}{
		{"clean pending", false, false, "pending", domain.StatusPending},
		{"clean locked", true, false, "locked", domain.StatusLocked},
		{"clean played", false, true, "played", domain.StatusPlayed},
		{"flags win over stale status column", false, true, "pending", domain.StatusPlayed},
		{"locked flag wins over stale status column", true, false, "pending", domain.StatusLocked},
		{"rows written before the status column existed", false, false, "", domain.StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := stubRow{values: []any{
				"req-1", "Song", "Artist", 3, tt.isLocked, tt.isPlayed, tt.statusName, now,
			}}
			req, err := scanRequest(row)
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Status)
			assert.Equal(t, "req-1", req.ID)
			assert.Equal(t, 3, req.Votes)
			assert.NotNil(t, req.Requesters, "requesters always non-nil for JSON")
		})
	}
}
