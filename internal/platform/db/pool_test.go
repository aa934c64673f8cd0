package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSlowQueryTracer(t *testing.T) {
	base := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		elapsed time.Duration
		err     error
		logged  bool
	}{
		{"fast", 10 * time.Millisecond, nil, false},
		{"at threshold", 200 * time.Millisecond, nil, true},
		{"slow failure", time.Second, errors.New("canceling statement"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			clock := base
			tr := &slowQueryTracer{
				logger:    zerolog.New(&buf),
				threshold: 200 * time.Millisecond,
				now:       func() time.Time { return clock },
			}

			ctx := tr.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT * FROM queue_entries"})
			clock = clock.Add(tt.elapsed)
			tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("SELECT 3"), Err: tt.err})

			if !tt.logged {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), `"message":"slow query"`)
			assert.Contains(t, buf.String(), "queue_entries")
			if tt.err != nil {
				assert.Contains(t, buf.String(), "canceling statement")
			}
		})
	}
}

func TestSlowQueryTracer_NoStart(t *testing.T) {
	var buf bytes.Buffer
	tr := &slowQueryTracer{logger: zerolog.New(&buf), now: time.Now}
	tr.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})
	assert.Empty(t, buf.String())
}
