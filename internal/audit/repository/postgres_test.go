package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcendence/backend/internal/audit/domain"
)

func TestPostgresRepository_Create(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	uid := int64(7)
	meta := "device=abc"

	tests := []struct {
		name     string
		in       domain.AuditLog
		wantUID  *int64
		wantMeta *string
	}{
		{"with user and metadata", domain.AuditLog{ID: "a1", UserID: 7, Action: "login_success", Resource: "session", IP: "10.0.0.1", Metadata: meta, CreatedAt: now}, &uid, &meta},
		{"anonymous", domain.AuditLog{ID: "a2", Action: "login_failure", Resource: "session", IP: "10.0.0.1", CreatedAt: now}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(`INSERT INTO audit_logs`).
				WithArgs(tt.in.ID, tt.wantUID, tt.in.Action, tt.in.Resource, tt.in.IP, tt.wantMeta, now).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))

			repo := NewPostgresRepository(mock)
			require.NoError(t, repo.Create(context.Background(), &tt.in))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepository_CreateError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnError(errors.New("connection reset"))

	repo := NewPostgresRepository(mock)
	err = repo.Create(context.Background(), &domain.AuditLog{ID: "a1", Action: "logout", Resource: "session", IP: "unknown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	uid := int64(3)
	meta := "ids=4,5"
	mock.ExpectQuery(`SELECT id, user_id, action, resource, ip, metadata, created_at\s+FROM audit_logs`).
		WithArgs(int64(3), int32(50)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "action", "resource", "ip", "metadata", "created_at"}).
			AddRow("b", &uid, "sessions_revoked", "session", "1.2.3.4", &meta, now).
			AddRow("a", &uid, "login_success", "session", "1.2.3.4", (*string)(nil), now.Add(-time.Hour)))

	repo := NewPostgresRepository(mock)
	got, err := repo.ListByUser(context.Background(), 3, 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sessions_revoked", got[0].Action)
	assert.Equal(t, int64(3), got[0].UserID)
	assert.Equal(t, "ids=4,5", got[0].Metadata)
	assert.Empty(t, got[1].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}
