package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcendence/backend/internal/security"
	"transcendence/backend/internal/session/domain"
)

var sessionCols = []string{
	"id", "user_id", "token_hash", "device_id", "device_name", "ip_address",
	"created_at", "refreshed_at", "last_used_at", "last_authenticated_at",
}

func newHash(t *testing.T) security.SessionTokenHash {
	t.Helper()
	tok, err := security.GenerateSessionToken()
	require.NoError(t, err)
	return tok.Hash()
}

func TestPostgresRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	hash := newHash(t)
	in := &domain.Session{
		UserID: 5, TokenHash: hash, DeviceID: "dev-1", DeviceName: "firefox",
		CreatedAt: now, RefreshedAt: now, LastUsedAt: now, LastAuthenticatedAt: now,
	}
	name := "firefox"
	mock.ExpectQuery(`INSERT INTO sessions`).
		WithArgs(int64(5), hash[:], "dev-1", &name, (*string)(nil), now, now, now, now).
		WillReturnRows(pgxmock.NewRows(sessionCols).
			AddRow(int64(11), int64(5), hash[:], "dev-1", &name, (*string)(nil), now, now, now, now))

	repo := NewPostgresRepository(mock)
	got, err := repo.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.ID)
	assert.Equal(t, hash, got.TokenHash)
	assert.Equal(t, "firefox", got.DeviceName)
	assert.Empty(t, got.IPAddress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByID(t *testing.T) {
	hash := newHash(t)
	now := time.Now().UTC()

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantNil   bool
		wantErr   bool
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .* FROM sessions WHERE id = \$1`).
					WithArgs(int64(3)).
					WillReturnRows(pgxmock.NewRows(sessionCols).
						AddRow(int64(3), int64(1), hash[:], "d", (*string)(nil), (*string)(nil), now, now, now, now))
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .* FROM sessions WHERE id = \$1`).
					WithArgs(int64(3)).
					WillReturnError(pgx.ErrNoRows)
			},
			wantNil: true,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .* FROM sessions WHERE id = \$1`).
					WithArgs(int64(3)).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewPostgresRepository(mock)
			got, err := repo.GetByID(context.Background(), 3)
			switch {
			case tt.wantErr:
				require.Error(t, err)
				assert.Contains(t, err.Error(), "connection refused")
			case tt.wantNil:
				require.NoError(t, err)
				assert.Nil(t, got)
			default:
				require.NoError(t, err)
				assert.Equal(t, int64(3), got.ID)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestPostgresRepository_Rotate(t *testing.T) {
	old := newHash(t)
	next := newHash(t)
	at := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	authed := at.Add(-time.Hour)
	rot := domain.Rotation{TokenHash: next, Client: domain.Client{DeviceID: "dev"}, At: at}

	t.Run("applied", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`UPDATE sessions\s+SET token_hash = \$3`).
			WithArgs(int64(7), old[:], next[:], "dev", (*string)(nil), (*string)(nil), at, false).
			WillReturnRows(pgxmock.NewRows(sessionCols).
				AddRow(int64(7), int64(1), next[:], "dev", (*string)(nil), (*string)(nil), authed, at, at, authed))

		got, err := NewPostgresRepository(mock).Rotate(context.Background(), 7, old, rot)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, next, got.TokenHash)
		assert.Equal(t, authed, got.LastAuthenticatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale hash", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`UPDATE sessions`).
			WithArgs(int64(7), old[:], next[:], "dev", (*string)(nil), (*string)(nil), at, false).
			WillReturnRows(pgxmock.NewRows(sessionCols))

		got, err := NewPostgresRepository(mock).Rotate(context.Background(), 7, old, rot)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepository_Deauthenticate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE sessions SET last_authenticated_at = \$3`).
		WithArgs(int64(1), []int64{4, 5}, domain.Epoch).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`UPDATE sessions SET last_authenticated_at = \$3\s+WHERE user_id = \$1 AND id <> \$2`).
		WithArgs(int64(1), int64(4), domain.Epoch).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	repo := NewPostgresRepository(mock)
	n, err := repo.Deauthenticate(context.Background(), 1, []int64{4, 5})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = repo.DeauthenticateOthers(context.Background(), 1, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	n, err := repo.Delete(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	mock.ExpectExec(`DELETE FROM sessions WHERE user_id = \$1 AND id = ANY\(\$2\)`).
		WithArgs(int64(1), []int64{8, 9}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	n, err = repo.Delete(context.Background(), 1, []int64{8, 9})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListIDsByActivity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id\s+FROM sessions\s+WHERE user_id = \$1\s+ORDER BY last_used_at DESC, created_at DESC`).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)).AddRow(int64(4)).AddRow(int64(1)))

	ids, err := NewPostgresRepository(mock).ListIDsByActivity(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 4, 1}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
