package candidates

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruitflow/internal/common/database"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(&database.PostgresClient{DB: db}), mock
}

func candidateRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "first_name", "last_name", "full_name", "phone", "email",
		"chat_number", "source", "lead_id", "form_answers", "notes",
		"created_at", "updated_at",
	}).AddRow(
		int64(3), "Maria", "Ionescu", "Maria Ionescu", "+40721234567",
		"maria@example.com", nil, "lead_form", "l:199023",
		[]byte(`{"experience_years":"4"}`), nil, now, now,
	)
}

func TestFindByEmail_NormalizesAddress(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM candidates").
		WithArgs("maria@example.com").
		WillReturnRows(candidateRows())

	cand, err := store.FindByEmail(context.Background(), "  Maria@Example.COM ")
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "Maria Ionescu", cand.FullName)
	assert.Equal(t, "4", cand.FormAnswers["experience_years"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmail_NoMatchIsNotAnError(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM candidates").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	cand, err := store.FindByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestFindByEmail_EmptyAddressShortCircuits(t *testing.T) {
	store, _ := newTestStore(t)

	cand, err := store.FindByPhone(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, cand)

	cand, err = store.FindByEmail(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestFindByPhone_SuffixMatchAcrossCountryCode(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM candidates").
		WithArgs("%1234567").
		WillReturnRows(candidateRows())

	// Candidate stored with +40 prefix, inbound sender uses the national form.
	cand, err := store.FindByPhone(context.Background(), "0721 234 567")
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, int64(3), cand.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByPhone_TooShortNumberIsSkipped(t *testing.T) {
	store, _ := newTestStore(t)

	cand, err := store.FindByPhone(context.Background(), "12345")
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestFindByPhone_LikeHitButSuffixMismatch(t *testing.T) {
	store, mock := newTestStore(t)

	rows := candidateRows()
	mock.ExpectQuery("SELECT (.+) FROM candidates").
		WillReturnRows(rows)

	// Same last-7 LIKE window but a different full number: rejected in Go.
	cand, err := store.FindByPhone(context.Background(), "+49 30 991 234 567")
	require.NoError(t, err)
	assert.Nil(t, cand)
}
