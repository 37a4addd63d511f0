package persistence

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/tests/testutil"
)

func TestOrderRepository_TransitionToPaid_IsConditionalUpdate(t *testing.T) {
	mdb := testutil.NewMockDB(t)
	defer mdb.Close()
	repo := NewGormOrderRepository(mdb.DB)
	id := uuid.New()

	mdb.Mock.ExpectExec(`UPDATE "orders" SET .*"status"=\$\d.*WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mdb.Mock.ExpectQuery(`SELECT "status" FROM "orders" WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("cancelled"))

	err := repo.TransitionToPaid(context.Background(), id, t0)

	de, ok := shared.AsDomainError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, shared.CodeConflict, de.Code)
	assert.Equal(t, "cancelled", de.CurrentStatus)
	mdb.ExpectationsWereMet(t)
}

func TestChallengeRepository_MarkVerified_GuardsOnUnverified(t *testing.T) {
	mdb := testutil.NewMockDB(t)
	defer mdb.Close()
	repo := NewGormChallengeRepository(mdb.DB)
	id := uuid.New()

	mdb.Mock.ExpectExec(`UPDATE "otp_challenges" SET .* WHERE id = \$\d+ AND verified = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.MarkVerified(context.Background(), id, t0)
	require.NoError(t, err)
	assert.False(t, won)
	mdb.ExpectationsWereMet(t)
}
