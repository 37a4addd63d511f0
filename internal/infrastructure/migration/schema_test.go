package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const repoMigrations = "../../../migrations"

func TestRepositoryMigrations_AreValid(t *testing.T) {
	migrations, err := ListMigrations(repoMigrations)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, "000001_init_schema", migrations[0])
	assert.NoError(t, Validate(repoMigrations))
}

func TestRepositoryMigrations_InitSchema(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join(repoMigrations, "000001_init_schema.up.sql"))
	require.NoError(t, err)
	schema := string(raw)

	for _, table := range []string{"users", "products", "orders", "order_items", "otp_challenges", "payments"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" ")
	}

	// the concurrency guards live in partial unique indexes
	assert.Contains(t, schema, "idx_otp_challenges_open_pair")
	assert.Contains(t, schema, "WHERE verified = FALSE")
	assert.Contains(t, schema, "idx_payments_order_succeeded")
	assert.Contains(t, schema, "WHERE status = 'succeeded'")

	down, err := os.ReadFile(filepath.Join(repoMigrations, "000001_init_schema.down.sql"))
	require.NoError(t, err)
	assert.Less(t,
		strings.Index(string(down), "DROP TABLE IF EXISTS payments"),
		strings.Index(string(down), "DROP TABLE IF EXISTS orders;"))
}
