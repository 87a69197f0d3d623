package repository

import (
	"bytes"
	"testing"

	"storefront/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationStatus_ReportsApplied(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, database.GetMigrationStatus(testDB, "../../migrations", &out))

	status := out.String()
	for _, name := range []string{
		"00001_create_documents_table.sql",
		"00002_create_categories_table.sql",
		"00003_create_document_notify_trigger.sql",
	} {
		assert.Contains(t, status, name)
	}
	assert.NotContains(t, status, "Pending")
}
