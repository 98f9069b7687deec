package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		mode, env       string
		runSQL, runAuto bool
		wantErr         bool
	}{
		{"", "development", true, true, false},
		{"hybrid", "production", true, false, false},
		{"sql", "development", true, false, false},
		{"auto", "test", false, true, false},
		{"auto", "staging", false, false, true},
		{"bogus", "development", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.mode+"/"+tt.env, func(t *testing.T) {
			runSQL, runAuto, err := schemaPolicy(tt.mode, tt.env)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.runSQL, runSQL)
			assert.Equal(t, tt.runAuto, runAuto)
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := EmbeddedMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.NotEmpty(t, m.UpScript, m.String())
		assert.NotEmpty(t, m.DownScript, m.String())
		if i > 0 {
			assert.Greater(t, m.Version, migrations[i-1].Version)
		}
	}
	assert.Equal(t, "000001_create_core_tables", migrations[0].String())
}

func TestMigrator_UpAndDown(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	migrator := NewMigrator(db, []Migration{
		{Version: 1, Name: "widgets", UpScript: "CREATE TABLE widgets (id INTEGER PRIMARY KEY)", DownScript: "DROP TABLE widgets"},
		{Version: 2, Name: "gadgets", UpScript: "CREATE TABLE gadgets (id INTEGER PRIMARY KEY)", DownScript: "DROP TABLE gadgets"},
	})

	applied, err := migrator.Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	require.NoError(t, migrator.Up(ctx))
	applied, err = migrator.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)
	assert.True(t, db.Migrator().HasTable("gadgets"))

	// Re-running is a no-op.
	require.NoError(t, migrator.Up(ctx))

	require.NoError(t, migrator.Down(ctx, 2))
	assert.False(t, db.Migrator().HasTable("gadgets"))
	pending, err := migrator.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Version)

	assert.Error(t, migrator.Down(ctx, 2))
	assert.Error(t, migrator.Down(ctx, 42))
}

func TestMigrator_RejectsUnknownAppliedVersions(t *testing.T) {
	db := openTestDB(t)
	ctx := t.Context()

	require.NoError(t, db.AutoMigrate(&MigrationLog{}))
	require.NoError(t, db.Create(&MigrationLog{Version: 99, Name: "from_the_future"}).Error)

	migrator := NewMigrator(db, []Migration{
		{Version: 1, Name: "widgets", UpScript: "CREATE TABLE widgets (id INTEGER PRIMARY KEY)", DownScript: "DROP TABLE widgets"},
	})
	err := migrator.Up(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000099")
}
