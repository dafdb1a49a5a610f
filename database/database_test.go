package database

import (
	"io/fs"
	"strings"
	"testing"

	"payment-service/config"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		DBUser:     "shop",
		DBPassword: "p@ss",
		DBHost:     "db.internal",
		DBPort:     "3307",
		DBName:     "storefront",
	}

	parsed, err := mysql.ParseDSN(DSN(cfg))
	require.NoError(t, err)

	assert.Equal(t, "shop", parsed.User)
	assert.Equal(t, "p@ss", parsed.Passwd)
	assert.Equal(t, "db.internal:3307", parsed.Addr)
	assert.Equal(t, "storefront", parsed.DBName)
	assert.True(t, parsed.ParseTime)
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}

	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}
