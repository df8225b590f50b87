package members

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

func TestValidateID(t *testing.T) {
	require.NoError(t, ValidateID("abc-123_X"))
	require.NoError(t, ValidateID(strings.Repeat("a", 50)))

	for _, id := range []string{"", strings.Repeat("a", 51), "a b", "a/b", "한글"} {
		err := ValidateID(id)
		require.Error(t, err, id)
		require.True(t, IsInvalid(err), id)
	}
}

func TestMemberValidate(t *testing.T) {
	ok := []Member{
		{ID: "1", Name: "Test User", Gender: GenderMale},
		{ID: "2", Name: "홍길동", Gender: GenderFemale},
		{ID: "3", Name: strings.Repeat("n", 100), Gender: GenderMale},
		{ID: "4", Name: "a-b_c 9", Gender: GenderFemale},
	}
	for _, m := range ok {
		require.NoError(t, m.Validate(), m.Name)
	}

	bad := []Member{
		{ID: "1", Name: "", Gender: GenderMale},
		{ID: "1", Name: strings.Repeat("n", 101), Gender: GenderMale},
		{ID: "1", Name: "semi;colon", Gender: GenderMale},
		{ID: "1", Name: "Test", Gender: "Male"},
		{ID: "", Name: "Test", Gender: GenderMale},
	}
	for _, m := range bad {
		err := m.Validate()
		require.Error(t, err, "%+v", m)
		require.True(t, IsInvalid(err))
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DefaultSeed...)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, len(DefaultSeed))
	for i := 1; i < len(list); i++ {
		require.Less(t, list[i-1].ID, list[i].ID)
	}

	require.True(t, IsExists(s.Create(ctx, DefaultSeed[0])))
	require.True(t, IsNotFound(s.Update(ctx, Member{ID: "ghost"})))
	require.True(t, IsNotFound(s.Delete(ctx, "ghost")))
	_, err = s.Get(ctx, "ghost")
	require.True(t, IsNotFound(err))

	require.NoError(t, s.Delete(ctx, "alice"))
	_, err = s.Get(ctx, "alice")
	require.True(t, IsNotFound(err))
	require.NoError(t, s.Close())
}

func TestMemoryStoreConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Create(ctx, Member{ID: "same", Name: "Same", Gender: GenderMale}) == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)
}

func TestDefaultConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.Store)
	require.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	require.Equal(t, "127.0.0.1", cfg.Database.Host)
	require.Equal(t, 3306, cfg.Database.Port)
	require.Equal(t, "root", cfg.Database.Username)
	require.Equal(t, "test", cfg.Database.Password)
	require.Equal(t, "crow_ex1", cfg.Database.Database)
	require.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout.Duration)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "membersd.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
store = "MySQL"

[server]
port = 9090
read_timeout = "3s"

[database]
host = "db.internal"
password = "secret"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, StoreMySQL, cfg.Store)
	require.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	require.Equal(t, 3*time.Second, cfg.Server.ReadTimeout.Duration)
	require.Equal(t, 10*time.Second, cfg.Server.WriteTimeout.Duration)
	require.Equal(t, "db.internal", cfg.Database.Host)
	require.Equal(t, "secret", cfg.Database.Password)
	require.Equal(t, "root", cfg.Database.Username)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown key", "[server]\nthreads = 10\n", "unknown keys"},
		{"bad port", "[server]\nport = 70000\n", "invalid server port"},
		{"bad store", "store = \"redis\"\n", "unknown store"},
		{"bad duration", "[server]\nread_timeout = \"soon\"\n", "decode members config failed"},
		{"missing database name", "store = \"mysql\"\n[database]\ndatabase = \"\"\n", "required"},
		{"syntax", "store = \n", "decode members config failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDSN(t *testing.T) {
	dsn := DSN(DefaultConfig().Database)
	require.Equal(t, "root:test@tcp(127.0.0.1:3306)/crow_ex1?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true", dsn)

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	require.True(t, parsed.ClientFoundRows)
	require.True(t, parsed.ParseTime)
}

// TestMySQLStore runs against a live server when VULOAD_MYSQL_HOST is set.
func TestMySQLStore(t *testing.T) {
	host := os.Getenv("VULOAD_MYSQL_HOST")
	if host == "" {
		t.Skip("VULOAD_MYSQL_HOST not set")
	}
	cfg := DefaultConfig().Database
	cfg.Host = host

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := OpenMySQL(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	m := Member{ID: "it-" + strconv.FormatInt(time.Now().UnixNano(), 36), Name: "Integration", Gender: GenderMale}
	require.NoError(t, s.Create(ctx, m))
	defer s.Delete(ctx, m.ID)
	require.True(t, IsExists(s.Create(ctx, m)))

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, m, got)

	require.NoError(t, s.Update(ctx, m))
	m.Name = "Renamed"
	require.NoError(t, s.Update(ctx, m))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Contains(t, list, m)

	require.NoError(t, s.Delete(ctx, m.ID))
	require.True(t, IsNotFound(s.Delete(ctx, m.ID)))
	_, err = s.Get(ctx, m.ID)
	require.True(t, IsNotFound(err))
}
