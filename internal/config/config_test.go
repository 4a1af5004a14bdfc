package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polygene/internal/concern"
	"github.com/roach88/polygene/internal/entitystore"
	"github.com/roach88/polygene/internal/entitystore/mapstore"
	"github.com/roach88/polygene/internal/entitystore/sqlstore"
	"github.com/roach88/polygene/internal/metrics"
)

func TestDefaults_Valid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
store:
  driver: sqlite
  path: /tmp/entities.db
retry:
  max_retries: 5
  initial_delay: 100ms
propagation: requires_new
prune_on_pause: true
`))
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/entities.db", cfg.Store.Path)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 25*time.Millisecond, cfg.Retry.Backoff, "unset fields keep defaults")
	assert.True(t, cfg.UnitOptions().PruneOnPause)

	p := cfg.Policy("checkout")
	assert.Equal(t, concern.PropagationRequiresNew, p.Propagation)
	assert.Equal(t, "checkout", p.Usecase.Name)
	assert.Equal(t, concern.Retry{MaxRetries: 5, InitialDelay: 100 * time.Millisecond, Backoff: 25 * time.Millisecond}, p.Retry)
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("stroe:\n  driver: memory\n"))
	assert.Error(t, err)
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown driver", "store:\n  driver: cassandra\n"},
		{"file without dir", "store:\n  driver: file\n"},
		{"sqlite without path", "store:\n  driver: sqlite\n"},
		{"postgres without dsn", "store:\n  driver: postgres\n"},
		{"redis without addrs", "store:\n  driver: redis\n"},
		{"s3 without bucket", "store:\n  driver: s3\n"},
		{"bad codec", "store:\n  codec: xml\n"},
		{"bad propagation", "propagation: nested\n"},
		{"negative retries", "retry:\n  max_retries: -1\n"},
		{"bad namespace", "metrics:\n  namespace: 9lives\n"},
		{"bad log level", "log_level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestValidate_DriverRequirementsMet(t *testing.T) {
	for _, doc := range []string{
		"store:\n  driver: file\n  dir: /var/lib/polygene\n",
		"store:\n  driver: postgres\n  dsn: postgres://localhost/polygene\n",
		"store:\n  driver: mysql\n  dsn: root@/polygene\n",
		"store:\n  driver: redis\n  redis:\n    addrs: [\"localhost:6379\"]\n",
		"store:\n  driver: s3\n  s3:\n    bucket: entities\n",
		"metrics:\n  namespace: \"\"\n",
	} {
		_, err := Parse([]byte(doc))
		assert.NoError(t, err, doc)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polygene.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\n  codec: json\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Store.Codec)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOpenStore_MapDrivers(t *testing.T) {
	ctx := context.Background()

	cfg := Defaults()
	store, err := OpenStore(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &mapstore.Store{}, store)

	cfg.Store.Driver = DriverFile
	cfg.Store.Dir = filepath.Join(t.TempDir(), "entities")
	store, err = OpenStore(ctx, cfg, nil)
	require.NoError(t, err)
	ms, ok := store.(*mapstore.Store)
	require.True(t, ok)
	assert.IsType(t, &mapstore.FileMap{}, ms.Map())
}

func TestOpenStore_SQLite(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Driver = DriverSQLite
	cfg.Store.Path = filepath.Join(t.TempDir(), "entities.db")

	store, err := OpenStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &sqlstore.Store{}, store)
	closer, ok := store.(entitystore.Closer)
	require.True(t, ok)
	require.NoError(t, closer.Close())
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Driver = "cassandra"
	_, err := OpenStore(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestConfig_Recorder(t *testing.T) {
	cfg := Defaults()
	rec, err := cfg.Recorder(prometheus.NewRegistry())
	require.NoError(t, err)
	assert.IsType(t, &metrics.Prometheus{}, rec)

	cfg.Metrics.Namespace = ""
	rec, err = cfg.Recorder(prometheus.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, metrics.Nop{}, rec)
}

func TestConfig_Level(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "debug"
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	cfg.LogLevel = "nonsense"
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}
