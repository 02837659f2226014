package config

import (
	"os"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN / ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "dpc",
				Password: "secret",
				Name:     "dpc_admin",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=dpc password=secret dbname=dpc_admin sslmode=require",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:    "db.example.com",
				Port:    5433,
				User:    "admin",
				Name:    "mydb",
				SSLMode: "disable",
			},
			want: "host=db.example.com port=5433 user=admin password= dbname=mydb sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetDSN(); got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetAddress(); got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Host: "localhost",
			Name: "dpc_admin",
			User: "dpc",
		},
		Storage: StorageConfig{
			DefaultBackend: "local",
			Local:          LocalStorageConfig{BasePath: "./exports"},
		},
		Logging:   LoggingConfig{Level: "info"},
		Events:    EventsConfig{Backend: "none"},
		Directory: DirectoryConfig{PerPage: 25},
		Endpoints: EndpointsConfig{Sandbox: SandboxEndpointConfig{
			Name:   "DPC Sandbox Test Endpoint",
			Status: "test",
			URI:    "https://dpc.cms.gov/test-endpoint",
		}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid minimal config", func(*Config) {}, ""},
		{"port 0", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"port 70000", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"missing base_url", func(c *Config) { c.Server.BaseURL = "" }, "server.base_url"},
		{"missing database host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"missing database name", func(c *Config) { c.Database.Name = "" }, "database.name"},
		{"missing database user", func(c *Config) { c.Database.User = "" }, "database.user"},
		{"unknown storage backend", func(c *Config) { c.Storage.DefaultBackend = "ftp" }, "invalid storage backend"},
		{"azure missing account name", func(c *Config) {
			c.Storage.DefaultBackend = "azure"
			c.Storage.Azure = AzureStorageConfig{AccountKey: "k", ContainerName: "c"}
		}, "account_name"},
		{"valid azure", func(c *Config) {
			c.Storage.DefaultBackend = "azure"
			c.Storage.Azure = AzureStorageConfig{AccountName: "a", AccountKey: "k", ContainerName: "c"}
		}, ""},
		{"s3 missing region", func(c *Config) {
			c.Storage.DefaultBackend = "s3"
			c.Storage.S3 = S3StorageConfig{Bucket: "exports"}
		}, "storage.s3.region"},
		{"gcs missing bucket", func(c *Config) { c.Storage.DefaultBackend = "gcs" }, "storage.gcs.bucket"},
		{"local missing base path", func(c *Config) { c.Storage.Local.BasePath = "" }, "storage.local.base_path"},
		{"oidc missing issuer", func(c *Config) {
			c.Auth.OIDC = OIDCConfig{Enabled: true, ClientID: "id", ClientSecret: "s"}
		}, "issuer_url"},
		{"valid oidc", func(c *Config) {
			c.Auth.OIDC = OIDCConfig{Enabled: true, IssuerURL: "https://idp.example.com", ClientID: "id", ClientSecret: "s"}
		}, ""},
		{"tls missing cert", func(c *Config) { c.Security.TLS = TLSConfig{Enabled: true, KeyFile: "k.pem"} }, "cert_file"},
		{"unknown rate limit backend", func(c *Config) {
			c.Security.RateLimiting = RateLimitingConfig{Enabled: true, Backend: "memcached"}
		}, "invalid rate limiting backend"},
		{"redis rate limit missing addr", func(c *Config) {
			c.Security.RateLimiting = RateLimitingConfig{Enabled: true, Backend: "redis"}
		}, "redis.addr"},
		{"disabled rate limit ignores backend", func(c *Config) {
			c.Security.RateLimiting = RateLimitingConfig{Enabled: false, Backend: "memcached"}
		}, ""},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid logging level"},
		{"unknown events backend", func(c *Config) { c.Events.Backend = "sqs" }, "invalid events backend"},
		{"nats missing url", func(c *Config) { c.Events = EventsConfig{Backend: "nats"} }, "events.nats.url"},
		{"kafka missing brokers", func(c *Config) {
			c.Events = EventsConfig{Backend: "kafka", Kafka: KafkaConfig{Topic: "t"}}
		}, "events.kafka.brokers"},
		{"valid kafka", func(c *Config) {
			c.Events = EventsConfig{Backend: "kafka", Kafka: KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}}
		}, ""},
		{"per_page zero", func(c *Config) { c.Directory.PerPage = 0 }, "directory.per_page"},
		{"per_page too large", func(c *Config) { c.Directory.PerPage = 500 }, "directory.per_page"},
		{"missing sandbox uri", func(c *Config) { c.Endpoints.Sandbox.URI = "" }, "endpoints.sandbox.uri"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
  base_url: "http://testhost:9999"
database:
  host: "dbhost"
  name: "testdb"
  user: "testuser"
logging:
  level: "debug"
directory:
  per_page: 50
events:
  backend: "nats"
  nats:
    url: "nats://events:4222"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" || cfg.Server.Port != 9999 {
		t.Errorf("Server = %s:%d, want testhost:9999", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Database.Host != "dbhost" {
		t.Errorf("Database.Host = %q, want dbhost", cfg.Database.Host)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Directory.PerPage != 50 {
		t.Errorf("Directory.PerPage = %d, want 50", cfg.Directory.PerPage)
	}
	if cfg.Events.NATS.URL != "nats://events:4222" {
		t.Errorf("Events.NATS.URL = %q", cfg.Events.NATS.URL)
	}
	if cfg.Events.NATS.SubjectPrefix != "dpc.admin" {
		t.Errorf("Events.NATS.SubjectPrefix default = %q, want dpc.admin", cfg.Events.NATS.SubjectPrefix)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	const content = `
database:
  host: "localhost"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.SSLMode != "require" {
		t.Errorf("default Database.SSLMode = %q, want require", cfg.Database.SSLMode)
	}
	if cfg.Directory.PerPage != 25 {
		t.Errorf("default Directory.PerPage = %d, want 25", cfg.Directory.PerPage)
	}
	if cfg.Endpoints.Sandbox.Status != "test" {
		t.Errorf("default sandbox status = %q, want test", cfg.Endpoints.Sandbox.Status)
	}
	if cfg.Endpoints.Sandbox.URI != "https://dpc.cms.gov/test-endpoint" {
		t.Errorf("default sandbox uri = %q", cfg.Endpoints.Sandbox.URI)
	}
	if cfg.Events.Backend != "none" {
		t.Errorf("default Events.Backend = %q, want none", cfg.Events.Backend)
	}
	if cfg.Security.RateLimiting.Backend != "memory" {
		t.Errorf("default rate limit backend = %q, want memory", cfg.Security.RateLimiting.Backend)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("DPC_DIRECTORY_PER_PAGE", "10")
	t.Setenv("DPC_ENDPOINTS_SANDBOX_NAME", "Override Endpoint")
	const content = `
directory:
  per_page: 50
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Directory.PerPage != 10 {
		t.Errorf("Directory.PerPage = %d, want 10 from env", cfg.Directory.PerPage)
	}
	if cfg.Endpoints.Sandbox.Name != "Override Endpoint" {
		t.Errorf("Endpoints.Sandbox.Name = %q, want env override", cfg.Endpoints.Sandbox.Name)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASS", "mysecret")
	const content = `
database:
  password: "${TEST_DB_PASS}"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Password != "mysecret" {
		t.Errorf("Database.Password = %q, want mysecret", cfg.Database.Password)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "server: [unclosed")); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	_, err := Load(writeTempConfig(t, "directory:\n  per_page: 0\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Load() error = %v, want invalid configuration", err)
	}
}

// ---------------------------------------------------------------------------
// expandEnv / GetPublicURL
// ---------------------------------------------------------------------------

func TestExpandEnv(t *testing.T) {
	t.Setenv("CONFIG_TEST_SECRET", "super-secret")
	if got := expandEnv("${CONFIG_TEST_SECRET}"); got != "super-secret" {
		t.Errorf("expandEnv() = %q, want super-secret", got)
	}
	if got := expandEnv("no-vars-here"); got != "no-vars-here" {
		t.Errorf("expandEnv() = %q, want passthrough", got)
	}
}

func TestGetPublicURL(t *testing.T) {
	s := ServerConfig{PublicURL: "https://admin.example.com", BaseURL: "http://internal:8080"}
	if got := s.GetPublicURL(); got != "https://admin.example.com" {
		t.Errorf("GetPublicURL = %q", got)
	}
	s.PublicURL = ""
	if got := s.GetPublicURL(); got != "http://internal:8080" {
		t.Errorf("GetPublicURL fallback = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Watch / ReloadableChanges
// ---------------------------------------------------------------------------

func TestWatch_ReturnsInitialConfig(t *testing.T) {
	cfg, err := Watch(writeTempConfig(t, "logging:\n  level: warn\n"), nil)
	if err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestReloadableChanges(t *testing.T) {
	prev := minimalValidConfig()
	next := minimalValidConfig()
	if got := ReloadableChanges(prev, next); len(got) != 0 {
		t.Errorf("ReloadableChanges(identical) = %v, want none", got)
	}

	next.Logging.Level = "debug"
	next.Directory.PerPage = 10
	got := ReloadableChanges(prev, next)
	if len(got) != 2 {
		t.Fatalf("ReloadableChanges = %v, want 2 entries", got)
	}
	if got[0] != "logging.level info -> debug" {
		t.Errorf("got[0] = %q", got[0])
	}
}
