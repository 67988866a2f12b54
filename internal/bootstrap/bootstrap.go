// Package bootstrap holds the store/fabric connection setup shared by every
// cmd/* entrypoint, factored out of the monolith's main.go so the seven
// split-deployment binaries don't each re-derive the sqlite-vs-postgres URL
// parsing and in-proc-vs-amqp fabric selection.
package bootstrap

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mastertrade/internal/fabric"
	"mastertrade/internal/fabric/amqp"
	"mastertrade/internal/fabric/inproc"
	"mastertrade/internal/store"
)

// OpenStore opens the relational store from a DB_URL value: a
// "sqlite://path" prefix selects the embedded driver, anything else is
// parsed as a postgres DSN URL.
func OpenStore(dbURL string) (*store.Store, error) {
	if strings.HasPrefix(dbURL, "sqlite://") {
		path := strings.TrimPrefix(dbURL, "sqlite://")
		if dir := pathDir(path); dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		return store.New(path)
	}
	u, err := url.Parse(dbURL)
	if err != nil {
		return nil, err
	}
	port, _ := strconv.Atoi(u.Port())
	password, _ := u.User.Password()
	return store.NewWithConfig(store.DBConfig{
		Type:     store.DBTypePostgres,
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  u.Query().Get("sslmode"),
	})
}

func pathDir(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return "."
}

// OpenFabric returns the in-process broker when brokerURL is empty, or
// dials the given AMQP broker otherwise.
func OpenFabric(brokerURL string) (fabric.Fabric, error) {
	if brokerURL == "" {
		return inproc.New(), nil
	}
	return amqp.Dial(brokerURL)
}

// InstanceID identifies this process for scheduler leader-election and log
// correlation: INSTANCE_ID env var if set, else the OS hostname.
func InstanceID() string {
	if v := os.Getenv("INSTANCE_ID"); v != "" {
		return v
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "mastertrade"
	}
	return host
}

// ParseTelegramChat parses a Telegram chat id, defaulting to 0 (disabled)
// on any malformed input rather than failing startup.
func ParseTelegramChat(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

// RootCommand builds the cobra entrypoint every cmd/* binary executes:
// a single `--config` flag that layers an optional YAML file underneath
// the process environment (via viper) before run fires, the same
// env-first/file-overlay precedence every cmd/* binary uses. run does the
// actual component construction and blocks until shutdown.
func RootCommand(use, short string, run func(cmd *cobra.Command, args []string) error) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := LoadConfigOverlay(configPath); err != nil {
				return err
			}
			return run(cmd, args)
		},
	}
	root.Flags().StringVar(&configPath, "config", os.Getenv("MASTERTRADE_CONFIG"), "optional YAML config file layered under environment variables")
	return root
}

// LoadConfigOverlay reads a YAML config file, if present, and exports any
// key it sets as a process environment variable for every env var the
// process doesn't already have set — so `internal/config.Init`'s
// `os.Getenv` reads keep being the single source of truth, with the file
// acting as a convenience default layer rather than a second config path.
// A missing path is not an error: every cmd/* binary runs from the
// environment alone by default.
func LoadConfigOverlay(path string) error {
	if path == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for key, value := range v.AllSettings() {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, set := os.LookupEnv(envKey); !set {
			os.Setenv(envKey, toEnvString(value))
		}
	}
	return nil
}

func toEnvString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
