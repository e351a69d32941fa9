package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is layered: defaults, then the JSON file, then RESOURCEKIT_* env,
// then flags.
type Config struct {
	Port         string `json:"port"`
	ResourcesDir string `json:"resourcesDir"`
	EnumsDir     string `json:"enumsDir"`
	DBURL        string `json:"dbUrl"`
	AutoMigrate  bool   `json:"autoMigrate"`

	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"` // "json" | "console"

	PerPage    int `json:"perPage"`
	MaxPerPage int `json:"maxPerPage"`
	BcryptCost int `json:"bcryptCost"`

	SlowQuery time.Duration `json:"-"`
	// SlowQueryRaw is the JSON form of SlowQuery ("200ms").
	SlowQueryRaw string `json:"slowQuery"`
}

const envPrefix = "RESOURCEKIT_"

func def() Config {
	return Config{
		Port:         "8080",
		ResourcesDir: "resources",
		EnumsDir:     "reference/enums",
		DBURL:        "",
		AutoMigrate:  false,

		LogLevel:  "info",
		LogFormat: "json",

		PerPage:    15,
		MaxPerPage: 100,
		BcryptCost: 10,

		SlowQuery: 200 * time.Millisecond,
	}
}

func loadJSON(path string, c Config) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	c.SlowQueryRaw = ""
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("config %s: %w", path, err)
	}
	if c.SlowQueryRaw != "" {
		d, err := time.ParseDuration(c.SlowQueryRaw)
		if err != nil {
			return c, fmt.Errorf("config %s: slowQuery: %w", path, err)
		}
		c.SlowQuery = d
	}
	return c, nil
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(envPrefix + k); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(envPrefix + k); ok {
		if b, ok := parseBool(v); ok {
			return b
		}
	}
	return fallback
}

func getenvInt(k string, fallback int) int {
	if v, ok := os.LookupEnv(envPrefix + k); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(k string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(envPrefix + k); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}

// Load reads jsonPath when it exists, applies env overrides, then parses
// args on its own flag set. A -config flag naming another file restarts
// the layering from that file.
func Load(jsonPath string, args []string) (Config, error) {
	cfg := def()

	if st, err := os.Stat(jsonPath); err == nil && !st.IsDir() {
		c2, err := loadJSON(jsonPath, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = c2
	}

	cfg.Port = getenv("PORT", cfg.Port)
	cfg.ResourcesDir = getenv("RESOURCES_DIR", cfg.ResourcesDir)
	cfg.EnumsDir = getenv("ENUMS_DIR", cfg.EnumsDir)
	cfg.DBURL = getenv("DB_URL", cfg.DBURL)
	cfg.AutoMigrate = getenvBool("AUTO_MIGRATE", cfg.AutoMigrate)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("LOG_FORMAT", cfg.LogFormat)
	cfg.PerPage = getenvInt("PER_PAGE", cfg.PerPage)
	cfg.MaxPerPage = getenvInt("MAX_PER_PAGE", cfg.MaxPerPage)
	cfg.BcryptCost = getenvInt("BCRYPT_COST", cfg.BcryptCost)
	cfg.SlowQuery = getenvDuration("SLOW_QUERY", cfg.SlowQuery)

	fs := flag.NewFlagSet("resourcekit", flag.ContinueOnError)
	configPath := fs.String("config", jsonPath, "Path to config JSON")
	port := fs.String("port", cfg.Port, "HTTP port")
	resources := fs.String("resources", cfg.ResourcesDir, "Path to resource definitions")
	enums := fs.String("enums", cfg.EnumsDir, "Path to enums directory")
	db := fs.String("db", cfg.DBURL, "Postgres URL (empty = in-memory)")
	auto := fs.String("auto-migrate", strconv.FormatBool(cfg.AutoMigrate), "Create missing tables on start (true/false)")
	level := fs.String("log-level", cfg.LogLevel, "debug|info|warn|error")
	format := fs.String("log-format", cfg.LogFormat, "json|console")
	perPage := fs.Int("per-page", cfg.PerPage, "Default page size")
	maxPerPage := fs.Int("max-per-page", cfg.MaxPerPage, "Page size cap")
	cost := fs.Int("bcrypt-cost", cfg.BcryptCost, "bcrypt cost for password fields")
	slow := fs.Duration("slow-query", cfg.SlowQuery, "Log queries slower than this at warn")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *configPath != jsonPath {
		return Load(*configPath, withoutConfigFlag(args))
	}

	cfg.Port = strings.TrimSpace(*port)
	cfg.ResourcesDir = strings.TrimSpace(*resources)
	cfg.EnumsDir = strings.TrimSpace(*enums)
	cfg.DBURL = strings.TrimSpace(*db)
	if b, ok := parseBool(*auto); ok {
		cfg.AutoMigrate = b
	}
	cfg.LogLevel = strings.TrimSpace(*level)
	cfg.LogFormat = strings.TrimSpace(*format)
	cfg.PerPage = *perPage
	cfg.MaxPerPage = *maxPerPage
	cfg.BcryptCost = *cost
	cfg.SlowQuery = *slow

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.PerPage <= 0:
		return fmt.Errorf("config: perPage must be positive")
	case c.MaxPerPage < c.PerPage:
		return fmt.Errorf("config: maxPerPage %d is below perPage %d", c.MaxPerPage, c.PerPage)
	case c.BcryptCost < 4 || c.BcryptCost > 31:
		return fmt.Errorf("config: bcryptCost %d out of range 4..31", c.BcryptCost)
	}
	return nil
}

func withoutConfigFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-config" || a == "--config":
			i++
		case strings.HasPrefix(a, "-config=") || strings.HasPrefix(a, "--config="):
		default:
			out = append(out, a)
		}
	}
	return out
}
