package offline

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

const envPrefix = "FLEETPROXY_"

// Config is the single process-wide configuration value. It is loaded once
// in main and passed explicitly to every component; nothing reads ambient
// state after that.
type Config struct {
	Server struct {
		Port   int    `yaml:"port" env:"PORT"`
		Origin string `yaml:"origin" env:"ORIGIN"`

		// compiled
		originURL *url.URL
	} `yaml:"server"`

	Storage struct {
		Backend      string `yaml:"backend" env:"STORAGE_BACKEND"`
		Path         string `yaml:"path" env:"DATA_DIR"`
		MaxEntrySize string `yaml:"maxEntrySize"`

		// compiled
		maxEntryBytes int64
	} `yaml:"storage"`

	Cache struct {
		Version string `yaml:"version" env:"CACHE_VERSION"`

		APIMaxAge string `yaml:"apiMaxAge"`
		// StaticMaxAge and ImageMaxAge are accepted and validated but not
		// consulted anywhere: static and image entries live until the
		// version changes. Only the API max age is enforced.
		StaticMaxAge string `yaml:"staticMaxAge"`
		ImageMaxAge  string `yaml:"imageMaxAge"`

		// compiled
		apiMaxAgeDur    time.Duration
		staticMaxAgeDur time.Duration
		imageMaxAgeDur  time.Duration
	} `yaml:"cache"`

	Classifier struct {
		StaticPrefix string   `yaml:"staticPrefix"`
		AppManifest  string   `yaml:"appManifest"`
		APIPrefixes  []string `yaml:"apiPrefixes"`
		DataHosts    []string `yaml:"dataHosts"`
		IconPrefix   string   `yaml:"iconPrefix"`

		// compiled
		dataHostGlobs []glob.Glob
	} `yaml:"classifier"`

	Shell struct {
		Precache    []string `yaml:"precache"`
		OfflinePath string   `yaml:"offlinePath"`
		AlertsPath  string   `yaml:"alertsPath"`
	} `yaml:"shell"`

	Sync struct {
		Tag          string   `yaml:"tag"`
		Endpoints    []string `yaml:"endpoints"`
		ProbePath    string   `yaml:"probePath"`
		ProbeEvery   string   `yaml:"probeEvery"`
		InitialDelay string   `yaml:"initialDelay"`

		// compiled
		probeEveryDur   time.Duration
		initialDelayDur time.Duration
	} `yaml:"sync"`

	Logging struct {
		LogStatsEvery string `yaml:"logStatsEvery"`

		// compiled
		logStatsEveryDur time.Duration
	} `yaml:"logging"`
}

// LoadConfig reads the yaml file at path, applies the FLEETPROXY_*
// environment overlay, fills defaults and compiles derived fields.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("environment overlay: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.compile(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "leveldb"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data"
	}
	if c.Storage.MaxEntrySize == "" {
		c.Storage.MaxEntrySize = "4mb"
	}
	if c.Cache.Version == "" {
		c.Cache.Version = "v1"
	}
	if c.Cache.APIMaxAge == "" {
		c.Cache.APIMaxAge = "10m"
	}
	if c.Cache.StaticMaxAge == "" {
		c.Cache.StaticMaxAge = "168h" // 7 days
	}
	if c.Cache.ImageMaxAge == "" {
		c.Cache.ImageMaxAge = "720h" // 30 days
	}
	if c.Classifier.StaticPrefix == "" {
		c.Classifier.StaticPrefix = "/assets/"
	}
	if c.Classifier.AppManifest == "" {
		c.Classifier.AppManifest = "/manifest.webmanifest"
	}
	if len(c.Classifier.APIPrefixes) == 0 {
		c.Classifier.APIPrefixes = []string{"/api/"}
	}
	if len(c.Classifier.DataHosts) == 0 {
		c.Classifier.DataHosts = []string{"*.supabase.co"}
	}
	if c.Classifier.IconPrefix == "" {
		c.Classifier.IconPrefix = "/icons/"
	}
	if len(c.Shell.Precache) == 0 {
		c.Shell.Precache = []string{"/", "/index.html", "/offline.html", c.Classifier.AppManifest}
	}
	if c.Shell.OfflinePath == "" {
		c.Shell.OfflinePath = "/offline.html"
	}
	if c.Shell.AlertsPath == "" {
		c.Shell.AlertsPath = "/alerts"
	}
	if c.Sync.Tag == "" {
		c.Sync.Tag = "fleet-data-sync"
	}
	if len(c.Sync.Endpoints) == 0 {
		c.Sync.Endpoints = []string{"/api/pilots", "/api/checks", "/api/dashboard"}
	}
	if c.Sync.ProbePath == "" {
		c.Sync.ProbePath = "/api/health"
	}
	if c.Sync.ProbeEvery == "" {
		c.Sync.ProbeEvery = "30s"
	}
	if c.Sync.InitialDelay == "" {
		c.Sync.InitialDelay = "5s"
	}
}

func (c *Config) compile() error {
	if c.Server.Origin == "" {
		return fmt.Errorf("server.origin is required")
	}
	c.Server.Origin = strings.TrimRight(c.Server.Origin, "/")
	u, err := url.Parse(c.Server.Origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.origin: invalid origin %q", c.Server.Origin)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.origin: scheme must be http or https, got %q", u.Scheme)
	}
	c.Server.originURL = u

	c.Storage.maxEntryBytes, err = parseBytes(c.Storage.MaxEntrySize)
	if err != nil {
		return fmt.Errorf("storage.maxEntrySize: %w", err)
	}

	durs := []struct {
		name string
		raw  string
		out  *time.Duration
	}{
		{"cache.apiMaxAge", c.Cache.APIMaxAge, &c.Cache.apiMaxAgeDur},
		{"cache.staticMaxAge", c.Cache.StaticMaxAge, &c.Cache.staticMaxAgeDur},
		{"cache.imageMaxAge", c.Cache.ImageMaxAge, &c.Cache.imageMaxAgeDur},
		{"sync.probeEvery", c.Sync.ProbeEvery, &c.Sync.probeEveryDur},
		{"sync.initialDelay", c.Sync.InitialDelay, &c.Sync.initialDelayDur},
	}
	for _, d := range durs {
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		if v <= 0 && d.name != "sync.initialDelay" {
			return fmt.Errorf("%s: must be positive", d.name)
		}
		*d.out = v
	}
	if c.Logging.LogStatsEvery != "" {
		v, err := time.ParseDuration(c.Logging.LogStatsEvery)
		if err != nil {
			return fmt.Errorf("logging.logStatsEvery: %w", err)
		}
		c.Logging.logStatsEveryDur = v
	}

	c.Classifier.StaticPrefix = normalizePrefix(c.Classifier.StaticPrefix)
	c.Classifier.IconPrefix = normalizePrefix(c.Classifier.IconPrefix)
	for i, p := range c.Classifier.APIPrefixes {
		c.Classifier.APIPrefixes[i] = normalizePrefix(p)
	}
	c.Classifier.AppManifest = normalizePath(c.Classifier.AppManifest)
	c.Shell.OfflinePath = normalizePath(c.Shell.OfflinePath)
	c.Shell.AlertsPath = normalizePath(c.Shell.AlertsPath)
	c.Sync.ProbePath = normalizePath(c.Sync.ProbePath)
	for i, p := range c.Shell.Precache {
		c.Shell.Precache[i] = normalizePath(p)
	}
	for i, p := range c.Sync.Endpoints {
		c.Sync.Endpoints[i] = normalizePath(p)
	}

	c.Classifier.dataHostGlobs = c.Classifier.dataHostGlobs[:0]
	for i, pattern := range c.Classifier.DataHosts {
		g, err := glob.Compile(strings.ToLower(pattern), '.')
		if err != nil {
			return fmt.Errorf("classifier.dataHosts[%d]: %w", i, err)
		}
		c.Classifier.dataHostGlobs = append(c.Classifier.dataHostGlobs, g)
	}

	return nil
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func normalizePrefix(p string) string {
	p = normalizePath(p)
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// Store names, one per cacheable class, versioned by the cache tag.
// Bumping the tag is the only whole-store invalidation mechanism.
const (
	storeBaseStatic = "fleet-static"
	storeBaseAPI    = "fleet-api"
	storeBaseImage  = "fleet-images"
	storeBaseShell  = "fleet-shell"
)

func (c Config) storeName(class ResourceClass) string {
	switch class {
	case ClassStatic:
		return storeBaseStatic + "-" + c.Cache.Version
	case ClassAPI:
		return storeBaseAPI + "-" + c.Cache.Version
	case ClassImage:
		return storeBaseImage + "-" + c.Cache.Version
	case ClassNavigation:
		return storeBaseShell + "-" + c.Cache.Version
	default:
		return ""
	}
}

// allowedStoreNames is the activation allow-list: exactly four names for the
// current version. Every other store is pruned on activate.
func (c Config) allowedStoreNames() map[string]bool {
	return map[string]bool{
		c.storeName(ClassStatic):     true,
		c.storeName(ClassAPI):        true,
		c.storeName(ClassImage):      true,
		c.storeName(ClassNavigation): true,
	}
}
