// Package config loads and validates zeno.yml. Config is read from
// zeno.yml or .zeno.yml in the project working directory; a missing file
// is a fatal startup error that directs the user to `zeno init`. Every
// field has a documented default; fields present in the file override the
// corresponding default, fields absent from the file keep it, mirroring
// the partial/pointer overlay pattern used for per-field config overlays
// elsewhere in the ecosystem.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfigMissing is returned by Discover when neither zeno.yml nor
// .zeno.yml exists in the working directory.
var ErrConfigMissing = errors.New("no zeno.yml or .zeno.yml found; run `zeno init` to create one")

// Default values for the config schema.
const (
	DefaultRoot         = "."
	DefaultTmpDir        = "tmp"
	DefaultBuildCmd      = "dart compile exe lib/main.dart -o ./tmp/main_new.exe"
	DefaultBuildBin      = "./tmp/main.exe"
	DefaultBuildLog      = "build-errors.log"
	DefaultDelayMS       = 1500
	DefaultKillDelayMS   = 1500
	DefaultPollInterval  = 500
	DefaultProxyPort     = 8090
	DefaultAppPort       = 8080
)

// Build holds the build.* config section.
type Build struct {
	Cmd             string   `yaml:"cmd"`
	Bin             string   `yaml:"bin"`
	Log             string   `yaml:"log"`
	IncludeExt      []string `yaml:"include_ext"`
	ExcludeDir      []string `yaml:"exclude_dir"`
	IncludeDir      []string `yaml:"include_dir"`
	ExcludeFile     []string `yaml:"exclude_file"`
	IncludeFile     []string `yaml:"include_file"`
	ExcludeRegex    []string `yaml:"exclude_regex"`
	PreCmd          []string `yaml:"pre_cmd"`
	PostCmd         []string `yaml:"post_cmd"`
	Args            []string `yaml:"args"`
	DelayMS         int      `yaml:"delay"`
	KillDelayMS     int      `yaml:"kill_delay"`
	StopOnError     bool     `yaml:"stop_on_error"`
	ExcludeUnchanged bool    `yaml:"exclude_unchanged"` // reserved; unused by the reload core
	FollowSymlink   bool     `yaml:"follow_symlink"`    // reserved; unused by the reload core
	Poll            bool     `yaml:"poll"`
	PollIntervalMS  int      `yaml:"poll_interval"`
}

// Log holds the log.* config section.
type Log struct {
	AddTime  bool `yaml:"add_time"`
	MainOnly bool `yaml:"main_only"`
	Silent   bool `yaml:"silent"`
}

// Proxy holds the proxy.* config section. Parsed, never consulted — the
// HTTP dev-proxy layer is reserved and unimplemented.
type Proxy struct {
	Enabled   bool `yaml:"enabled"`
	ProxyPort int  `yaml:"proxy_port"`
	AppPort   int  `yaml:"app_port"`
}

// Screen holds the screen.* config section.
type Screen struct {
	ClearOnRebuild bool `yaml:"clear_on_rebuild"`
	KeepScroll     bool `yaml:"keep_scroll"`
}

// Misc holds the misc.* config section.
type Misc struct {
	CleanOnExit bool `yaml:"clean_on_exit"`
}

// Config is the fully-resolved, immutable configuration for a zeno run.
// Constructed once at startup by Load; read-only thereafter.
type Config struct {
	Root    string `yaml:"root"`
	TmpDir  string `yaml:"tmp_dir"`
	Build   Build  `yaml:"build"`
	Log     Log    `yaml:"log"`
	Proxy   Proxy  `yaml:"proxy"`
	Screen  Screen `yaml:"screen"`
	Misc    Misc   `yaml:"misc"`
}

// Defaults returns a Config populated with the documented default values.
func Defaults() *Config {
	return &Config{
		Root:   DefaultRoot,
		TmpDir: DefaultTmpDir,
		Build: Build{
			Cmd:             DefaultBuildCmd,
			Bin:             DefaultBuildBin,
			Log:             DefaultBuildLog,
			IncludeExt:      []string{"dart"},
			ExcludeDir:      []string{},
			IncludeDir:      []string{},
			ExcludeFile:     []string{},
			IncludeFile:     []string{},
			ExcludeRegex:    []string{},
			PreCmd:          []string{},
			PostCmd:         []string{},
			Args:            []string{},
			DelayMS:         DefaultDelayMS,
			KillDelayMS:     DefaultKillDelayMS,
			StopOnError:     false,
			ExcludeUnchanged: true,
			FollowSymlink:   false,
			Poll:            false,
			PollIntervalMS:  DefaultPollInterval,
		},
		Log: Log{
			AddTime:  false,
			MainOnly: false,
			Silent:   false,
		},
		Proxy: Proxy{
			Enabled:   false,
			ProxyPort: DefaultProxyPort,
			AppPort:   DefaultAppPort,
		},
		Screen: Screen{
			ClearOnRebuild: false,
			KeepScroll:     true,
		},
		Misc: Misc{
			CleanOnExit: false,
		},
	}
}

// partial mirrors Config but with pointer fields, so yaml.Unmarshal can
// distinguish "absent from the document" (nil) from "present with the
// zero value." Unknown keys in the document are ignored by yaml.v3 by
// default, matching the spec's "unknown keys ignored" requirement.
type partial struct {
	Root   *string        `yaml:"root"`
	TmpDir *string        `yaml:"tmp_dir"`
	Build  *partialBuild  `yaml:"build"`
	Log    *partialLog    `yaml:"log"`
	Proxy  *partialProxy  `yaml:"proxy"`
	Screen *partialScreen `yaml:"screen"`
	Misc   *partialMisc   `yaml:"misc"`
}

type partialBuild struct {
	Cmd              *string   `yaml:"cmd"`
	Bin              *string   `yaml:"bin"`
	Log              *string   `yaml:"log"`
	IncludeExt       *[]string `yaml:"include_ext"`
	ExcludeDir       *[]string `yaml:"exclude_dir"`
	IncludeDir       *[]string `yaml:"include_dir"`
	ExcludeFile      *[]string `yaml:"exclude_file"`
	IncludeFile      *[]string `yaml:"include_file"`
	ExcludeRegex     *[]string `yaml:"exclude_regex"`
	PreCmd           *[]string `yaml:"pre_cmd"`
	PostCmd          *[]string `yaml:"post_cmd"`
	Args             *[]string `yaml:"args"`
	DelayMS          *int      `yaml:"delay"`
	KillDelayMS      *int      `yaml:"kill_delay"`
	StopOnError      *bool     `yaml:"stop_on_error"`
	ExcludeUnchanged *bool     `yaml:"exclude_unchanged"`
	FollowSymlink    *bool     `yaml:"follow_symlink"`
	Poll             *bool     `yaml:"poll"`
	PollIntervalMS   *int      `yaml:"poll_interval"`
}

type partialLog struct {
	AddTime  *bool `yaml:"add_time"`
	MainOnly *bool `yaml:"main_only"`
	Silent   *bool `yaml:"silent"`
}

type partialProxy struct {
	Enabled   *bool `yaml:"enabled"`
	ProxyPort *int  `yaml:"proxy_port"`
	AppPort   *int  `yaml:"app_port"`
}

type partialScreen struct {
	ClearOnRebuild *bool `yaml:"clear_on_rebuild"`
	KeepScroll     *bool `yaml:"keep_scroll"`
}

type partialMisc struct {
	CleanOnExit *bool `yaml:"clean_on_exit"`
}

// Discover locates zeno.yml or .zeno.yml in dir, in that precedence.
func Discover(dir string) (string, error) {
	for _, name := range []string{"zeno.yml", ".zeno.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrConfigMissing
}

// Load reads and parses the config file at path, overlaying it onto the
// documented defaults. A missing file is reported via ErrConfigMissing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrConfigMissing
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Defaults()

	var p partial
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyPartial(cfg, &p)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyPartial(cfg *Config, p *partial) {
	if p.Root != nil {
		cfg.Root = *p.Root
	}
	if p.TmpDir != nil {
		cfg.TmpDir = *p.TmpDir
	}
	if p.Build != nil {
		applyPartialBuild(&cfg.Build, p.Build)
	}
	if p.Log != nil {
		if p.Log.AddTime != nil {
			cfg.Log.AddTime = *p.Log.AddTime
		}
		if p.Log.MainOnly != nil {
			cfg.Log.MainOnly = *p.Log.MainOnly
		}
		if p.Log.Silent != nil {
			cfg.Log.Silent = *p.Log.Silent
		}
	}
	if p.Proxy != nil {
		if p.Proxy.Enabled != nil {
			cfg.Proxy.Enabled = *p.Proxy.Enabled
		}
		if p.Proxy.ProxyPort != nil {
			cfg.Proxy.ProxyPort = *p.Proxy.ProxyPort
		}
		if p.Proxy.AppPort != nil {
			cfg.Proxy.AppPort = *p.Proxy.AppPort
		}
	}
	if p.Screen != nil {
		if p.Screen.ClearOnRebuild != nil {
			cfg.Screen.ClearOnRebuild = *p.Screen.ClearOnRebuild
		}
		if p.Screen.KeepScroll != nil {
			cfg.Screen.KeepScroll = *p.Screen.KeepScroll
		}
	}
	if p.Misc != nil {
		if p.Misc.CleanOnExit != nil {
			cfg.Misc.CleanOnExit = *p.Misc.CleanOnExit
		}
	}
}

func applyPartialBuild(b *Build, p *partialBuild) {
	if p.Cmd != nil {
		b.Cmd = *p.Cmd
	}
	if p.Bin != nil {
		b.Bin = *p.Bin
	}
	if p.Log != nil {
		b.Log = *p.Log
	}
	if p.IncludeExt != nil {
		b.IncludeExt = *p.IncludeExt
	}
	if p.ExcludeDir != nil {
		b.ExcludeDir = *p.ExcludeDir
	}
	if p.IncludeDir != nil {
		b.IncludeDir = *p.IncludeDir
	}
	if p.ExcludeFile != nil {
		b.ExcludeFile = *p.ExcludeFile
	}
	if p.IncludeFile != nil {
		b.IncludeFile = *p.IncludeFile
	}
	if p.ExcludeRegex != nil {
		b.ExcludeRegex = *p.ExcludeRegex
	}
	if p.PreCmd != nil {
		b.PreCmd = *p.PreCmd
	}
	if p.PostCmd != nil {
		b.PostCmd = *p.PostCmd
	}
	if p.Args != nil {
		b.Args = *p.Args
	}
	if p.DelayMS != nil {
		b.DelayMS = *p.DelayMS
	}
	if p.KillDelayMS != nil {
		b.KillDelayMS = *p.KillDelayMS
	}
	if p.StopOnError != nil {
		b.StopOnError = *p.StopOnError
	}
	if p.ExcludeUnchanged != nil {
		b.ExcludeUnchanged = *p.ExcludeUnchanged
	}
	if p.FollowSymlink != nil {
		b.FollowSymlink = *p.FollowSymlink
	}
	if p.Poll != nil {
		b.Poll = *p.Poll
	}
	if p.PollIntervalMS != nil {
		b.PollIntervalMS = *p.PollIntervalMS
	}
}

// Validate rejects configurations that would misbehave rather than fail
// loudly — a negative delay would make the debounce timer fire
// immediately on every event, defeating its purpose, polling needs a
// positive interval, and an empty binary path has no sensible derived
// staging/backup path. A delay of zero is accepted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Build.Bin) == "" {
		return errors.New("build.bin must not be empty")
	}
	if strings.TrimSpace(c.Build.Cmd) == "" {
		return errors.New("build.cmd must not be empty")
	}
	if c.Build.DelayMS < 0 {
		return errors.New("build.delay must not be negative")
	}
	if c.Build.KillDelayMS < 0 {
		return errors.New("build.kill_delay must not be negative")
	}
	if c.Build.Poll && c.Build.PollIntervalMS <= 0 {
		return errors.New("build.poll_interval must be positive when build.poll is true")
	}
	return nil
}

// Marshal serializes the config back to the documented YAML schema. Used
// by String and by round-trip tests.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// BinPath returns the absolute path to the live binary.
func (c *Config) BinPath() string {
	if filepath.IsAbs(c.Build.Bin) {
		return c.Build.Bin
	}
	return filepath.Join(c.Root, c.Build.Bin)
}

// TmpPath returns the absolute path to the tmp_dir.
func (c *Config) TmpPath() string {
	return filepath.Join(c.Root, c.TmpDir)
}

// BuildLogPath returns the absolute path to the build error log.
func (c *Config) BuildLogPath() string {
	return filepath.Join(c.TmpPath(), c.Build.Log)
}

// StagingPath returns the build.bin-relative path the builder writes
// rebuilt binaries to, in the same form as build.bin itself (so it can be
// string-substituted into build.cmd). The "_new" suffix is inserted
// before the file extension so that "foo.exe" becomes "foo_new.exe"
// rather than "foo.exe_new".
func (c *Config) StagingPath() string {
	return AddSuffixBeforeExt(c.Build.Bin, "_new")
}

// StagingBinPath returns the absolute filesystem path to the staging
// binary, resolved the same way BinPath resolves build.bin.
func (c *Config) StagingBinPath() string {
	staging := c.StagingPath()
	if filepath.IsAbs(staging) {
		return staging
	}
	return filepath.Join(c.Root, staging)
}

// AddSuffixBeforeExt inserts suffix immediately before the final
// extension of path, or appends it if path has no extension.
func AddSuffixBeforeExt(path, suffix string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return path + suffix
	}
	return strings.TrimSuffix(path, ext) + suffix + ext
}

// BackupPath returns the transient backup path for the live binary. It is
// written during the swap step of a reload cycle and deleted about 30
// seconds later by the supervisor's scheduled cleanup.
func BackupPath(binPath string) string {
	return binPath + ".backup"
}

// String renders the resolved config back to YAML for --verbose startup
// logging. Marshal failures fall back to a one-line error notice rather
// than panicking, since String is only ever used for diagnostics.
func (c *Config) String() string {
	data, err := c.Marshal()
	if err != nil {
		return fmt.Sprintf("<config marshal error: %v>", err)
	}
	return string(data)
}
