package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/moodlesync/moodlesync/internal/errors"
)

// FileName is the configuration file's name inside the storage directory.
const FileName = "config.json"

// Config holds the mirror configuration. The JSON keys follow the
// config.json users already have, so an existing file keeps working.
type Config struct {
	// Token is the Moodle webservice token obtained via `moodlesync token`
	// or the init wizard.
	Token string `json:"token,omitempty"`

	// MoodleDomain is the host name of the Moodle instance, without scheme.
	MoodleDomain string `json:"moodle_domain,omitempty"`

	// MoodlePath is the URL path the instance is served under, "/" for most.
	MoodlePath string `json:"moodle_path,omitempty"`

	// DownloadCourseIDs restricts syncing to the listed courses.
	// Empty means every enrolled course.
	DownloadCourseIDs []int64 `json:"download_course_ids,omitempty"`

	// DontDownloadCourseIDs excludes the listed courses. Exclusion wins
	// over DownloadCourseIDs.
	DontDownloadCourseIDs []int64 `json:"dont_download_course_ids,omitempty"`

	DownloadSubmissions  bool `json:"download_submissions,omitempty"`
	DownloadDescriptions bool `json:"download_descriptions,omitempty"`
	DownloadDatabases    bool `json:"download_databases,omitempty"`

	// DownloadLinkedFiles also downloads files that course pages merely
	// link to on other hosts, subject to the domain lists below.
	DownloadLinkedFiles      bool     `json:"download_linked_files,omitempty"`
	DownloadDomainsWhitelist []string `json:"download_domains_whitelist,omitempty"`
	DownloadDomainsBlacklist []string `json:"download_domains_blacklist,omitempty"`

	// ExcludeFilePatterns drops files whose mirror path matches any of
	// these doublestar globs, e.g. "**/*.mp4".
	ExcludeFilePatterns []string `json:"exclude_file_patterns,omitempty"`

	// CourseOptions carries per-course overrides, keyed by course id.
	CourseOptions map[string]CourseOptions `json:"options_of_courses,omitempty"`

	// SyncThreads sizes the download worker pool.
	SyncThreads int `json:"sync_threads,omitempty"`

	// RequestTimeout bounds a single webservice or download request,
	// in seconds.
	RequestTimeout int `json:"request_timeout,omitempty"`

	// SkipCertVerify disables TLS certificate verification, for instances
	// behind self-signed certificates.
	SkipCertVerify bool `json:"skip_cert_verify,omitempty"`

	// Mail enables the e-mail change report when set.
	Mail *MailConfig `json:"mail,omitempty"`
}

// CourseOptions are per-course overrides.
type CourseOptions struct {
	// OverwriteName replaces the course's directory name.
	OverwriteName string `json:"overwrite_name_with,omitempty"`

	// CreateDirStructure controls whether section and module directories
	// are created under the course directory. Unset means true.
	CreateDirStructure *bool `json:"create_directory_structure,omitempty"`
}

// MailConfig is the SMTP setup for mailed change reports.
type MailConfig struct {
	Host     string   `json:"host"`
	Port     int      `json:"port,omitempty"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	From     string   `json:"from"`
	To       []string `json:"to"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MoodlePath:     "/",
		SyncThreads:    5,
		RequestTimeout: 60,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of a
// real storage directory.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, FileName))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Save writes the configuration to baseDir/config.json with restricted
// permissions, via a temp file so a crash cannot leave a half-written
// config behind.
func Save(baseDir string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.NewInternal(err)
	}
	data = append(data, '\n')

	path := filepath.Join(baseDir, FileName)
	tmp, err := os.CreateTemp(baseDir, FileName+".tmp-*")
	if err != nil {
		return errors.NewInternal(err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewInternal(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewInternal(err)
	}
	// The token lives in here.
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return errors.NewInternal(err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.NewInternal(err)
	}
	return nil
}

// Exists reports whether a config file is present in baseDir.
func Exists(baseDir string) bool {
	_, err := os.Stat(filepath.Join(baseDir, FileName))
	return err == nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return zero config
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot parse %s: %s", configPath, err))
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and
// deduplicated; booleans are or-ed.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.Token = overlay.Token
	if result.Token == "" {
		result.Token = base.Token
	}
	result.MoodleDomain = overlay.MoodleDomain
	if result.MoodleDomain == "" {
		result.MoodleDomain = base.MoodleDomain
	}
	result.MoodlePath = overlay.MoodlePath
	if result.MoodlePath == "" {
		result.MoodlePath = base.MoodlePath
	}
	result.SyncThreads = overlay.SyncThreads
	if result.SyncThreads == 0 {
		result.SyncThreads = base.SyncThreads
	}
	result.RequestTimeout = overlay.RequestTimeout
	if result.RequestTimeout == 0 {
		result.RequestTimeout = base.RequestTimeout
	}

	// Booleans: overlay wins if true, else base
	result.DownloadSubmissions = base.DownloadSubmissions || overlay.DownloadSubmissions
	result.DownloadDescriptions = base.DownloadDescriptions || overlay.DownloadDescriptions
	result.DownloadDatabases = base.DownloadDatabases || overlay.DownloadDatabases
	result.DownloadLinkedFiles = base.DownloadLinkedFiles || overlay.DownloadLinkedFiles
	result.SkipCertVerify = base.SkipCertVerify || overlay.SkipCertVerify

	// Arrays: merge and deduplicate
	result.DownloadCourseIDs = mergeInt64Slice(base.DownloadCourseIDs, overlay.DownloadCourseIDs)
	result.DontDownloadCourseIDs = mergeInt64Slice(base.DontDownloadCourseIDs, overlay.DontDownloadCourseIDs)
	result.DownloadDomainsWhitelist = mergeStringSlice(base.DownloadDomainsWhitelist, overlay.DownloadDomainsWhitelist)
	result.DownloadDomainsBlacklist = mergeStringSlice(base.DownloadDomainsBlacklist, overlay.DownloadDomainsBlacklist)
	result.ExcludeFilePatterns = mergeStringSlice(base.ExcludeFilePatterns, overlay.ExcludeFilePatterns)

	// Maps and pointers: overlay entries win
	if len(base.CourseOptions) > 0 || len(overlay.CourseOptions) > 0 {
		result.CourseOptions = make(map[string]CourseOptions, len(base.CourseOptions)+len(overlay.CourseOptions))
		for k, v := range base.CourseOptions {
			result.CourseOptions[k] = v
		}
		for k, v := range overlay.CourseOptions {
			result.CourseOptions[k] = v
		}
	}
	result.Mail = overlay.Mail
	if result.Mail == nil {
		result.Mail = base.Mail
	}

	return result
}

// Configured reports whether the minimum for talking to a Moodle instance
// is present.
func (c *Config) Configured() bool {
	return c.Token != "" && c.MoodleDomain != ""
}

// Validate checks the configuration for values that would fail later in a
// less obvious way.
func (c *Config) Validate() error {
	for _, pattern := range c.ExcludeFilePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return errors.NewInvalidRequest(fmt.Sprintf("invalid exclude pattern %q", pattern))
		}
	}
	if c.SyncThreads < 0 {
		return errors.NewInvalidRequest("sync_threads must be positive")
	}
	if c.RequestTimeout < 0 {
		return errors.NewInvalidRequest("request_timeout must be positive")
	}
	if c.Mail != nil {
		if c.Mail.Host == "" {
			return errors.NewInvalidRequest("mail.host is required when mail is configured")
		}
		if c.Mail.From == "" {
			return errors.NewInvalidRequest("mail.from is required when mail is configured")
		}
		if len(c.Mail.To) == 0 {
			return errors.NewInvalidRequest("mail.to is required when mail is configured")
		}
		if c.Mail.Port < 0 || c.Mail.Port > 65535 {
			return errors.NewInvalidRequest("mail.port out of range")
		}
	}
	return nil
}

// BaseURL assembles the instance's https base URL from domain and path,
// with exactly one trailing slash.
func (c *Config) BaseURL() string {
	domain := strings.TrimPrefix(c.MoodleDomain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimRight(domain, "/")

	path := c.MoodlePath
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return "https://" + domain + path
}

// CourseOption returns the overrides for a course, zero-valued when none
// are configured.
func (c *Config) CourseOption(id int64) CourseOptions {
	if c.CourseOptions == nil {
		return CourseOptions{}
	}
	return c.CourseOptions[strconv.FormatInt(id, 10)]
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// mergeInt64Slice combines two id slices and removes duplicates.
func mergeInt64Slice(a, b []int64) []int64 {
	seen := make(map[int64]bool)
	result := make([]int64, 0, len(a)+len(b))

	for _, lst := range [][]int64{a, b} {
		for _, v := range lst {
			if !seen[v] {
				seen[v] = true
				result = append(result, v)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
