package kartrepo

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/kart-vcs/kart/internal/kerr"
)

// configFileName is the process-level config Kart persists inside the
// private directory, distinct from the repostructure-version blob that
// lives *inside* each commit's tree.
const configFileName = "kart.config"

// WorkingCopyKind names the supported working-copy backends.
type WorkingCopyKind string

const (
	WorkingCopyGPKG       WorkingCopyKind = "gpkg"
	WorkingCopyPostgres   WorkingCopyKind = "postgres"
	WorkingCopySQLServer  WorkingCopyKind = "sqlserver"
	WorkingCopyTileFolder WorkingCopyKind = "tile-folder"
)

// SpatialFilter is the persisted representation of a spatial-filter/partial
// clone specification; only its persisted shape matters to the core.
type SpatialFilter struct {
	Enabled bool   `toml:"enabled"`
	CRS     string `toml:"crs,omitempty"`
	// GeometryWKT is the filter geometry in well-known text.
	GeometryWKT string `toml:"geometry_wkt,omitempty"`
}

// Config is Kart's process-level, per-repository configuration:
// repository version, working-copy location/kind, bare-ness, and an
// optional spatial filter.
type Config struct {
	// Version is the repository version, 1-3. Only >= 2 is fully supported
	// (legacy V1 is read-rejected with a pointer at upgrade tooling, per
	// Open Questions).
	Version int `toml:"version"`

	Bare bool `toml:"bare"`

	WorkingCopyKind     WorkingCopyKind `toml:"working_copy_kind,omitempty"`
	WorkingCopyLocation string          `toml:"working_copy_location,omitempty"`

	SpatialFilter *SpatialFilter `toml:"spatial_filter,omitempty"`
}

// DefaultConfig returns the configuration written by `kart init`.
func DefaultConfig() *Config {
	return &Config{Version: 3}
}

// Load reads the config file from the repository's private directory.
func Load(privateDir string) (*Config, error) {
	var cfg Config
	path := filepath.Join(privateDir, configFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, kerr.New(kerr.NotFound, "%s: no Kart config found", path)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "decoding %s", path)
	}
	if cfg.Version < 1 || cfg.Version > 3 {
		return nil, kerr.New(kerr.IntegrityError, "%s: unsupported repository version %d", path, cfg.Version)
	}
	if cfg.Version == 1 {
		return nil, kerr.New(kerr.InvalidOperation,
			"repository version 1 (legacy .sno-table layout) is not supported; run the upgrade tool first")
	}
	return &cfg, nil
}

// Save writes the config file atomically (write to a tempfile, then
// rename), so a crash mid-write never leaves a half-written config behind.
func (c *Config) Save(privateDir string) error {
	path := filepath.Join(privateDir, configFileName)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "creating %s", tmp)
	}
	enc := toml.NewEncoder(f)
	if err := enc.Encode(c); err != nil {
		f.Close()
		os.Remove(tmp)
		return kerr.Wrap(kerr.IntegrityError, err, "encoding config")
	}
	if err := f.Close(); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "closing %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "renaming %s into place", tmp)
	}
	return nil
}

// RepoStructureVersionBlobPath is the path, inside a commit's root tree, of
// the blob that records which dataset-format version applies to that
// commit.
const RepoStructureVersionBlobPath = ".kart.repostructure.version"
