package conf

import (
	"path/filepath"

	"github.com/juju/errors"
	"gopkg.in/ini.v1"
)

// 默认配置
const (
	DefaultBufferPoolPages = 512
	DefaultReplacerK       = 2
	DefaultDataDir         = "data"
	DefaultDataFile        = "xstorage.ibd"
	DefaultLogLevel        = "info"
)

// Cfg 存储引擎配置
type Cfg struct {
	Raw *ini.File

	// storage
	DataDir         string
	DataFile        string
	BufferPoolPages int
	ReplacerK       int

	// logs
	LogPath  string
	LogLevel string
}

// NewCfg returns a config populated with defaults.
func NewCfg() *Cfg {
	return &Cfg{
		Raw:             ini.Empty(),
		DataDir:         DefaultDataDir,
		DataFile:        DefaultDataFile,
		BufferPoolPages: DefaultBufferPoolPages,
		ReplacerK:       DefaultReplacerK,
		LogLevel:        DefaultLogLevel,
	}
}

// Load reads the ini file, keeping defaults for absent keys.
func Load(configPath string) (*Cfg, error) {
	cfg := NewCfg()
	if configPath == "" {
		return cfg, nil
	}

	raw, err := ini.Load(configPath)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to load config %s", configPath)
	}
	cfg.Raw = raw

	storage := raw.Section("storage")
	cfg.DataDir = storage.Key("data_dir").MustString(DefaultDataDir)
	cfg.DataFile = storage.Key("data_file").MustString(DefaultDataFile)
	cfg.BufferPoolPages = storage.Key("buffer_pool_pages").MustInt(DefaultBufferPoolPages)
	cfg.ReplacerK = storage.Key("replacer_k").MustInt(DefaultReplacerK)

	logs := raw.Section("logs")
	cfg.LogPath = logs.Key("log_path").MustString("")
	cfg.LogLevel = logs.Key("log_level").MustString(DefaultLogLevel)

	if cfg.BufferPoolPages <= 0 {
		return nil, errors.Errorf("buffer_pool_pages must be positive, got %d", cfg.BufferPoolPages)
	}
	if cfg.ReplacerK <= 0 {
		return nil, errors.Errorf("replacer_k must be positive, got %d", cfg.ReplacerK)
	}
	return cfg, nil
}

// DataFilePath returns the full path of the data file.
func (c *Cfg) DataFilePath() string {
	return filepath.Join(c.DataDir, c.DataFile)
}
