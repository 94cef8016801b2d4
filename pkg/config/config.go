package config

// Config is the root application configuration. yaml tags drive parsing,
// validate tags drive the startup validation pass.

type Config struct {
	Logger LoggerConfig `yaml:"logger" validate:"required"`
	Server ServerConfig `yaml:"http-server" validate:"required"`
	DB     `yaml:"db" validate:"required"`
}

type ServerConfig struct {
	Port int `yaml:"port" validate:"required,min=1,max=65535"`
}

type DB struct {
	Memtable    MemtableConfig    `yaml:"memtable" validate:"required"`
	Persistence PersistenceConfig `yaml:"persistence" validate:"required"`
}

type MemtableConfig struct {
	FlushThresholdBytes int64 `yaml:"flush_threshold" validate:"required,min=1"`
	FlushChanBuffSize   int   `yaml:"flush_chan_buff_size" validate:"required,min=1"`
}

type PersistenceConfig struct {
	RootPath   string           `yaml:"path" validate:"required"`
	SSTable    SSTableConfig    `yaml:"sstable" validate:"required"`
	Cache      CacheConfig      `yaml:"cache" validate:"required"`
	Compaction CompactionConfig `yaml:"compaction" validate:"required"`
}

type SSTableConfig struct {
	// PartSize is the number of commands per data block.
	PartSize uint64 `yaml:"part_size" validate:"required,min=1"`
}

type CacheConfig struct {
	TableCapacity int `yaml:"table_capacity" validate:"required,min=1"`
	BlockCapacity int `yaml:"block_capacity" validate:"required,min=1"`
	Shards        int `yaml:"shards" validate:"required,min=1"`
}

type CompactionConfig struct {
	// Threshold is the table count at a level that triggers a major
	// compaction into the next level.
	Threshold int `yaml:"threshold" validate:"required,min=2"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		DB: DB{
			Memtable: MemtableConfig{
				FlushThresholdBytes: 4 << 20,
				FlushChanBuffSize:   3,
			},
			Persistence: PersistenceConfig{
				RootPath: "./data",
				SSTable: SSTableConfig{
					PartSize: 64,
				},
				Cache: CacheConfig{
					TableCapacity: 64,
					BlockCapacity: 1024,
					Shards:        4,
				},
				Compaction: CompactionConfig{
					Threshold: 4,
				},
			},
		},
	}
}
