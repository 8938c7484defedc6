package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = "/usr/local/var/kensaku/index"
	}
	if cfg.Index.Suffix == "" {
		cfg.Index.Suffix = ".txt"
	}
	if cfg.Index.MaxBufferedDocs == 0 {
		cfg.Index.MaxBufferedDocs = 10000
	}
	if cfg.Search.DefaultField == "" {
		cfg.Search.DefaultField = "CONTENT"
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.MaxExpansions == 0 {
		cfg.Search.MaxExpansions = 1024
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 500
	}
}
