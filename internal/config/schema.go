package config

// Config is the top-level YAML structure. It is constructed once at
// startup and passed by reference into every component; nothing
// mutates it afterwards.
type Config struct {
	Server  ServerConf  `yaml:"server"`
	Storage StorageConf `yaml:"storage"`
	Auth    AuthConf    `yaml:"auth"`
}

// ServerConf holds the HTTP listener settings.
type ServerConf struct {
	Addr string `yaml:"addr"`

	// TLSCert and TLSKey enable HTTPS when both are set. The pair is
	// hot-reloaded when the files change on disk.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`

	// StaticDir is served under /ui/ when the directory exists.
	StaticDir string `yaml:"static_dir"`
}

// StorageConf holds the storage engine settings.
type StorageConf struct {
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
}

// AuthConf holds the shared-secret credential for write paths. The
// key may also come from the BEACON_API_KEY environment variable,
// which takes precedence over the file.
type AuthConf struct {
	APIKey string `yaml:"api_key"`
}
