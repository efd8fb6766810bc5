// Package config defines the persisted configuration record and the state
// store that loads, merges, and saves it across provisioning runs.
package config

// Record is the full set of settings one provisioning pass applies. It is
// persisted as TOML; unknown keys in an on-disk file are ignored so older
// binaries can read state written by newer ones.
type Record struct {
	// PostgreSQL server settings.
	ListenAddresses    string `toml:"listen_addresses"`
	Port               int    `toml:"port"`
	SharedBuffers      string `toml:"shared_buffers"`
	WorkMem            string `toml:"work_mem"`
	MaintenanceWorkMem string `toml:"maintenance_work_mem"`
	EffectiveCacheSize string `toml:"effective_cache_size"`
	MaxWALSize         string `toml:"max_wal_size"`
	MinWALSize         string `toml:"min_wal_size"`
	LogMinMessages     string `toml:"log_min_messages"`

	// TLS.
	SSL         bool   `toml:"ssl"`
	SSLCertFile string `toml:"ssl_cert_file"`
	SSLKeyFile  string `toml:"ssl_key_file"`

	// WAL archiving.
	WALArchive    bool   `toml:"wal_archive"`
	WALArchiveDir string `toml:"wal_archive_dir"`

	// Network access.
	AllowList []string `toml:"allow_list"`

	// Backups.
	BackupDir     string `toml:"backup_dir"`
	RetentionDays int    `toml:"retention_days"`
	S3Bucket      string `toml:"s3_bucket"`
	S3Region      string `toml:"s3_region"`
	S3Endpoint    string `toml:"s3_endpoint"`
	S3Prefix      string `toml:"s3_prefix"`

	// PgBouncer.
	PoolerEnabled   bool   `toml:"pooler_enabled"`
	PoolMode        string `toml:"pool_mode"`
	MaxClientConn   int    `toml:"max_client_conn"`
	DefaultPoolSize int    `toml:"default_pool_size"`
	AuthType        string `toml:"auth_type"` // "md5" or "scram-sha-256"
}

// Defaults returns the compiled-in record used on a fresh host and to fill
// fields absent from a persisted state file.
func Defaults() Record {
	return Record{
		ListenAddresses:    "localhost",
		Port:               5432,
		SharedBuffers:      "256MB",
		WorkMem:            "16MB",
		MaintenanceWorkMem: "64MB",
		EffectiveCacheSize: "768MB",
		MaxWALSize:         "1GB",
		MinWALSize:         "80MB",
		LogMinMessages:     "warning",

		SSLCertFile: "/etc/ssl/certs/ssl-cert-snakeoil.pem",
		SSLKeyFile:  "/etc/ssl/private/ssl-cert-snakeoil.key",

		WALArchiveDir: "/var/lib/pgward/wal-archive",

		BackupDir:     "/var/backups/pgward",
		RetentionDays: 14,
		S3Region:      "us-east-1",
		S3Prefix:      "pgward/",

		PoolMode:        "transaction",
		MaxClientConn:   100,
		DefaultPoolSize: 20,
		AuthType:        "scram-sha-256",
	}
}

// Overrides carries caller-supplied values (interactive answers or CLI
// flags). Only non-nil fields change the loaded record on Merge.
type Overrides struct {
	ListenAddresses    *string
	Port               *int
	SharedBuffers      *string
	WorkMem            *string
	MaintenanceWorkMem *string
	EffectiveCacheSize *string
	MaxWALSize         *string
	MinWALSize         *string
	LogMinMessages     *string

	SSL         *bool
	SSLCertFile *string
	SSLKeyFile  *string

	WALArchive    *bool
	WALArchiveDir *string

	AllowList *[]string

	BackupDir     *string
	RetentionDays *int
	S3Bucket      *string
	S3Region      *string
	S3Endpoint    *string
	S3Prefix      *string

	PoolerEnabled   *bool
	PoolMode        *string
	MaxClientConn   *int
	DefaultPoolSize *int
	AuthType        *string
}

// Merge applies o on top of base. Unspecified fields retain the base value.
func Merge(base Record, o Overrides) Record {
	r := base
	if o.ListenAddresses != nil {
		r.ListenAddresses = *o.ListenAddresses
	}
	if o.Port != nil {
		r.Port = *o.Port
	}
	if o.SharedBuffers != nil {
		r.SharedBuffers = *o.SharedBuffers
	}
	if o.WorkMem != nil {
		r.WorkMem = *o.WorkMem
	}
	if o.MaintenanceWorkMem != nil {
		r.MaintenanceWorkMem = *o.MaintenanceWorkMem
	}
	if o.EffectiveCacheSize != nil {
		r.EffectiveCacheSize = *o.EffectiveCacheSize
	}
	if o.MaxWALSize != nil {
		r.MaxWALSize = *o.MaxWALSize
	}
	if o.MinWALSize != nil {
		r.MinWALSize = *o.MinWALSize
	}
	if o.LogMinMessages != nil {
		r.LogMinMessages = *o.LogMinMessages
	}
	if o.SSL != nil {
		r.SSL = *o.SSL
	}
	if o.SSLCertFile != nil {
		r.SSLCertFile = *o.SSLCertFile
	}
	if o.SSLKeyFile != nil {
		r.SSLKeyFile = *o.SSLKeyFile
	}
	if o.WALArchive != nil {
		r.WALArchive = *o.WALArchive
	}
	if o.WALArchiveDir != nil {
		r.WALArchiveDir = *o.WALArchiveDir
	}
	if o.AllowList != nil {
		r.AllowList = append([]string(nil), (*o.AllowList)...)
	}
	if o.BackupDir != nil {
		r.BackupDir = *o.BackupDir
	}
	if o.RetentionDays != nil {
		r.RetentionDays = *o.RetentionDays
	}
	if o.S3Bucket != nil {
		r.S3Bucket = *o.S3Bucket
	}
	if o.S3Region != nil {
		r.S3Region = *o.S3Region
	}
	if o.S3Endpoint != nil {
		r.S3Endpoint = *o.S3Endpoint
	}
	if o.S3Prefix != nil {
		r.S3Prefix = *o.S3Prefix
	}
	if o.PoolerEnabled != nil {
		r.PoolerEnabled = *o.PoolerEnabled
	}
	if o.PoolMode != nil {
		r.PoolMode = *o.PoolMode
	}
	if o.MaxClientConn != nil {
		r.MaxClientConn = *o.MaxClientConn
	}
	if o.DefaultPoolSize != nil {
		r.DefaultPoolSize = *o.DefaultPoolSize
	}
	if o.AuthType != nil {
		r.AuthType = *o.AuthType
	}
	return r
}
