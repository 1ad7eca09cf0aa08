package config

import (
	"errors"
	"fmt"
)

const (
	RemoteSSH   = "ssh"
	RemoteLocal = "local"
)

// Root is the main yaml config object
type Root struct {
	QBittorrent *QBittorrent `yaml:"qbittorrent"`
	Remote      *Remote      `yaml:"remote"`
	Import      *Import      `yaml:"import"`
	Log         *Log         `yaml:"log"`
}

type Log struct {
	Debug      bool   `yaml:"debug"`
	MaxBackups int    `yaml:"max_backups"`
	MaxSize    int    `yaml:"max_size"`
	MaxAge     int    `yaml:"max_age"`
	Path       string `yaml:"path"`
}

// QBittorrent holds the WebUI address and credentials of the download service.
type QBittorrent struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	TLS           bool   `yaml:"tls,omitempty"`
	TLSSkipVerify bool   `yaml:"tls_skip_verify,omitempty"`
	// Timeout in seconds for every WebUI request
	Timeout int `yaml:"timeout,omitempty"`
}

// Remote describes where the already downloaded content lives. Type "ssh"
// probes a remote host; "local" probes a mounted directory.
type Remote struct {
	Type       string `yaml:"type"`
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	User       string `yaml:"user,omitempty"`
	Password   string `yaml:"password,omitempty"`
	KeyFile    string `yaml:"key_file,omitempty"`
	KnownHosts string `yaml:"known_hosts,omitempty"`
	BaseDir    string `yaml:"base_dir"`

	// timeouts in seconds
	ProbeTimeout int `yaml:"probe_timeout,omitempty"`
	ListTimeout  int `yaml:"list_timeout,omitempty"`

	ProbesPerSecond float64 `yaml:"probes_per_second,omitempty"`
}

type Import struct {
	TorrentDir   string `yaml:"torrent_dir"`
	LocalBaseDir string `yaml:"local_base_dir"`
	Workers      int    `yaml:"workers"`
}

func AddDefaults(r *Root) *Root {
	if r.QBittorrent == nil {
		r.QBittorrent = &QBittorrent{}
	}

	if r.QBittorrent.Host == "" {
		r.QBittorrent.Host = "localhost"
	}

	if r.QBittorrent.Port == 0 {
		r.QBittorrent.Port = 8080
	}

	if r.QBittorrent.Username == "" {
		r.QBittorrent.Username = "admin"
	}

	if r.QBittorrent.Password == "" {
		r.QBittorrent.Password = "adminadmin"
	}

	if r.QBittorrent.Timeout == 0 {
		r.QBittorrent.Timeout = 30
	}

	if r.Remote == nil {
		r.Remote = &Remote{}
	}

	if r.Remote.Type == "" {
		r.Remote.Type = RemoteSSH
	}

	if r.Remote.Port == 0 {
		r.Remote.Port = 22
	}

	if r.Remote.BaseDir == "" {
		r.Remote.BaseDir = mediaFolder
	}

	if r.Remote.ProbeTimeout == 0 {
		r.Remote.ProbeTimeout = 5
	}

	if r.Remote.ListTimeout == 0 {
		r.Remote.ListTimeout = 5
	}

	if r.Import == nil {
		r.Import = &Import{}
	}

	if r.Import.TorrentDir == "" {
		r.Import.TorrentDir = torrentFolder
	}

	if r.Import.LocalBaseDir == "" {
		r.Import.LocalBaseDir = mediaFolder
	}

	if r.Import.Workers == 0 {
		r.Import.Workers = 10
	}

	if r.Log == nil {
		r.Log = &Log{}
	}

	return r
}

// Validate reports configuration that would make a batch impossible to start.
func (r *Root) Validate() error {
	var errs []error

	switch r.Remote.Type {
	case RemoteSSH:
		if r.Remote.Host == "" {
			errs = append(errs, errors.New("remote.host is required for ssh remotes"))
		}
		if r.Remote.User == "" {
			errs = append(errs, errors.New("remote.user is required for ssh remotes"))
		}
	case RemoteLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown remote.type %q", r.Remote.Type))
	}

	if r.Remote.BaseDir == "" {
		errs = append(errs, errors.New("remote.base_dir is required"))
	}

	if r.Import.Workers < 1 {
		errs = append(errs, fmt.Errorf("import.workers must be at least 1, got %d", r.Import.Workers))
	}

	if r.Remote.ProbesPerSecond < 0 {
		errs = append(errs, errors.New("remote.probes_per_second cannot be negative"))
	}

	return errors.Join(errs...)
}
