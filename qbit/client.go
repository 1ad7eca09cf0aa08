package qbit

import (
	"context"
	"fmt"
	stdlog "log"
	"net"
	"strconv"
	"strings"
	"sync"

	qbittorrent "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jkaberg/reseed/config"
	dlog "github.com/jkaberg/reseed/log"
)

// AddOptions are the per-torrent parameters of a torrents/add call.
type AddOptions struct {
	// SavePath is omitted when empty so qBittorrent uses its default location.
	SavePath     string
	AutoManage   bool
	SkipChecking bool
	Paused       bool
}

// ReseedOptions returns the options used to register existing content: no
// automatic torrent management, no recheck, start right away.
func ReseedOptions(savePath string) AddOptions {
	return AddOptions{
		SavePath:     savePath,
		AutoManage:   false,
		SkipChecking: true,
		Paused:       false,
	}
}

func (o AddOptions) form() map[string]string {
	m := map[string]string{
		"autoTMM":       strconv.FormatBool(o.AutoManage),
		"skip_checking": strconv.FormatBool(o.SkipChecking),
		// qBittorrent 5 renamed paused to stopped
		"paused":  strconv.FormatBool(o.Paused),
		"stopped": strconv.FormatBool(o.Paused),
	}
	if o.SavePath != "" {
		m["savepath"] = o.SavePath
	}
	return m
}

type api interface {
	LoginCtx(ctx context.Context) error
	AddTorrentFromMemoryCtx(ctx context.Context, buf []byte, options map[string]string) error
}

// Client is a logged in qBittorrent WebUI session shared by all import
// tasks. Calls into the underlying client are serialized.
type Client struct {
	mu  sync.Mutex
	api api
	log zerolog.Logger
}

// Connect logs into the WebUI. A failed login is fatal for the batch.
func Connect(ctx context.Context, conf *config.QBittorrent) (*Client, error) {
	l := log.Logger.With().Str("component", "qbittorrent").Logger()

	host := URL(conf)
	qc := qbittorrent.NewClient(qbittorrent.Config{
		Host:          host,
		Username:      conf.Username,
		Password:      conf.Password,
		TLSSkipVerify: conf.TLSSkipVerify,
		Timeout:       conf.Timeout,
		Log:           stdlog.New(&dlog.Qbit{L: l}, "", 0),
	})

	c := &Client{api: qc, log: l}
	if err := c.login(ctx); err != nil {
		return nil, fmt.Errorf("could not connect to qBittorrent at %s: %w", host, err)
	}

	l.Info().Str("host", host).Msg("connected to qBittorrent Web API")
	return c, nil
}

// URL builds the WebUI base URL. A host that already carries a scheme is
// used verbatim.
func URL(conf *config.QBittorrent) string {
	if strings.Contains(conf.Host, "://") {
		return conf.Host
	}

	scheme := "http"
	if conf.TLS {
		scheme = "https"
	}

	return scheme + "://" + net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))
}

func (c *Client) login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.api.LoginCtx(ctx)
}

// AddTorrent uploads a .torrent file. Whether a duplicate is rejected is up
// to qBittorrent.
func (c *Client) AddTorrent(ctx context.Context, data []byte, opts AddOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.api.AddTorrentFromMemoryCtx(ctx, data, opts.form()); err != nil {
		return fmt.Errorf("error adding torrent: %w", err)
	}

	return nil
}
