// Package launcher opens a web browser on the viewer page of a report.
package launcher

import (
	"io"
	"net"
	"net/url"
	"strconv"

	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"
)

// Config contains the parameters used to build viewer URLs
type Config struct {
	// Server and Port are where the proxy serves the viewer.
	Server string
	Port   int

	// UseNode points viewers at a node development server on localhost
	// instead of the proxy.
	UseNode  bool
	NodePort int

	// Open opens a URL.  Defaults to browser.OpenURL.
	Open func(url string) error

	Logger *logrus.Logger
}

// Browser launches viewers in the user's web browser.
type Browser struct {
	host   string
	port   int
	open   func(url string) error
	logger *logrus.Logger
}

// New creates a Browser launcher.
func New(conf Config) *Browser {
	b := &Browser{
		host:   conf.Server,
		port:   conf.Port,
		open:   conf.Open,
		logger: conf.Logger,
	}

	if conf.UseNode {
		b.host, b.port = "localhost", conf.NodePort
	}

	if b.open == nil {
		// Discard whatever the browser dumps to stdout / stderr
		browser.Stderr = io.Discard
		browser.Stdout = io.Discard
		b.open = browser.OpenURL
	}

	if b.logger == nil {
		logger, _ := nullLog.NewNullLogger()
		b.logger = logger
	}
	return b
}

// ViewerURL returns the URL of the viewer page for the named report.
func (b *Browser) ViewerURL(name string) string {
	u := url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(b.host, strconv.Itoa(b.port)),
		Path:     "/",
		RawQuery: url.Values{"name": {name}}.Encode(),
	}
	return u.String()
}

// LaunchViewer opens the viewer in the background; failures are only logged.
func (b *Browser) LaunchViewer(name string) {
	viewerURL := b.ViewerURL(name)
	go func() {
		b.logger.WithField("url", viewerURL).Info("opening viewer")
		if err := b.open(viewerURL); err != nil {
			b.logger.WithField("url", viewerURL).Errorf("failed to open browser: %v", err)
		}
	}()
}

// Nop is a launcher that never opens anything.
type Nop struct{}

// LaunchViewer does nothing
func (Nop) LaunchViewer(name string) {}
