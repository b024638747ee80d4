package wsproxy

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"
	"github.com/taskcluster/reportproxy/sessions"
	"github.com/taskcluster/reportproxy/util"
)

const defaultWriteTimeout = 20 * time.Second

// Config contains the run time parameters for the proxy
type Config struct {
	// Upgrader is a websocket.Upgrader instance which is used to upgrade both
	// producer and viewer connections.
	Upgrader websocket.Upgrader

	// Registry holds the sessions served by this proxy.
	Registry *sessions.Registry

	// Logger is used to log proxy events.
	Logger *logrus.Logger

	// StaticRoot is the directory served at / unless UseNode is set.
	StaticRoot string

	// UseNode disables static serving; a node development server serves the
	// viewer instead.
	UseNode bool

	// WriteTimeout bounds each write to a viewer.  Defaults to 20 seconds.
	WriteTimeout time.Duration

	// Reporter, if set, receives handler errors that stop the proxy.
	Reporter Reporter
}

// Reporter records an error that stops the proxy and returns an incident id.
type Reporter interface {
	ReportError(err error, message string) string
}

// proxy bridges producer connections to viewer connections.
// New proxy can be created by using wsproxy.New()
type proxy struct {
	router       *mux.Router
	registry     *sessions.Registry
	upgrader     websocket.Upgrader
	logger       *logrus.Logger
	writeTimeout time.Duration
	reporter     Reporter
}

// handlerFunc is a route handler.  A nil or connError result is handled
// locally; any other error stops the proxy.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// New creates a new proxy instance and wraps it as an http.Handler.
func New(conf Config) (http.Handler, error) {
	return newProxy(conf)
}

func newProxy(conf Config) (*proxy, error) {
	if conf.Registry == nil {
		return nil, ErrMissingRegistry
	}

	p := &proxy{
		router:       mux.NewRouter().UseEncodedPath(),
		registry:     conf.Registry,
		upgrader:     conf.Upgrader,
		logger:       conf.Logger,
		writeTimeout: conf.WriteTimeout,
		reporter:     conf.Reporter,
	}

	if p.logger == nil {
		logger, _ := nullLog.NewNullLogger()
		p.logger = logger
	}
	if p.writeTimeout == 0 {
		p.writeTimeout = defaultWriteTimeout
	}

	// local connection streaming a new report
	p.router.Handle("/new/{localID}/{name}", p.handle(p.serveProducer))
	// viewers of the latest report under a name
	p.router.Handle("/stream/{name}", p.handle(p.serveViewer))

	if !conf.UseNode {
		p.logger.Infof("serving static content from %s", conf.StaticRoot)
		p.router.PathPrefix("/").Handler(http.FileServer(http.Dir(conf.StaticRoot)))
	} else {
		p.logger.Info("useNode is set, not serving static content")
	}

	return p, nil
}

// ServeHTTP implements http.Handler so that the proxy may be used as a handler in a Mux or http.Server
func (p *proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.logf("", r.RemoteAddr, "Host=%s Path=%s", r.Host, r.URL.Path)
	p.router.ServeHTTP(w, r)
}

// handle turns a handlerFunc into an http.Handler and is the proxy's error
// boundary: connection errors are logged, anything else (including a panic)
// requests shutdown of the whole proxy.
func (p *proxy) handle(h handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := runHandler(h, w, r)
		if err == nil {
			return
		}
		if isConnError(err) {
			p.logerrorf("", r.RemoteAddr, "%v", err)
			return
		}
		p.logerrorf("", r.RemoteAddr, "stopping proxy after handler error: %v", err)
		if p.reporter != nil {
			p.reporter.ReportError(err, "handler error on "+r.URL.Path)
		}
		p.registry.Shutdown()
	})
}

func runHandler(h handlerFunc, w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err = errors.Errorf("handler panicked: %v", rec)
		}
	}()
	return h(w, r)
}

// sessionName extracts the session name from the route variables, replying 400
// if it is unusable.
func sessionName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := url.PathUnescape(mux.Vars(r)["name"])
	if err == nil {
		name = util.TrimName(name)
	}
	if err != nil || name == "" {
		http.Error(w, http.StatusText(400), 400)
		return "", false
	}
	return name, true
}

// proxy logging utilities

func (p *proxy) logf(name string, remoteAddr string, format string, v ...interface{}) {
	p.logger.WithFields(logrus.Fields{
		"session-name": name,
		"remote-addr":  remoteAddr,
	}).Printf(format, v...)
}

func (p *proxy) logerrorf(name string, remoteAddr string, format string, v ...interface{}) {
	p.logger.WithFields(logrus.Fields{
		"session-name": name,
		"remote-addr":  remoteAddr,
	}).Errorf(format, v...)
}
