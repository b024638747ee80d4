package main

import (
	"context"
	"fmt"
	"log/syslog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	docopt "github.com/docopt/docopt-go"
	"github.com/gorilla/websocket"
	mozlog "github.com/mozilla-services/go-mozlogrus"
	log "github.com/sirupsen/logrus"
	lSyslog "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/taskcluster/reportproxy/cfg"
	"github.com/taskcluster/reportproxy/incident"
	"github.com/taskcluster/reportproxy/launcher"
	"github.com/taskcluster/reportproxy/sessions"
	"github.com/taskcluster/reportproxy/wsproxy"
	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

const usage = `Report Proxy

Bridges the process producing a report to the browsers viewing it.  The proxy
exits once the last report has no producer and no viewers left.

Usage:
  reportproxy [--config=<file>] [--no-browser]
  reportproxy -h | --help
  reportproxy --version

Environment:
 REPORTPROXY_PORT                      port to listen on (default 5013)
 REPORTPROXY_SERVER                    host used in viewer URLs (default localhost)
 REPORTPROXY_WAIT_FOR_CONNECTION_SECS  grace period for new reports (default 10.1)
 REPORTPROXY_USE_NODE                  viewers are served by a node dev server
 REPORTPROXY_STATIC_ROOT               directory of the viewer's static files
 REPORTPROXY_AUTO_LAUNCH               open a browser for every new report
 REPORTPROXY_SENTRY_DSN                sentry DSN for errors that stop the proxy
 ENV                                   set to "production" for mozlog output
 SYSLOG_ADDR                           address to which to send syslog output
 DEBUG                                 enable debug logging

Options:
--config=<file>  YAML configuration file; environment overrides it
--no-browser     never open a browser
-h --help        Show help
--version        Show version`

// exit code for configuration errors, as in sysexits.h
const exitConfig = 78

func main() {
	opts, _ := docopt.ParseArgs(usage, nil, "reportproxy "+version)

	configFile, _ := opts["--config"].(string)
	conf, err := cfg.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(exitConfig)
	}

	logger := newLogger(conf)
	noBrowser, _ := opts["--no-browser"].(bool)
	if err := run(conf, logger, noBrowser); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func newLogger(conf *cfg.Config) *log.Logger {
	logger := log.New()
	if conf.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	if env := os.Getenv("ENV"); env == "production" {
		// add mozlog formatter
		logger.Formatter = &mozlog.MozLogFormatter{
			LoggerName: "reportproxy",
		}

		// add syslog hook if addr is provided
		syslogAddr := os.Getenv("SYSLOG_ADDR")
		if syslogAddr != "" {
			hook, err := lSyslog.NewSyslogHook("udp", syslogAddr, syslog.LOG_DEBUG, "reportproxy")
			if err != nil {
				panic(err)
			}
			logger.Hooks.Add(hook)
		}
	}
	return logger
}

func run(conf *cfg.Config, logger *log.Logger, noBrowser bool) error {
	var viewerLauncher sessions.ViewerLauncher = launcher.Nop{}
	if conf.AutoLaunch && !noBrowser {
		viewerLauncher = launcher.New(launcher.Config{
			Server:   conf.Server,
			Port:     conf.Port,
			UseNode:  conf.UseNode,
			NodePort: conf.NodePort,
			Logger:   logger,
		})
	}

	registry, err := sessions.New(sessions.Config{
		GracePeriod:  conf.GracePeriod(),
		Launcher:     viewerLauncher,
		HistoryLimit: conf.HistoryLimit,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	// hijacked websockets outlive server.Shutdown, so close them here
	defer registry.Close()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	reporter, err := incident.New(conf.SentryDSN, map[string]string{"version": version}, logger)
	if err != nil {
		return err
	}

	proxy, err := wsproxy.New(wsproxy.Config{
		Upgrader:   upgrader,
		Registry:   registry,
		Logger:     logger,
		StaticRoot: conf.StaticRoot,
		UseNode:    conf.UseNode,
		Reporter:   reporter,
	})
	if err != nil {
		return err
	}

	server := &http.Server{Addr: ":" + strconv.Itoa(conf.Port), Handler: proxy}
	logger.WithFields(log.Fields{
		"server-addr":  server.Addr,
		"grace-period": conf.GracePeriod().String(),
	}).Info("starting server")

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		err := server.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		select {
		case <-registry.Done():
			logger.Info("no reports left, stopping")
		case <-ctx.Done():
			logger.Info("stopping")
			registry.Shutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
