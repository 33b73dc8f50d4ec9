package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/ansel1/merry"
	der "github.com/gemalto/der-go"
	"github.com/gemalto/der-go/tlv"
	"github.com/gemalto/flume"
)

type CLI struct {
	Addr            string        `short:"a" help:"Address to listen on" default:"127.0.0.1:4433"`
	Cert            string        `help:"PEM file with the TLS certificate chain, enables TLS"`
	Key             string        `help:"PEM file with the TLS private key, defaults to --cert"`
	Echo            bool          `help:"Reply with the request bytes as received, instead of re-encoding them"`
	MaxRequestSize  int           `help:"Max size of a single request object" default:"1048576"`
	IdleTimeout     time.Duration `help:"Close connections idle for this long, 0 for never" default:"0s"`
	ShutdownTimeout time.Duration `help:"How long to wait for in-flight requests on shutdown" default:"10s"`
	LogTraffic      bool          `help:"Log requests and responses at the debug level"`
	Verbose         bool          `short:"v" help:"Enable debug logging"`
}

var log = flume.New("derserver")

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("derserver"),
		kong.Description("Serves ASN.1 DER objects over TCP.  Each request object is answered with its canonical DER re-encoding."),
	)

	level := flume.InfoLevel
	if cli.Verbose || cli.LogTraffic {
		level = flume.DebugLevel
	}
	if err := flume.Configure(flume.Config{
		Development:  true,
		DefaultLevel: level,
	}); err != nil {
		ctx.FatalIfErrorf(err)
	}

	if err := run(&cli); err != nil {
		ctx.Fatalf("%s", der.Details(err))
	}
}

func run(cli *CLI) error {
	var handler der.Handler = der.NormalizeHandler
	if cli.Echo {
		handler = der.EchoHandler
	}

	srv := &der.Server{
		Handler:        &der.LoggingMiddleware{Next: handler, LogTraffic: cli.LogTraffic},
		MaxRequestSize: cli.MaxRequestSize,
		IdleTimeout:    cli.IdleTimeout,
	}
	if srv.MaxRequestSize <= 0 {
		srv.MaxRequestSize = tlv.DefaultMaxSize
	}

	listenAndServe := func() error {
		return srv.ListenAndServe(cli.Addr)
	}
	if cli.Cert != "" {
		keyFile := cli.Key
		if keyFile == "" {
			keyFile = cli.Cert
		}
		cert, err := tls.LoadX509KeyPair(cli.Cert, keyFile)
		if err != nil {
			return merry.Prepend(err, "loading TLS certificate")
		}
		listenAndServe = func() error {
			return srv.ListenAndServeTLS(cli.Addr, &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			})
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	return serve(srv, sigs, cli.ShutdownTimeout, listenAndServe)
}

// serve runs listenAndServe until a signal arrives on sigs, then shuts srv
// down, giving in-flight requests up to shutdownTimeout to finish.  It
// returns only after the shutdown is complete.
func serve(srv *der.Server, sigs <-chan os.Signal, shutdownTimeout time.Duration, listenAndServe func() error) error {
	// closed once in-flight requests are done, or were cut off by Close
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sig, ok := <-sigs
		if !ok {
			return
		}
		log.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("shutdown", "error", err)
			_ = srv.Close()
		}
	}()

	err := listenAndServe()
	if merry.Is(err, der.ErrServerClosed) {
		// Serve returns as soon as the listeners are closed, while
		// Shutdown is still waiting on in-flight requests
		<-shutdownDone
		log.Info("shutdown complete")
		return nil
	}
	return err
}
