package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/ansel1/merry"
	der "github.com/gemalto/der-go"
	"github.com/gemalto/der-go/tlv"
	"github.com/gemalto/flume"
)

type CLI struct {
	Input    string        `arg:"" optional:"" help:"Request object in hex"`
	File     string        `short:"f" help:"File with the request object, in raw DER or PEM"`
	Addr     string        `short:"a" help:"Server address" default:"127.0.0.1:4433"`
	TLS      bool          `help:"Connect with TLS"`
	Insecure bool          `help:"Skip verification of the server's TLS certificate"`
	Timeout  time.Duration `help:"Timeout for the whole exchange" default:"10s"`
	Verbose  bool          `short:"v" help:"Enable debug logging"`
}

var log = flume.New("derclient")

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("derclient"),
		kong.Description("Sends one ASN.1 DER object to a derserver and prints the reply."),
	)

	level := flume.InfoLevel
	if cli.Verbose {
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
	req, err := readRequest(cli)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cli.Timeout)
	defer cancel()

	var config *tls.Config
	if cli.TLS {
		config = &tls.Config{
			InsecureSkipVerify: cli.Insecure, //nolint:gosec
			MinVersion:         tls.VersionTLS12,
		}
	}

	c, err := der.Dial(ctx, cli.Addr, config)
	if err != nil {
		return err
	}
	defer c.Close()
	log.Debug("connected", "addr", cli.Addr)

	fmt.Println("== REQUEST ==")
	fmt.Println(req)

	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}

	fmt.Println("")
	fmt.Println("== RESPONSE ==")
	fmt.Println(resp)
	return nil
}

func readRequest(cli *CLI) (tlv.Node, error) {
	switch {
	case cli.File != "":
		b, err := os.ReadFile(cli.File)
		if err != nil {
			return tlv.Node{}, merry.Prepend(err, "error reading request file")
		}
		if blocks, err := der.DecodePEM(b); err == nil {
			return blocks[0].Node, nil
		}
		return tlv.Decode(b)
	case cli.Input != "":
		b, err := tlv.ParseHex(cli.Input)
		if err != nil {
			return tlv.Node{}, err
		}
		return tlv.Decode(b)
	default:
		return tlv.Node{}, merry.New("no request: pass a hex argument or --file")
	}
}
