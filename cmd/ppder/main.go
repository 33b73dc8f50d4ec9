package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alecthomas/kong"
	"github.com/ansel1/merry"
	"github.com/fxamacker/cbor/v2"
	der "github.com/gemalto/der-go"
	"github.com/gemalto/der-go/tlv"
	"github.com/gemalto/flume"
	"gopkg.in/yaml.v3"
)

const (
	FormatHex       = "hex"
	FormatDER       = "der"
	FormatPEM       = "pem"
	FormatJSON      = "json"
	FormatXML       = "xml"
	FormatYAML      = "yaml"
	FormatCBOR      = "cbor"
	FormatText      = "text"
	FormatPrettyHex = "prettyhex"
)

const description = `Pretty prints ASN.1 DER/BER.

Reads objects in hex, raw DER, PEM, json, xml, yaml, or cbor formats,
and prints them as text, raw hex, pretty printed hex, json, xml, yaml,
cbor, raw DER, or PEM.

The input argument should be a string.  If not present, input will be
read from --file, or standard in.

When reading hex input, any non-hex characters, such as whitespace or
embedded formatting characters, will be ignored.  The 'prettyhex'
output format embeds such characters, but because they are ignored,
'prettyhex' output is still valid 'hex' input.

Examples:

    ppder 3007020105030204f0
    openssl x509 -in cert.pem -outform der | ppder -i der -o prettyhex

Output (in 'text' format):

    Sequence (7):
      Integer (1): 5
      BitString (2): 0xf0 (4 unused bits)

prettyhex format:

    30 | 07
      02 | 01 | 05
      03 | 02 | 04f0

json format:

    {
      "tag": "Sequence",
      "value": [
        {
          "tag": "Integer",
          "value": "05"
        },
        {
          "tag": "BitString",
          "value": "f0",
          "unusedBits": 4
        }
      ]
    }`

type CLI struct {
	Input       string `arg:"" optional:"" help:"Input value, defaults to --file or standard in"`
	File        string `short:"f" help:"Input file name"`
	InFormat    string `short:"i" help:"Input format: hex|der|pem|json|xml|yaml|cbor, defaults to auto detect"`
	OutFormat   string `short:"o" help:"Output format: text|hex|prettyhex|json|xml|yaml|cbor|der|pem" default:"text"`
	PEMType     string `help:"PEM block type for pem output" default:"DATA"`
	Fingerprint bool   `help:"Print the BLAKE3-256 fingerprint of the canonical encoding of each object"`
	Verbose     bool   `short:"v" help:"Enable debug logging"`
}

var log = flume.New("ppder")

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("ppder"),
		kong.Description(description),
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

	if err := run(&cli, os.Stdin, os.Stdout, os.Stderr); err != nil {
		ctx.Fatalf("%s", der.Details(err))
	}
}

// object is one input object, both decoded and in its original encoding.
type object struct {
	raw  []byte
	node tlv.Node
}

func run(cli *CLI, stdin io.Reader, stdout, stderr io.Writer) error {
	in, err := readInput(cli, stdin)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(in)) == 0 {
		return merry.New("no input")
	}

	inFormat := strings.ToLower(cli.InFormat)
	if inFormat == "" {
		inFormat = detectFormat(in)
		log.Debug("detected input format", "format", inFormat)
	}
	outFormat := strings.ToLower(cli.OutFormat)

	objects, err := parseInput(inFormat, in)
	if err != nil {
		var pe *partialError
		if errors.As(err, &pe) && outFormat == FormatText {
			// print what can be made out of the malformed input
			if len(pe.objects) > 0 {
				_ = printObjects(cli, outFormat, pe.objects, stdout, stderr)
			}
			_ = tlv.Print(stdout, "", "  ", pe.rest)
			fmt.Fprintln(stdout)
		}
		return err
	}
	log.Debug("parsed input", "objects", len(objects))

	return printObjects(cli, outFormat, objects, stdout, stderr)
}

func readInput(cli *CLI, stdin io.Reader) ([]byte, error) {
	switch {
	case cli.File != "":
		b, err := os.ReadFile(cli.File)
		return b, merry.Prepend(err, "error reading input file")
	case cli.Input != "":
		return []byte(cli.Input), nil
	default:
		b, err := io.ReadAll(stdin)
		return b, merry.Prepend(err, "error reading standard input")
	}
}

// detectFormat guesses the input format.  Binary input which decodes as a
// sequence of complete DER objects is DER, even if it happens to start like
// one of the text formats or like CBOR.  Otherwise the format is guessed from
// the leading bytes.
func detectFormat(in []byte) string {
	trimmed := bytes.TrimSpace(in)
	switch {
	case bytes.HasPrefix(trimmed, []byte("-----BEGIN")):
		return FormatPEM
	case !isText(in) && isDER(in):
		return FormatDER
	case trimmed[0] == '{' || trimmed[0] == '[':
		return FormatJSON
	case trimmed[0] == '<':
		return FormatXML
	case bytes.HasPrefix(trimmed, []byte("tag:")) || bytes.HasPrefix(trimmed, []byte("---")):
		return FormatYAML
	case isHexText(trimmed):
		return FormatHex
	case in[0] == 0x82 || in[0] == 0x83:
		// a CBOR array of 2 or 3 items
		return FormatCBOR
	default:
		return FormatDER
	}
}

// isText reports whether b is UTF-8 text without control characters
// other than whitespace.
func isText(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func isDER(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	_, err := tlv.DecodeAll(b)
	return err == nil
}

func isHexText(b []byte) bool {
	for _, c := range b {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		case c == 'x', c == ' ', c == '|', c == ':', c == '\t', c == '\r', c == '\n':
		default:
			return false
		}
	}
	return true
}

// partialError is returned by parseInput when binary input is malformed
// part way through.  It carries the objects decoded before the error.
type partialError struct {
	error
	objects []object
	rest    []byte
}

func (e *partialError) Unwrap() error {
	return e.error
}

func parseInput(format string, in []byte) ([]object, error) {
	switch format {
	case FormatHex:
		b, err := tlv.ParseHex(string(in))
		if err != nil {
			return nil, err
		}
		return splitObjects(b)
	case FormatDER:
		return splitObjects(in)
	case FormatPEM:
		blocks, err := der.DecodePEM(in)
		if err != nil {
			return nil, err
		}
		objects := make([]object, 0, len(blocks))
		for _, blk := range blocks {
			log.Debug("decoded PEM block", "type", blk.Type)
			o, err := newObject(blk.Node)
			if err != nil {
				return nil, err
			}
			objects = append(objects, o)
		}
		return objects, nil
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(in))
		return decodeStream(func(n *tlv.Node) error { return dec.Decode(n) }, "JSON")
	case FormatXML:
		dec := xml.NewDecoder(bytes.NewReader(in))
		return decodeStream(func(n *tlv.Node) error { return dec.Decode(n) }, "XML")
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(in))
		return decodeStream(func(n *tlv.Node) error { return dec.Decode(n) }, "YAML")
	case FormatCBOR:
		dec := cbor.NewDecoder(bytes.NewReader(in))
		return decodeStream(func(n *tlv.Node) error { return dec.Decode(n) }, "CBOR")
	default:
		return nil, merry.Errorf("invalid input format: %s", format)
	}
}

func splitObjects(b []byte) ([]object, error) {
	var objects []object
	for off := 0; off < len(b); {
		n, l, err := tlv.DecodeNext(b[off:])
		if err != nil {
			return nil, &partialError{
				error:   merry.Prependf(err, "object %d at offset %d", len(objects), off),
				objects: objects,
				rest:    b[off:],
			}
		}
		objects = append(objects, object{raw: b[off : off+l], node: n})
		off += l
	}
	return objects, nil
}

func decodeStream(decode func(*tlv.Node) error, format string) ([]object, error) {
	var objects []object
	for {
		var n tlv.Node
		err := decode(&n)
		switch {
		case errors.Is(err, io.EOF):
			return objects, nil
		case err != nil:
			return nil, merry.Prependf(err, "error parsing %s", format)
		}
		o, err := newObject(n)
		if err != nil {
			return nil, err
		}
		objects = append(objects, o)
	}
}

func newObject(n tlv.Node) (object, error) {
	raw, err := tlv.Encode(n)
	if err != nil {
		return object{}, err
	}
	return object{raw: raw, node: n}, nil
}

func printObjects(cli *CLI, outFormat string, objects []object, stdout, stderr io.Writer) error {
	binary := outFormat == FormatDER || outFormat == FormatCBOR
	for i, o := range objects {
		if i > 0 && !binary {
			fmt.Fprintln(stdout)
		}
		if err := printObject(cli, outFormat, o, stdout); err != nil {
			return err
		}
		if cli.Fingerprint {
			h, err := der.Fingerprint(o.node)
			if err != nil {
				return err
			}
			w := stdout
			if binary {
				w = stderr
			}
			fmt.Fprintf(w, "\nblake3: %v", h)
		}
	}
	if !binary {
		fmt.Fprintln(stdout)
	}
	return nil
}

func printObject(cli *CLI, outFormat string, o object, w io.Writer) error {
	switch outFormat {
	case FormatText:
		return merry.Prepend(tlv.Print(w, "", "  ", o.raw), "error printing")
	case FormatHex:
		_, err := fmt.Fprint(w, hex.EncodeToString(o.raw))
		return err
	case FormatPrettyHex:
		return merry.Prepend(tlv.PrintPrettyHex(w, "", "  ", o.raw), "error printing")
	case FormatJSON:
		s, err := json.MarshalIndent(o.node, "", "  ")
		if err != nil {
			return merry.Prepend(err, "error printing JSON")
		}
		_, err = w.Write(s)
		return err
	case FormatXML:
		s, err := xml.MarshalIndent(o.node, "", "  ")
		if err != nil {
			return merry.Prepend(err, "error printing XML")
		}
		_, err = w.Write(s)
		return err
	case FormatYAML:
		s, err := yaml.Marshal(o.node)
		if err != nil {
			return merry.Prepend(err, "error printing YAML")
		}
		_, err = w.Write(bytes.TrimRight(s, "\n"))
		return err
	case FormatCBOR:
		s, err := o.node.MarshalCBOR()
		if err != nil {
			return merry.Prepend(err, "error printing CBOR")
		}
		_, err = w.Write(s)
		return err
	case FormatDER:
		b, err := tlv.Encode(o.node)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case FormatPEM:
		s, err := der.EncodePEM(cli.PEMType, o.node)
		if err != nil {
			return err
		}
		_, err = w.Write(bytes.TrimRight(s, "\n"))
		return err
	default:
		return merry.Errorf("invalid output format: %s", outFormat)
	}
}
