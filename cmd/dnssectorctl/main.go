// Command dnssectorctl is a small demonstrator around the dnssector
// packages: it synthesizes a query for a name, parses a wire-format
// message given as hex, or builds a response from one RR line, then
// dumps every section through the cursor API; its validate subcommand
// only runs the validator over a hex message and reports the result.
package main

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"golang.org/x/net/publicsuffix"

	"go.uber.org/multierr"

	"github.com/haukened/dnssector/internal/dnssector/cursor"
	"github.com/haukened/dnssector/internal/dnssector/dnscfg"
	"github.com/haukened/dnssector/internal/dnssector/dnsclock"
	"github.com/haukened/dnssector/internal/dnssector/dnslog"
	"github.com/haukened/dnssector/internal/dnssector/packet"
	"github.com/haukened/dnssector/internal/dnssector/validator"
	"github.com/haukened/dnssector/internal/dnssector/wire"
)

var clk dnsclock.Clock = dnsclock.RealClock{}

const appName = "dnssectorctl"

func main() {
	limits, err := dnscfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	env := getenvDefault("DNSSECTOR_ENV", "dev")
	level := getenvDefault("DNSSECTOR_LOG_LEVEL", "info")
	if err := dnslog.Configure(env, level); err != nil {
		fmt.Fprintf(os.Stderr, "logging configuration error: %v\n", err)
		os.Exit(1)
	}
	logger := dnslog.GetLogger()

	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "usage: %s query <name> [type] | %s parse <hex> | %s build <rrline> | %s validate <hex> [-all-errors]\n", appName, appName, appName, appName)
		os.Exit(2)
	}

	pktLimits := packet.Limits{MaxIndirections: int(limits.MaxIndirections), MaxUncompressedSize: int(limits.MaxUncompressedSize)}

	if os.Args[1] == "validate" {
		valLimits := validator.Limits{MaxIndirections: pktLimits.MaxIndirections, MaxUncompressedSize: pktLimits.MaxUncompressedSize}
		validateCmd(os.Args[2:], valLimits, logger)
		return
	}

	started := clk.Now()
	var pkt *packet.Packet
	switch os.Args[1] {
	case "query":
		name := os.Args[2]
		qtype := wire.RRTypeA
		if len(os.Args) > 3 {
			qtype = wire.RRTypeFromString(strings.ToUpper(os.Args[3]))
			if !qtype.IsValid() {
				fmt.Fprintf(os.Stderr, "unsupported query type %q\n", os.Args[3])
				os.Exit(2)
			}
		}
		pkt, err = packet.NewQuery(name, qtype, wire.RRClassIN, uint16(rand.Intn(1<<16)), pktLimits, logger)
	case "parse":
		var raw []byte
		raw, err = hex.DecodeString(strings.TrimSpace(os.Args[2]))
		if err == nil {
			pkt, err = packet.Parse(raw, pktLimits, logger)
		}
	case "build":
		pkt, err = buildResponse(strings.Join(os.Args[2:], " "), pktLimits, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}

	dump(pkt)
	logger.Info(map[string]any{"elapsed": clk.Now().Sub(started).String()}, "dnssectorctl round trip complete")
}

// buildResponse parses one presentation-format RR line and returns a
// synthetic response message carrying it as its sole answer.
func buildResponse(rrline string, limits packet.Limits, logger dnslog.Logger) (*packet.Packet, error) {
	pkt := packet.Empty(uint16(rand.Intn(1<<16)), limits, logger)
	pkt.SetResponse(true)
	if err := pkt.InsertRRFromString(wire.Answer, rrline); err != nil {
		return nil, err
	}
	return pkt, nil
}

// validateCmd runs the validator over a hex-encoded message without
// building a Packet, reporting either success or every structurally
// independent failure multierr can aggregate when -all-errors is given.
func validateCmd(args []string, limits validator.Limits, logger dnslog.Logger) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s validate <hex> [-all-errors]\n", appName)
		os.Exit(2)
	}
	allErrors := false
	for _, a := range args[1:] {
		if a == "-all-errors" {
			allErrors = true
		}
	}
	raw, err := hex.DecodeString(strings.TrimSpace(args[0]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: invalid hex input: %v\n", appName, err)
		os.Exit(1)
	}

	var res *validator.Result
	if allErrors {
		res, err = validator.ValidateAll(raw, limits, logger)
	} else {
		res, err = validator.Validate(raw, limits, logger)
	}
	if err != nil {
		for i, e := range multierr.Errors(err) {
			fmt.Fprintf(os.Stderr, "%s: error %d: %v\n", appName, i+1, e)
		}
		os.Exit(1)
	}
	fmt.Printf("valid: qdcount=%d ancount=%d nscount=%d arcount=%d maybe_compressed=%v edns=%v\n",
		res.QDCount, res.ANCount, res.NSCount, res.ARCount, res.MaybeCompressed, res.Edns.Present)
}

func dump(pkt *packet.Packet) {
	fmt.Printf("tid=%d qr=%v opcode=%s rcode=%s dnssec=%v\n", pkt.TID(), pkt.QR(), pkt.Opcode(), pkt.RCode(), pkt.DNSSEC())

	if q, ok := pkt.Question(); ok {
		fmt.Printf("question: %s %s %s", q.Name, q.QClass, q.QType)
		if reg, err := publicsuffix.EffectiveTLDPlusOne(strings.TrimSuffix(q.Name, ".")); err == nil {
			fmt.Printf(" (registrable domain: %s)", reg)
		}
		fmt.Println()
	}

	c := cursor.New(pkt)
	for {
		ok, err := c.Next()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cursor error: %v\n", err)
			return
		}
		if !ok {
			break
		}
		dumpRecord(c)
	}
}

func dumpRecord(c *cursor.Cursor) {
	section, _ := c.Section()
	name, err := c.Name()
	if err != nil {
		fmt.Fprintf(os.Stderr, "name error: %v\n", err)
		return
	}
	rrtype, _ := c.RRType()
	rrclass, _ := c.RRClass()
	ttl, _ := c.RRTTL()
	rdlen, _ := c.RRRdlen()

	fmt.Printf("  [%s] %s %d %s %s rdlen=%d", section, name, ttl, rrclass, rrtype, rdlen)
	switch rrtype {
	case wire.RRTypeA, wire.RRTypeAAAA:
		if ip, err := c.RRIP(); err == nil {
			fmt.Printf(" -> %s", ip)
		}
	case wire.RRTypeTXT:
		if txt, err := c.RRTXT(); err == nil {
			fmt.Printf(" -> %q", txt)
		}
	}
	fmt.Println()
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
