package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danmuck/onegate/internal/deeplink"
)

const usage = `usage: onegatectl [flags] <command> [args]

commands:
  open <url>        hand a deep link to the running daemon
  normalize <url>   print the pairing URI a deep link normalizes to
  status            show daemon readiness and recently handled links

flags:
`

const envLinkToken = "ONEGATE_LINK_TOKEN"

type options struct {
	addr    string
	token   string
	timeout time.Duration
	remote  bool
	limit   int
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("onegatectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := options{}
	fs.StringVar(&opts.addr, "addr", "http://127.0.0.1:7420", "onegated base URL")
	fs.StringVar(&opts.token, "token", os.Getenv(envLinkToken), "bearer token for open (defaults to $"+envLinkToken+")")
	fs.DurationVar(&opts.timeout, "timeout", 5*time.Second, "request timeout")
	fs.BoolVar(&opts.remote, "remote", false, "normalize through the daemon instead of locally")
	fs.IntVar(&opts.limit, "limit", 10, "recent links shown by status")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	client := newDaemonClient(opts.addr, opts.token, opts.timeout)

	var err error
	switch rest[0] {
	case "open":
		err = withLink(rest, func(link string) error { return runOpen(ctx, client, link, stdout) })
	case "normalize":
		err = withLink(rest, func(link string) error { return runNormalize(ctx, client, opts.remote, link, stdout) })
	case "status":
		err = runStatus(ctx, client, opts.limit, stdout)
	default:
		err = fmt.Errorf("unknown command %q", rest[0])
	}
	if err != nil {
		fmt.Fprintf(stderr, "onegatectl: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

var errUsage = errors.New("expected exactly one link argument")

func withLink(args []string, fn func(string) error) error {
	if len(args) != 2 {
		return fmt.Errorf("%s: %w", args[0], errUsage)
	}
	return fn(args[1])
}

func runOpen(ctx context.Context, client *daemonClient, link string, out io.Writer) error {
	accepted, err := client.Open(ctx, link)
	if err != nil {
		return err
	}
	state := "dispatched"
	if accepted.Parked {
		state = "parked"
	}
	fmt.Fprintf(out, "%s delivery_id=%s\n", state, accepted.DeliveryID)
	return nil
}

func runNormalize(ctx context.Context, client *daemonClient, remote bool, link string, out io.Writer) error {
	if remote {
		resp, err := client.Normalize(ctx, link)
		if err != nil {
			return err
		}
		return printNormalized(out, resp.Kind, resp.Reason, resp.URI, resp.Error)
	}

	res, err := deeplink.NewNormalizer(deeplink.DefaultScheme()).Normalize(link)
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	uri := ""
	if res.Ready() {
		uri = res.URI.String()
	}
	return printNormalized(out, res.Kind.String(), string(res.Reason), uri, errText)
}

func printNormalized(out io.Writer, kind, reason, uri, errText string) error {
	switch {
	case uri != "":
		fmt.Fprintln(out, uri)
		return nil
	case errText != "":
		return fmt.Errorf("%s: %s", kind, errText)
	default:
		fmt.Fprintf(out, "%s reason=%s\n", kind, reason)
		return nil
	}
}

func runStatus(ctx context.Context, client *daemonClient, limit int, out io.Writer) error {
	ready, err := client.Ready(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "service=%s version=%s uptime=%s ready=%v mounted=%v wallet_ready=%v\n",
		ready.Service, ready.Version, ready.Uptime, ready.Ready, ready.Mounted, ready.WalletReady)

	links, err := client.Recent(ctx, limit)
	if err != nil {
		return err
	}
	for _, l := range links {
		line := fmt.Sprintf("%s %s %s", l.HandledAt.Format(time.RFC3339), l.DeliveryID, l.Outcome)
		if l.Reason != "" {
			line += " reason=" + l.Reason
		}
		if l.URI != "" {
			line += " uri=" + l.URI
		}
		if l.Error != "" {
			line += " error=" + l.Error
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
