// Package cli implements the bitwire subcommands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/NamanBalaji/bitwire/internal/config"
	"github.com/NamanBalaji/bitwire/internal/logger"
	"github.com/NamanBalaji/bitwire/internal/repository"
	"github.com/NamanBalaji/bitwire/pkg/bencode"
	"github.com/NamanBalaji/bitwire/pkg/peer"
)

// ErrUsage is returned for unknown commands and bad arguments.
var ErrUsage = errors.New("usage")

const usage = `usage: bitwire [-debug] <command> [args]

commands:
  decode [-strict] FILE          pretty-print a bencoded file
  infohash FILE|MAGNET           print the info-hash of a torrent or magnet link
  connect ADDR INFOHASH|MAGNET   handshake with a peer and fetch metadata
  listen INFOHASH|FILE           accept peers until interrupted
  peers [INFOHASH]               list stored peer records
  ping ADDR                      send a DHT ping`

type command func(ctx context.Context, args []string) error

// App runs subcommands against a configuration.
type App struct {
	cfg *config.Config
	out io.Writer

	commands map[string]command
}

// New returns an App writing to out.
func New(cfg *config.Config, out io.Writer) *App {
	a := &App{cfg: cfg, out: out}
	a.commands = map[string]command{
		"decode":   a.decode,
		"infohash": a.infohash,
		"connect":  a.connect,
		"listen":   a.listen,
		"peers":    a.peers,
		"ping":     a.ping,
	}

	return a
}

// Usage returns the command summary.
func Usage() string {
	return usage
}

// Run dispatches args[0] to its command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given", ErrUsage)
	}

	cmd, ok := a.commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}

	logger.Debugf("running %s %s", args[0], strings.Join(args[1:], " "))

	return cmd(ctx, args[1:])
}

func (a *App) openRepo() (repository.Repository, error) {
	if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	return repository.NewBboltRepository(a.cfg.DBPath())
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) println(s string) {
	fmt.Fprintln(a.out, s)
}

func (a *App) decodeOptions() bencode.DecodeOptions {
	opts := bencode.DefaultDecodeOptions()
	opts.MaxDepth = a.cfg.Wire.MaxDecodeDepth
	opts.CheckKeySort = a.cfg.Wire.StrictKeySort

	return opts
}

func (a *App) connConfig(infoHash peer.Hash) (peer.ConnConfig, error) {
	id, err := peer.NewPeerID(a.cfg.PeerIDPrefix)
	if err != nil {
		return peer.ConnConfig{}, fmt.Errorf("failed to generate peer id: %w", err)
	}

	w := a.cfg.Wire

	return peer.ConnConfig{
		InfoHash:         infoHash,
		PeerID:           id,
		Extensions:       w.Extensions,
		ClientName:       w.ClientName,
		MaxMessageLen:    uint32(w.MaxMessageLen),
		HandshakeTimeout: w.HandshakeTimeout,
		ReadTimeout:      w.ReadTimeout,
	}, nil
}

// parseFlags parses args with fs and checks the positional count.
func parseFlags(fs *flag.FlagSet, args []string, minArgs, maxArgs int) ([]string, error) {
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUsage, fs.Name(), err)
	}

	rest := fs.Args()
	if len(rest) < minArgs || len(rest) > maxArgs {
		return nil, fmt.Errorf("%w: %s takes %s", ErrUsage, fs.Name(), argCount(minArgs, maxArgs))
	}

	return rest, nil
}

func argCount(lo, hi int) string {
	if lo == hi {
		return fmt.Sprintf("%d argument(s)", lo)
	}

	return fmt.Sprintf("%d to %d arguments", lo, hi)
}
