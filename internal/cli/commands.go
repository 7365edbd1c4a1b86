package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	bwerrors "github.com/NamanBalaji/bitwire/internal/errors"
	"github.com/NamanBalaji/bitwire/internal/logger"
	"github.com/NamanBalaji/bitwire/internal/repository"
	"github.com/NamanBalaji/bitwire/pkg/bencode"
	"github.com/NamanBalaji/bitwire/pkg/krpc"
	"github.com/NamanBalaji/bitwire/pkg/metainfo"
	"github.com/NamanBalaji/bitwire/pkg/peer"
)

const defaultConnectTimeout = 30 * time.Second

func (a *App) decode(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	strict := fs.Bool("strict", false, "reject unsorted dictionary keys")

	rest, err := parseFlags(fs, args, 1, 1)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(rest[0])
	if err != nil {
		return err
	}

	opts := a.decodeOptions()
	if *strict {
		opts.CheckKeySort = true
	}

	v, err := bencode.DecodeWithOptions(data, opts)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", rest[0], err)
	}

	a.println(RenderValue(v))

	return nil
}

func (a *App) infohash(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("infohash", flag.ContinueOnError)

	rest, err := parseFlags(fs, args, 1, 1)
	if err != nil {
		return err
	}

	if metainfo.IsMagnet(rest[0]) {
		m, err := metainfo.ParseMagnet(rest[0])
		if err != nil {
			return err
		}

		a.println(RenderFields(magnetFields(m)))

		return nil
	}

	mi, err := metainfo.Load(rest[0], a.decodeOptions())
	if err != nil {
		return err
	}

	a.println(RenderFields(metainfoFields(mi)))

	return nil
}

func magnetFields(m *metainfo.Magnet) []Field {
	fields := []Field{{"info-hash", m.InfoHash.String()}}

	if m.DisplayName != "" {
		fields = append(fields, Field{"name", m.DisplayName})
	}

	for _, tr := range m.Trackers {
		fields = append(fields, Field{"tracker", tr})
	}

	for _, p := range m.Peers {
		fields = append(fields, Field{"peer", p})
	}

	return fields
}

func metainfoFields(mi *metainfo.Metainfo) []Field {
	fields := []Field{
		{"info-hash", mi.InfoHash.String()},
		{"name", mi.Info.Name},
	}

	return append(fields, infoFields(&mi.Info)[1:]...)
}

func infoFields(info *metainfo.Info) []Field {
	fields := []Field{
		{"name", info.Name},
		{"pieces", strconv.Itoa(info.NumPieces())},
		{"piece length", strconv.FormatInt(info.PieceLength, 10)},
		{"total length", strconv.FormatInt(info.TotalLength(), 10)},
	}

	if info.Private {
		fields = append(fields, Field{"private", "yes"})
	}

	for _, f := range info.Files {
		fields = append(fields, Field{"file", fmt.Sprintf("%s (%d)", strings.Join(f.Path, "/"), f.Length)})
	}

	return fields
}

func (a *App) connect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultConnectTimeout, "overall time limit")
	noMeta := fs.Bool("no-metadata", false, "skip the ut_metadata exchange")

	rest, err := parseFlags(fs, args, 2, 2)
	if err != nil {
		return err
	}

	addr := rest[0]

	infoHash, err := metainfo.ResolveInfoHash(rest[1], a.decodeOptions())
	if err != nil {
		return err
	}

	cfg, err := a.connConfig(infoHash)
	if err != nil {
		return err
	}

	repo, err := a.openRepo()
	if err != nil {
		return fmt.Errorf("failed to open peer store: %w", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c, err := peer.Dial(ctx, addr, cfg)
	if err != nil {
		return peer.ClassifyError(err, addr)
	}
	defer c.Close()

	record := c.Info()
	if err := repo.SavePeer(record); err != nil {
		logger.Errorf("failed to save peer %s: %v", addr, err)
	}

	fields := []Field{
		{"peer", c.RemoteAddr()},
		{"peer id", c.PeerID().String()},
		{"info-hash", c.InfoHash().String()},
		{"extended", strconv.FormatBool(c.Reserved().SupportsExtended())},
		{"dht", strconv.FormatBool(c.Reserved().SupportsDHT())},
		{"fast", strconv.FormatBool(c.Reserved().SupportsFast())},
	}

	var cause error

	if c.Reserved().SupportsExtended() && !*noMeta {
		info, err := peer.FetchMetadata(ctx, c)
		if err != nil {
			cause = err
			fields = append(fields, Field{"metadata", ErrorStyle.Render(err.Error())})
		} else {
			parsed, err := metainfo.ParseInfo(info)
			if err != nil {
				cause = err
				fields = append(fields, Field{"metadata", ErrorStyle.Render(err.Error())})
			} else {
				fields = append(fields, Field{"metadata", fmt.Sprintf("%d bytes", len(info))})
				fields = append(fields, infoFields(parsed)...)
			}
		}
	}

	// FetchMetadata leaves the peer's extension table in place.
	if hs, ok := c.PeerExtensions(); ok {
		fields = append(fields,
			Field{"client", orDash(hs.Version)},
			Field{"extensions", orDash(strings.Join(peer.NewExtensionTable(hs.M).Names(), ","))},
		)
	}

	c.Close()

	closed := c.Info()
	closed.ConnectedAt = record.ConnectedAt
	closed.ClosedAt = time.Now()
	closed.CloseReason = "done"

	if cause != nil {
		perr := peer.ClassifyError(cause, addr)
		closed.CloseReason = cause.Error()
		closed.CloseCategory = perr.Category
	}

	if err := repo.SavePeer(closed); err != nil {
		logger.Errorf("failed to save peer %s: %v", addr, err)
	}

	a.println(RenderFields(fields))

	return nil
}

func (a *App) listen(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	listenAddr := fs.String("addr", a.cfg.ListenAddr, "address to accept peers on")

	rest, err := parseFlags(fs, args, 1, 1)
	if err != nil {
		return err
	}

	var (
		infoHash  peer.Hash
		infoBytes []byte
		avail     *peer.Availability
	)

	if _, statErr := os.Stat(rest[0]); statErr == nil {
		mi, err := metainfo.Load(rest[0], a.decodeOptions())
		if err != nil {
			return err
		}

		infoHash = mi.InfoHash
		infoBytes = mi.InfoBytes
		avail = peer.NewAvailability(mi.Info.NumPieces())
	} else {
		infoHash, err = metainfo.ResolveInfoHash(rest[0], a.decodeOptions())
		if err != nil {
			return err
		}
	}

	cfg, err := a.connConfig(infoHash)
	if err != nil {
		return err
	}

	cfg.MetadataSize = int64(len(infoBytes))

	repo, err := a.openRepo()
	if err != nil {
		return fmt.Errorf("failed to open peer store: %w", err)
	}
	defer repo.Close()

	m, err := peer.NewManager(ctx, peer.ManagerConfig{
		MaxPeers:   a.cfg.MaxPeers,
		ListenAddr: *listenAddr,
		Conn:       cfg,
		Store:      repo,
		Handler: func(c *peer.Conn, msg peer.Message) error {
			if avail != nil {
				if err := avail.Observe(c, msg); err != nil {
					return err
				}
			}

			_, err := peer.ServeMetadata(c, msg, infoBytes)

			return err
		},
	})
	if err != nil {
		return err
	}

	a.printf("listening on %s for %s\n", m.ListenAddr(), infoHash)

	<-ctx.Done()

	if err := m.Stop(); err != nil {
		logger.Warnf("manager stopped with error: %v", err)
	}

	records, err := repo.FindByInfoHash(infoHash)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		a.println("no peers connected")
		return nil
	}

	a.println(RenderPeers(records))

	return nil
}

func (a *App) peers(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("peers", flag.ContinueOnError)

	rest, err := parseFlags(fs, args, 0, 1)
	if err != nil {
		return err
	}

	repo, err := a.openRepo()
	if err != nil {
		return fmt.Errorf("failed to open peer store: %w", err)
	}
	defer repo.Close()

	var records []*repository.PeerRecord

	if len(rest) == 1 {
		infoHash, err := metainfo.ResolveInfoHash(rest[0], a.decodeOptions())
		if err != nil {
			return err
		}

		records, err = repo.FindByInfoHash(infoHash)
		if err != nil {
			return err
		}
	} else {
		records, err = repo.FindAll()
		if err != nil {
			return err
		}
	}

	if len(records) == 0 {
		a.println("no peer records")
		return nil
	}

	a.println(RenderPeers(records))

	return nil
}

func (a *App) ping(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	timeout := fs.Duration("timeout", 5*time.Second, "time to wait for the reply")

	rest, err := parseFlags(fs, args, 1, 1)
	if err != nil {
		return err
	}

	to, err := net.ResolveUDPAddr("udp", rest[0])
	if err != nil {
		return err
	}

	id, err := peer.NewPeerID("")
	if err != nil {
		return err
	}

	node, err := krpc.Listen(":0", id)
	if err != nil {
		return err
	}
	defer node.Close()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return node.Serve(gctx) })

	var remote krpc.NodeID

	start := time.Now()

	g.Go(func() error {
		defer cancel()

		var err error
		remote, err = node.Ping(gctx, to)

		return err
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return bwerrors.NewNetworkError(bwerrors.ErrTimeout, to.String(), true)
		}

		return err
	}

	a.println(RenderFields([]Field{
		{"node", to.String()},
		{"id", remote.String()},
		{"rtt", time.Since(start).Round(time.Millisecond).String()},
	}))

	return nil
}
