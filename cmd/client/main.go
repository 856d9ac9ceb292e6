package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pharcryption.gg/internal/config"
	"pharcryption.gg/internal/readiness"
	"pharcryption.gg/internal/session"
	"pharcryption.gg/internal/state"
	"pharcryption.gg/internal/store"
	"pharcryption.gg/internal/transport/ap"
)

func main() {
	var (
		configPath = flag.String("config", "", "optional YAML config file")
		addr       = flag.String("addr", "", "server address, e.g. archipelago.gg:38281")
		name       = flag.String("name", "", "slot name")
		password   = flag.String("password", "", "room password")
		barrier    = flag.String("barrier", "", "readiness barrier: delay | signal | delay:<duration>")
		journalDir = flag.String("journal", "", "event journal directory (empty disables)")
		indexDB    = flag.String("index-db", "", "audit sqlite path (empty disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Address = *addr
		case "name":
			cfg.Username = *name
		case "password":
			cfg.Password = *password
		case "barrier":
			cfg.Barrier = *barrier
		case "journal":
			cfg.JournalDir = *journalDir
		case "index-db":
			cfg.IndexDB = *indexDB
		}
	})

	endpoint, err := cfg.Endpoint()
	if err != nil {
		logger.Fatalf("login: %v", err)
	}
	rb, err := cfg.ReadinessBarrier()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	if err := run(cfg, endpoint, rb, logger); err != nil {
		logger.Fatalf("%v", err)
	}
}

// run owns every resource opened after configuration so deferred closes
// always execute.
func run(cfg config.Config, endpoint config.Address, rb readiness.Barrier, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dial := func(ctx context.Context, url string) (store.Store, error) {
		logger.Printf("connecting url=%s", url)
		return ap.Dial(ctx, ap.Config{
			URL:              url,
			Name:             cfg.Username,
			Password:         cfg.Password,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Logger:           logger,
		})
	}
	st, err := session.Connect(ctx, endpoint.Candidates(), dial)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer st.Close()

	scfg := session.Config{
		Store:            st,
		Barrier:          rb,
		Logger:           logger,
		TickInterval:     cfg.TickInterval,
		PurchaseCooldown: cfg.PurchaseCooldown,
	}
	sk, err := openSinks(cfg)
	if err != nil {
		return err
	}
	defer sk.Close()
	if sk.journal != nil {
		scfg.Journal = sk.journal
	}
	if sk.audit != nil {
		scfg.Audit = sk.audit
	}

	sess, err := session.New(scfg)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()
	go announce(ctx, sess.State(), logger)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	con := &console{sess: sess, out: os.Stdout, now: time.Now}
	fmt.Fprint(os.Stdout, helpText)
	for {
		select {
		case err := <-runErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("session ended: %w", err)
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				sess.Stop()
				<-sess.Done()
				return nil
			}
			if err := con.exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					sess.Stop()
					<-sess.Done()
					return nil
				}
				fmt.Fprintln(os.Stdout, describe(err))
			}
		}
	}
}

// announce logs phase and readiness changes as they happen.
func announce(ctx context.Context, st *state.State, logger *log.Logger) {
	changes, cancel := st.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-changes:
			if c&(state.ChangePhase|state.ChangeReady) == 0 {
				continue
			}
			snap := st.Snapshot()
			logger.Printf("phase=%s ready=%v pharcoins=%d", snap.Phase, snap.Ready, snap.Available())
		}
	}
}
