package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"pharcryption.gg/internal/phase"
	"pharcryption.gg/internal/session"
	"pharcryption.gg/internal/state"
)

// controller is the part of a session the console drives.
type controller interface {
	State() *state.State
	Purchase(ctx context.Context, block int, location int64) error
	Start(ctx context.Context, password string) error
}

type console struct {
	sess controller
	out  io.Writer
	now  func() time.Time
}

var errQuit = errors.New("quit")

const helpText = `commands:
  status              service status and countdown
  blocks              decrypted count per block
  block <n>           list the items of block n (1-based)
  start [password]    start the service
  decrypt <location>  pay to decrypt one location
  quit
`

// exec runs one input line. It returns errQuit on quit; other errors are
// for the user and leave the console running.
func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	snap := c.sess.State().Snapshot()
	switch fields[0] {
	case "help", "?":
		fmt.Fprint(c.out, helpText)
	case "quit", "exit":
		return errQuit
	case "status":
		if !snap.Reachable(phase.SurfacePharcryptor) {
			return fmt.Errorf("status unavailable in %s", snap.Phase)
		}
		renderStatus(c.out, snap, c.now())
	case "blocks":
		if !snap.Reachable(phase.SurfaceItemDecryptor) {
			return fmt.Errorf("decryptor unavailable in %s", snap.Phase)
		}
		renderBlocks(c.out, snap)
	case "block":
		if !snap.Reachable(phase.SurfaceItemDecryptor) {
			return fmt.Errorf("decryptor unavailable in %s", snap.Phase)
		}
		if len(fields) != 2 {
			return errors.New("usage: block <n>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return fmt.Errorf("bad block %q", fields[1])
		}
		return renderBlock(c.out, snap, n-1)
	case "start":
		password := ""
		if len(fields) > 1 {
			password = strings.Join(fields[1:], " ")
		}
		if err := c.sess.Start(ctx, password); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "start requested")
	case "decrypt":
		if len(fields) != 2 {
			return errors.New("usage: decrypt <location>")
		}
		loc, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad location %q", fields[1])
		}
		blk, _, err := snap.Row(loc)
		if err != nil {
			return err
		}
		if err := c.sess.Purchase(ctx, blk, loc); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "decrypting %d\n", loc)
	default:
		return fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	return nil
}

func renderStatus(w io.Writer, snap state.Snapshot, now time.Time) {
	sum := snap.Table.Summary()
	deadline := phase.TimerDisabled
	if snap.TimeLimitMS != 0 {
		deadline = time.UnixMilli(snap.TimeLimitMS).Local().Format(time.DateTime)
	}
	fmt.Fprintf(w, "phase:             %s\n", snap.Phase)
	fmt.Fprintf(w, "pharcoins:         %d (earned %d, spent %d)\n", snap.Available(), snap.Earned, snap.Spent)
	fmt.Fprintf(w, "items lost on:     %s\n", deadline)
	fmt.Fprintf(w, "time remaining:    %s\n", phase.FormatCountdown(snap.TimeLimitMS, now))
	fmt.Fprintf(w, "blocks:            %d blocks / %d items per block\n", sum.Blocks, sum.ItemsPerBlock)
	fmt.Fprintf(w, "required:          %g%% decrypted per block\n", snap.Slot.Percentage)
	fmt.Fprintf(w, "remaining:         %d/%d encrypted\n", sum.Remaining, sum.Total)
	if snap.Decrypted {
		fmt.Fprintln(w, "decryption key:    received")
	}
}

func renderBlocks(w io.Writer, snap state.Snapshot) {
	for _, blk := range snap.Table.Blocks() {
		st := snap.Table.Stats(blk)
		fmt.Fprintf(w, "Block %d  %d/%d Decrypted\n", blk+1, st.Unlocked, st.Total)
	}
}

func renderBlock(w io.Writer, snap state.Snapshot, blk int) error {
	rows := snap.Rows(blk)
	if len(rows) == 0 {
		return fmt.Errorf("no block %d", blk+1)
	}
	fmt.Fprintf(w, "Block %d - Encrypted Items\n", blk+1)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Location\tPlayer\tGame\tItem\tCost\tDecrypt")
	for _, r := range rows {
		player, item := "???", "???"
		if r.Visible {
			player, item = r.Player, r.Name
		}
		action := "Not Decryptable"
		switch {
		case r.Purchasable && r.Unlocked:
			action = "Decrypted"
		case r.Purchasable && snap.Purchasing:
			action = "(busy)"
		case r.Purchasable:
			action = fmt.Sprintf("decrypt %d", r.Location)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", r.Location, player, r.Game, item, r.Cost, action)
	}
	return tw.Flush()
}

// describe turns session errors into the short messages shown to players.
func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrInsufficientFunds):
		return "You do not have enough Pharcoins to decrypt this item."
	case errors.Is(err, session.ErrIncorrectPassword):
		return "Incorrect password."
	case errors.Is(err, session.ErrPurchaseInFlight):
		return "A decryption is already in progress."
	default:
		return err.Error()
	}
}
