package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mquinn/poststudio/internal/cli"
	"github.com/mquinn/poststudio/internal/connect"
	"github.com/mquinn/poststudio/internal/studio"
)

// commandLoop reads board commands from stdin until quit or EOF.
func commandLoop(ctx context.Context, session *studio.Session) {
	fmt.Println()
	fmt.Println("Commands: board, show N, publish N, connect N [force], schedule N, creds, refresh, quit")

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		command := strings.ToLower(fields[0])
		args := fields[1:]

		switch command {
		case "quit", "exit", "q":
			return
		case "board":
			printBoard(session)
		case "show":
			withSlot(session, args, func(index int) { showSlot(session, index) })
		case "publish":
			withSlot(session, args, func(index int) { doPublish(ctx, session, index) })
		case "connect":
			force := len(args) > 1 && strings.EqualFold(args[1], "force")
			withSlot(session, args, func(index int) { doConnect(ctx, session, index, force) })
		case "schedule":
			withSlot(session, args, func(index int) { doSchedule(ctx, session, index) })
		case "creds":
			printCredentials(session.Credentials())
		case "refresh":
			doRefresh(ctx, session)
		default:
			fmt.Printf("Unknown command %q\n", command)
		}
	}
}

// withSlot parses the slot argument and runs fn with the validated index.
func withSlot(session *studio.Session, args []string, fn func(int)) {
	if len(args) == 0 {
		fmt.Println("Which slot? Give a number, e.g. publish 2")
		return
	}
	index, err := cli.ParseSlotIndex(args[0], len(session.Slots()))
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return
	}
	fn(index)
}

// doPublish posts the slot. On a credential rejection the session has
// already launched a forced reconnect; wait for it to finish, then hand
// the retry decision back to the user.
func doPublish(ctx context.Context, session *studio.Session, index int) {
	result, err := session.Publish(ctx, index)
	if err != nil {
		if errors.Is(err, connect.ErrReauthRequired) {
			fmt.Println("🔐 Twitter rejected the stored credentials, reconnecting...")
			waitForFlow(session.ActiveFlow())
			fmt.Printf("Run publish %d again when ready.\n", index)
			return
		}
		fmt.Printf("❌ Publish failed: %v\n", err)
		return
	}
	if result.TweetURL != "" {
		fmt.Printf("✅ Published! %s\n", result.TweetURL)
	} else {
		fmt.Printf("✅ Published! Tweet %s\n", result.TweetID)
	}
}

// doConnect repairs the credentials the slot needs. Without force, valid
// credentials are left alone.
func doConnect(ctx context.Context, session *studio.Session, index int, force bool) {
	handle, err := session.Reconnect(ctx, index, force)
	if err != nil {
		fmt.Printf("❌ Reconnect failed: %v\n", err)
		return
	}
	if handle == nil {
		fmt.Println("✅ Credentials are still valid, nothing to reconnect")
		return
	}
	fmt.Println("🌐 Finish the authorization in your browser...")
	waitForFlow(handle)
}

// waitForFlow blocks until the reconnect chain finishes and reports how
// it went.
func waitForFlow(handle *connect.FlowHandle) {
	if handle == nil {
		return
	}
	<-handle.Done()
	if err := handle.Err(); err != nil {
		if errors.Is(err, connect.ErrFlowTimeout) {
			fmt.Println("⚠️  Authorization timed out waiting for the browser")
			return
		}
		fmt.Printf("❌ Authorization failed: %v\n", err)
		return
	}
	fmt.Println("✅ Twitter connected")
}

// doSchedule reports whether the slot's media is already on the posting
// calendar.
func doSchedule(ctx context.Context, session *studio.Session, index int) {
	record, err := session.ScheduleFor(ctx, index)
	if err != nil {
		fmt.Printf("❌ Schedule lookup failed: %v\n", err)
		return
	}
	if record == nil {
		fmt.Println("📅 No calendar entry for this slot's media")
		return
	}
	fmt.Printf("📅 Scheduled (%s)", record.ScheduleID)
	if !record.ScheduledAt.IsZero() {
		fmt.Printf(" for %s", record.ScheduledAt.Format(time.RFC1123))
	}
	if record.MainText != "" {
		fmt.Printf(": %s", cli.Preview(record.MainText, 60))
	}
	fmt.Println()
}

func printCredentials(state *connect.State) {
	if state == nil {
		fmt.Println("🔑 Credentials not validated yet, run refresh")
		return
	}
	fmt.Printf("🔑 Checked at %s\n", state.CheckedAt.Format(time.Kitchen))
	fmt.Printf("   OAuth2 (posting):      %s\n", validity(state.OAuth2Valid, state.OAuth2ExpiresAt))
	fmt.Printf("   OAuth1 (video upload): %s\n", validity(state.OAuth1Valid, state.OAuth1ExpiresAt))
}

func validity(valid bool, expires *time.Time) string {
	if !valid {
		return "❌ needs reconnect"
	}
	if expires == nil || expires.IsZero() {
		return "✅ valid"
	}
	return fmt.Sprintf("✅ valid until %s", expires.Format(time.RFC1123))
}

// doRefresh re-validates both credential kinds and prints the result.
func doRefresh(ctx context.Context, session *studio.Session) {
	state, err := session.RefreshCredentials(ctx)
	if err != nil {
		fmt.Printf("❌ Credential check failed: %v\n", err)
		return
	}
	printCredentials(state)
}
