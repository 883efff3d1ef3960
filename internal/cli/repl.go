package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isUnlocked() bool
	Status(ctx context.Context) error
	List(ctx context.Context, args []string) error
	Get(ctx context.Context, args []string) error
	Put(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Retry(ctx context.Context) error
	SetOnline(online bool)
	Backup(ctx context.Context) error
	Backups(ctx context.Context) error
	Restore(ctx context.Context, args []string) error
	Export(ctx context.Context, args []string) error
}

// runREPL reads a line, parses the first token as the command and
// dispatches to methods on 'a'. Unknown commands are reported back to the
// user. The loop exits on scanner EOF or when the user types "exit" or
// "quit". Command errors are printed, never fatal, so a failed sync or a
// bad id keeps the session alive.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("dk> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			printlnFn("Commands: status, list <coll>, get <coll> <id>, put <coll> <id> <json>,")
			printlnFn("  delete <coll> <id>, sync, retry, online, offline,")
			printlnFn("  backup, backups, restore <id>, export [json|csv|archive], exit")

		case "status":
			err = a.Status(ctx)

		case "list":
			err = a.List(ctx, args)

		case "get":
			err = a.Get(ctx, args)

		case "put":
			err = a.Put(ctx, args)

		case "delete":
			err = a.Delete(ctx, args)

		case "sync":
			err = a.Sync(ctx)

		case "retry":
			err = a.Retry(ctx)

		case "online":
			a.SetOnline(true)

		case "offline":
			a.SetOnline(false)

		case "backup":
			err = a.Backup(ctx)

		case "backups":
			err = a.Backups(ctx)

		case "restore":
			err = a.Restore(ctx, args)

		case "export":
			err = a.Export(ctx, args)

		case "exit", "quit":
			return

		default:
			printlnFn(fmt.Sprintf("unknown command: %s (try help)", cmd))
		}

		if err != nil {
			printlnFn(fmt.Sprintf("error: %v", err))
		}
	}
}
