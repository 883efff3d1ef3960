// Package cli implements the interactive shell over the data core: record
// CRUD, sync control, backups and exports.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/config"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/manager"

	_ "modernc.org/sqlite"
)

type App struct {
	config   *config.Config
	core     *manager.Manager
	reader   *bufio.Reader
	unlocked bool
}

func NewApp(cfg *config.Config, log logging.Logger) *App {
	return &App{
		config: cfg,
		core:   manager.New(cfg, log),
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run initializes the core, unlocks encryption and enters the REPL.
func (a *App) Run(ctx context.Context) error {
	if err := a.core.Initialize(ctx); err != nil {
		return err
	}
	defer func() { _ = a.core.Destroy() }()

	if a.config.Encryption.Enabled {
		if err := a.unlock(ctx); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.statusLine, scanner)
	return nil
}

// unlock prompts for the master password up to three times.
func (a *App) unlock(ctx context.Context) error {
	for attempt := 0; attempt < 3; attempt++ {
		pw, err := GetPassword(os.Stdout, "Master password: ")
		if err != nil {
			return err
		}
		err = a.core.Unlock(ctx, string(pw))
		common.WipeByteArray(pw)
		if err == nil {
			a.unlocked = true
			return nil
		}
		fmt.Println(err)
	}
	return fmt.Errorf("too many failed unlock attempts")
}

func (a *App) isUnlocked() bool {
	return a.unlocked || !a.config.Encryption.Enabled
}

func (a *App) statusLine() string {
	st, err := a.core.Sync().Status(context.Background())
	if err != nil {
		return "?"
	}
	mode := "offline"
	if st.IsOnline {
		mode = "online"
	}
	if st.PendingActions > 0 {
		return fmt.Sprintf("%s, %d pending", mode, st.PendingActions)
	}
	return mode
}
