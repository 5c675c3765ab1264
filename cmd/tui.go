/*
Copyright © 2020 Gal Amiram <galamiram1@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/galamiram/spottui/session"
	"github.com/galamiram/spottui/tui"
)

// tuiCmd represents the tui command
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the terminal interface",
	Long: `Launch the interactive terminal interface. This is what spottui does when
run without a subcommand.

The left panel lists your playlists, the right panel the tracks of the selected
playlist. The status line shows the playback device and the result of the last
action.`,
	Example: `  spottui tui
  spottui tui --demo`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI()
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

// runTUI authorizes, connects and runs the interface until the user quits
func runTUI() error {
	logFile := configureLogging()
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, release, err := connect(ctx)
	if err != nil {
		return err
	}
	defer release()

	log.Debug("Launching TUI interface")

	app := tui.NewApp(ctx, session.New(client))
	restore := tui.SetupTUILogging(app, logFile)
	defer restore()

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) {
			log.Debug("TUI stopped by signal")
			return nil
		}
		return fmt.Errorf("%w: failed to run TUI: %w", ErrStartup, err)
	}

	if err := app.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}
	return nil
}
