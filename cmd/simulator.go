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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/galamiram/spottui/simulator"
)

var simulatorAddr string
var simulatorPageSize int

// simulatorCmd represents the simulator command
var simulatorCmd = &cobra.Command{
	Use:   "simulator",
	Short: "Start a fake Spotify Web API for testing",
	Long: `Start a simulator of the parts of the Spotify Web API that spottui uses:
playlists, playlist items, devices, playback and token refresh.

This is useful for trying the TUI and the MCP server without a Spotify
account. The simulator serves a small demo library with two devices and
records every play request it receives.`,
	Example: `  spottui simulator                         # Listen on 127.0.0.1:8889
  spottui simulator --addr 127.0.0.1:9000   # Listen on a custom address

Then in another terminal:
  API_URL=http://127.0.0.1:8889/v1/ spottui --demo`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if debug {
			log.SetLevel(log.DebugLevel)
		}

		log.Info("🎵 Starting Spotify simulator...")

		sim := simulator.New(simulator.DemoLibrary())
		sim.SetPageSize(simulatorPageSize)

		if err := sim.Start(simulatorAddr); err != nil {
			return err
		}

		fmt.Println()
		fmt.Println("📱 Spotify simulator is running!")
		fmt.Println()
		fmt.Println("🔗 To connect the TUI:")
		fmt.Printf("   API_URL=%s %s --demo\n", sim.BaseURL(), os.Args[0])
		fmt.Println()
		fmt.Println("🔧 To connect the MCP server:")
		fmt.Printf("   API_URL=%s %s mcp --demo\n", sim.BaseURL(), os.Args[0])
		fmt.Println()
		fmt.Println("⏹️  Press Ctrl+C to stop the simulator")
		fmt.Println()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		<-sigChan

		log.Info("Shutting down simulator...")
		if err := sim.Stop(); err != nil {
			log.WithError(err).Error("Error stopping simulator")
		}

		fmt.Printf("Simulator stopped after %d play requests. Goodbye! 👋\n", len(sim.Plays()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulatorCmd)
	simulatorCmd.Flags().StringVar(&simulatorAddr, "addr", simulator.DefaultAddr, "Address to listen on")
	simulatorCmd.Flags().IntVar(&simulatorPageSize, "page-size", simulator.DefaultPageSize, "Maximum items per page")
}
