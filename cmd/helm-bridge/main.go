package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "serve", "server":
		return runServeCmd(args[2:], stdout, stderr)
	case "init":
		return runInitCmd(args[2:], stdout, stderr)
	case "derive":
		return runDeriveCmd(args[2:], stdout, stderr)
	case "stage":
		return runStageCmd(args[2:], stdout, stderr)
	case "upgrade":
		return runUpgradeCmd(args[2:], stdout, stderr)
	case "claim":
		return runClaimCmd(args[2:], stdout, stderr)
	case "inspect":
		return runInspectCmd(args[2:], stdout, stderr)
	case "token":
		return runTokenCmd(args[2:], stdout, stderr)
	case "decree":
		return runDecreeCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorRed   = "\033[31m"
	ColorGreen = "\033[32m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sHELM Bridge%s\n", ColorBold+ColorBlue, ColorReset)
	fmt.Fprintf(w, "%sGovernance-authorized contract upgrades, executed once.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  helm-bridge <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "SERVER")
	printCommand(w, "serve", "Run the HTTP API")
	printCommand(w, "token", "Issue an API token for a payer (--sub, --ttl)")

	printSection(w, "PROGRAM")
	printCommand(w, "init", "Create the one-time config record (--payer)")
	printCommand(w, "derive", "Print derived addresses (--vaa for the claim)")
	printCommand(w, "stage", "Stage a buffer or deploy a program (--image, --buffer, --deploy)")
	printCommand(w, "upgrade", "Execute a contract upgrade (--vaa, --payer, --buffer, --spill)")
	printCommand(w, "decree", "Encode a ContractUpgrade payload (--implementation, --chain)")

	printSection(w, "STATE")
	printCommand(w, "claim", "Look up a message claim (--chain, --emitter, --sequence)")
	printCommand(w, "inspect", "Show program state and recent receipts")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sENVIRONMENT:%s PROFILE_PATH, DATA_DIR, DATABASE_URL, CLAIM_BACKEND, IMAGE_STORAGE_TYPE\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-10s%s %s\n", ColorGreen, name, ColorReset, desc)
}

// setupLogging installs the default slog handler at level.
func setupLogging(w io.Writer, level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})))
}
