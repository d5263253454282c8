// Command oscript checks, formats, runs and serves oscript programs.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"git.sr.ht/~sircmpwn/getopt"
	"github.com/rs/zerolog"

	"github.com/thomasrohde/oscript/pkg/config"
	"github.com/thomasrohde/oscript/pkg/diagnostics"
	"github.com/thomasrohde/oscript/pkg/evaluator"
	"github.com/thomasrohde/oscript/pkg/formatter"
	"github.com/thomasrohde/oscript/pkg/help"
	"github.com/thomasrohde/oscript/pkg/runtime"
)

// Exit codes.
const (
	exitOK          = 0
	exitUsage       = 1
	exitDiagnostics = 2
	exitBounce      = 3
	exitRuntime     = 4
)

const usage = `usage: oscript <command> [options]
commands: check, run, chain, fmt, trace, serve, deploy, config, help`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(exitUsage)
	}

	// getopt expects the command name in argv[0]
	args := os.Args[1:]
	switch args[0] {
	case "check":
		os.Exit(cmdCheck(args))
	case "run":
		os.Exit(cmdRun(args))
	case "chain":
		os.Exit(cmdChain(args))
	case "fmt":
		os.Exit(cmdFmt(args))
	case "trace":
		os.Exit(cmdTrace(args))
	case "serve":
		os.Exit(cmdServe(args))
	case "deploy":
		os.Exit(cmdDeploy(args))
	case "config":
		os.Exit(cmdConfig(args))
	case "help", "--help", "-h":
		os.Exit(cmdHelp(args))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n%s\n", args[0], usage)
		os.Exit(exitUsage)
	}
}

// parseOpts runs getopt over argv and returns the options and operands.
func parseOpts(argv []string, spec, cmdUsage string) ([]getopt.Option, []string, bool) {
	opts, optind, err := getopt.Getopts(argv, spec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\nusage: %s\n", err, cmdUsage)
		return nil, nil, false
	}
	return opts, argv[optind:], true
}

// loadConfig reads settings for the working directory.
func loadConfig() (*config.Config, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %s\n", err)
		return nil, false
	}
	return cfg, true
}

func newLogger(cfg *config.Config) zerolog.Logger {
	lvl, err := cfg.Level()
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(lvl).
		With().Timestamp().Logger()
}

func newRuntime(cfg *config.Config, logger zerolog.Logger, opts ...runtime.Option) *runtime.Runtime {
	base := []runtime.Option{
		runtime.WithMaxComplexity(cfg.MaxComplexity),
		runtime.WithCache(runtime.NewCache(cfg.CacheMaxEntries)),
		runtime.WithLogger(logger),
	}
	return runtime.New(append(base, opts...)...)
}

func printDiags(diags []diagnostics.Diagnostic, pretty bool) {
	fmt.Fprintln(os.Stderr, diagnostics.FormatDiagnostics(diags, pretty))
}

func ioError(msg string, pretty bool) int {
	printDiags([]diagnostics.Diagnostic{diagnostics.MakeDiag(diagnostics.EIO, msg, nil, "")}, pretty)
	return exitUsage
}

func readSource(file string, pretty bool) (string, string, int) {
	if file == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading stdin: %s\n", err)
			return "", "", exitUsage
		}
		return string(data), "<stdin>", exitOK
	}
	source, err := os.ReadFile(file)
	if err != nil {
		return "", "", ioError(fmt.Sprintf("cannot read file: %s", file), pretty)
	}
	return string(source), file, exitOK
}

// exitCodeFor reports err and maps it to an exit code.
func exitCodeFor(err error, pretty bool) int {
	var de *runtime.DiagnosticError
	if errors.As(err, &de) {
		printDiags(de.Diagnostics, pretty)
		return exitDiagnostics
	}
	var re *evaluator.RuntimeError
	if errors.As(err, &re) {
		printDiags([]diagnostics.Diagnostic{diagnostics.MakeDiag(re.Code, re.Message, re.Span, re.Kind.String())}, pretty)
		if re.Kind == evaluator.KindBounce {
			return exitBounce
		}
		return exitRuntime
	}
	fmt.Fprintln(os.Stderr, err.Error())
	return exitRuntime
}

func printJSON(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error serializing output: %s\n", err)
		return exitRuntime
	}
	fmt.Println(string(b))
	return exitOK
}

func cmdCheck(argv []string) int {
	const cmdUsage = "oscript check [-p] [-m aa|state|formula] <file>"
	opts, operands, ok := parseOpts(argv, "pm:", cmdUsage)
	if !ok {
		return exitUsage
	}
	pretty := false
	modeName := ""
	for _, opt := range opts {
		switch opt.Option {
		case 'p':
			pretty = true
		case 'm':
			modeName = opt.Value
		}
	}
	if len(operands) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s\n", cmdUsage)
		return exitUsage
	}
	mode, err := evaluator.ParseMode(modeName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	source, filename, code := readSource(operands[0], pretty)
	if code != exitOK {
		return code
	}
	cfg, ok := loadConfig()
	if !ok {
		return exitUsage
	}

	res := newRuntime(cfg, zerolog.Nop()).Check(source, filename, mode)
	if !res.OK() {
		printDiags(res.Diagnostics, pretty)
		return exitDiagnostics
	}
	if pretty {
		fmt.Printf("No errors found. complexity %d, %d operations\n", res.Complexity, res.CountOps)
		return exitOK
	}
	return printJSON(map[string]int{"complexity": res.Complexity, "countOps": res.CountOps})
}

func cmdFmt(argv []string) int {
	const cmdUsage = "oscript fmt [-w] <file>"
	opts, operands, ok := parseOpts(argv, "w", cmdUsage)
	if !ok {
		return exitUsage
	}
	write := false
	for _, opt := range opts {
		if opt.Option == 'w' {
			write = true
		}
	}
	if len(operands) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s\n", cmdUsage)
		return exitUsage
	}
	file := operands[0]
	source, filename, code := readSource(file, false)
	if code != exitOK {
		return code
	}

	formatted, err := runtime.New().Format(source, filename)
	if err != nil {
		return exitCodeFor(err, false)
	}
	if formatter.HasComments(source) {
		fmt.Fprintln(os.Stderr, "warning: comments are not preserved by the formatter")
	}
	if write && file != "-" {
		if err := os.WriteFile(file, []byte(formatted), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "error writing file: %s\n", err)
			return exitUsage
		}
		return exitOK
	}
	fmt.Print(formatted)
	return exitOK
}

func cmdHelp(argv []string) int {
	opts, operands, ok := parseOpts(argv, "i", "oscript help [-i] [topic]")
	if !ok {
		return exitUsage
	}
	for _, opt := range opts {
		if opt.Option == 'i' {
			fmt.Print(help.StdlibIndex())
			return exitOK
		}
	}
	if len(operands) == 0 {
		fmt.Print(help.QUICKREF)
		return exitOK
	}
	_, content, err := help.MatchTopic(operands[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\nAvailable topics: %v\n", err, help.TopicList)
		return exitUsage
	}
	fmt.Print(content)
	return exitOK
}

func cmdConfig(argv []string) int {
	if _, _, ok := parseOpts(argv, "", "oscript config"); !ok {
		return exitUsage
	}
	cfg, ok := loadConfig()
	if !ok {
		return exitUsage
	}
	out, err := cfg.YAML()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitRuntime
	}
	if cfg.Source != "" {
		fmt.Printf("# %s\n", cfg.Source)
	} else {
		fmt.Println("# defaults")
	}
	fmt.Print(out)
	return exitOK
}
