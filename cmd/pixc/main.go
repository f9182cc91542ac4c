// cmd/pixc/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	"pixc/internal/cerr"
	"pixc/internal/compiler"
	"pixc/internal/compileserver"
	"pixc/internal/image"
	"pixc/internal/irdump"
	"pixc/internal/objcache"
)

const version = "0.1.0"

// commandAliases mirrors the teacher's single-letter shorthand table.
var commandAliases = map[string]string{
	"b": "build",
	"c": "check",
	"d": "dump-ir",
	"s": "serve",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	switch cmd {
	case "--help", "-h", "help":
		if len(args) > 1 {
			showCommandHelp(args[1])
		} else {
			showUsage()
		}
	case "--version", "-v", "version":
		showVersion()
	case "completion":
		if len(args) < 2 {
			fmt.Println("Usage: pixc completion <bash|zsh|fish>")
			os.Exit(1)
		}
		generateCompletion(args[1])
	case "build":
		runBuild(args[1:])
	case "check":
		runCheck(args[1:])
	case "dump-ir":
		runDumpIR(args[1:])
	case "serve":
		runServe(args[1:])
	default:
		suggestCommand(cmd)
	}
}

// shapeArgs is the expr + width/height/frames/channels quintuple every
// one-shot subcommand takes: the CLI builds a zeroed synthetic image of
// the requested shape since real pixel-buffer decoding is an external
// collaborator (spec.md §1 Non-goals), not this compiler's concern.
type shapeArgs struct {
	expr                            string
	width, height, frames, channels int
}

func parseShapeArgs(name string, args []string) shapeArgs {
	if len(args) < 5 {
		fmt.Fprintf(os.Stderr, "Usage: pixc %s <expr> <width> <height> <frames> <channels>\n", name)
		os.Exit(1)
	}
	dims := make([]int, 4)
	for i, s := range args[1:5] {
		v, err := strconv.Atoi(s)
		if err != nil {
			log.Fatalf("invalid integer %q: %v", s, err)
		}
		dims[i] = v
	}
	return shapeArgs{expr: args[0], width: dims[0], height: dims[1], frames: dims[2], channels: dims[3]}
}

func runBuild(args []string) {
	sa := parseShapeArgs("build", args)
	out, cacheDSN := parseTrailingFlags(args[5:])
	if out == "" {
		out = "a.o"
	}
	img := image.NewBuffer(sa.width, sa.height, sa.frames, sa.channels)

	cache := openCache(cacheDSN)
	if cache != nil {
		defer cache.Close()
	}

	obj, err := compileWithCache(cache, sa.expr, img)
	if err != nil {
		reportCompileError(err)
		os.Exit(1)
	}
	if err := os.WriteFile(out, obj, 0o644); err != nil {
		log.Fatalf("writing %s: %v", out, err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", out, len(obj))
}

func runCheck(args []string) {
	sa := parseShapeArgs("check", args)
	_, cacheDSN := parseTrailingFlags(args[5:])
	img := image.NewBuffer(sa.width, sa.height, sa.frames, sa.channels)

	cache := openCache(cacheDSN)
	if cache != nil {
		defer cache.Close()
	}

	if _, err := compileWithCache(cache, sa.expr, img); err != nil {
		reportCompileError(err)
		os.Exit(1)
	}
	fmt.Println("expression compiles cleanly")
}

// parseTrailingFlags scans the options following the shape quintuple
// for "-o <path>" and "--cache <dsn>", in either order.
func parseTrailingFlags(rest []string) (out, cacheDSN string) {
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "-o":
			if i+1 < len(rest) {
				out = rest[i+1]
				i++
			}
		case "--cache":
			if i+1 < len(rest) {
				cacheDSN = rest[i+1]
				i++
			}
		}
	}
	return out, cacheDSN
}

// openCache opens the --cache DSN, if one was given; a bad DSN is
// fatal since the user asked for caching explicitly.
func openCache(dsn string) *objcache.Cache {
	if dsn == "" {
		return nil
	}
	c, err := objcache.Open(dsn)
	if err != nil {
		log.Fatalf("opening cache: %v", err)
	}
	return c
}

// compileWithCache runs CompileEval, consulting cache first and
// populating it on a miss. cache may be nil, in which case it always
// compiles.
func compileWithCache(cache *objcache.Cache, expr string, img *image.Buffer) ([]byte, error) {
	if cache == nil {
		return compiler.CompileEval(expr, img)
	}
	ctx := context.Background()
	key := objcache.Key(expr, img)
	if obj, found, err := cache.Get(ctx, key); err == nil && found {
		return obj, nil
	}
	obj, err := compiler.CompileEval(expr, img)
	if err != nil {
		return nil, err
	}
	if err := cache.Put(ctx, key, obj); err != nil {
		log.Printf("objcache: put: %v", err)
	}
	return obj, nil
}

func runDumpIR(args []string) {
	sa := parseShapeArgs("dump-ir", args)
	img := image.NewBuffer(sa.width, sa.height, sa.frames, sa.channels)
	a, roots, err := compiler.LowerEval(sa.expr, img)
	if err != nil {
		reportCompileError(err)
		os.Exit(1)
	}
	fmt.Print(irdump.Dump(a, roots))
}

func runServe(args []string) {
	addr := ":8088"
	var rest []string
	if len(args) > 0 && args[0] != "--cache" {
		addr = args[0]
		rest = args[1:]
	} else {
		rest = args
	}
	_, cacheDSN := parseTrailingFlags(rest)

	cache := openCache(cacheDSN)
	if cache != nil {
		defer cache.Close()
	}

	log.Printf("pixc serve: listening on %s", addr)
	if err := http.ListenAndServe(addr, compileserver.NewServerWithCache(cache)); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

func reportCompileError(err error) {
	if ce, ok := err.(*cerr.CompileError); ok {
		fmt.Fprintf(os.Stderr, "%s: %s\n", ce.Kind, ce.Message)
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
}

func showUsage() {
	fmt.Println("pixc - per-pixel image expression compiler")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pixc build <expr> <w> <h> <frames> <channels> [-o out.o] [--cache dsn]   Compile to an object file  (alias: b)")
	fmt.Println("  pixc check <expr> <w> <h> <frames> <channels> [--cache dsn]              Compile without writing    (alias: c)")
	fmt.Println("  pixc dump-ir <expr> <w> <h> <frames> <channels>            Print textual LLVM IR       (alias: d)")
	fmt.Println("  pixc serve [addr] [--cache dsn]                           Run the websocket compile service (alias: s)")
	fmt.Println()
	fmt.Println("Shell Integration:")
	fmt.Println("  pixc completion bash      Generate bash completion")
	fmt.Println("  pixc completion zsh       Generate zsh completion")
	fmt.Println("  pixc completion fish      Generate fish completion")
	fmt.Println()
	fmt.Println("Help:")
	fmt.Println("  pixc help <command>       Show detailed help for a command")
	fmt.Println("  pixc version              Show version")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println(`  pixc build "val * 2 + x" 64 64 1 3 -o out.o`)
	fmt.Println(`  pixc check "sin(x)" 64 64 1 3`)
}

func showVersion() {
	fmt.Printf("pixc version %s\n", version)
}

func showCommandHelp(command string) {
	if alias, ok := commandAliases[command]; ok {
		command = alias
	}
	help := map[string]string{
		"build": `pixc build - Compile an expression to an object file

USAGE:
  pixc build <expr> <width> <height> <frames> <channels> [-o out.o] [--cache dsn]
  pixc b <expr> <width> <height> <frames> <channels>      # Using alias

DESCRIPTION:
  Runs the full C1-C8 pipeline and writes the resulting routine as a
  minimal ELF64 object file exposing one global symbol (compiler.Symbol).
  --cache consults an objcache store first (sqlite://, or a bare path
  which defaults to sqlite) and populates it after a miss, keyed on the
  expression text and image shape. postgres://, mysql:// and sqlserver://
  select their drivers, but the cache's SQL is SQLite's dialect only.

EXAMPLES:
  pixc build "val * 2 + x" 64 64 1 3 -o out.o
  pixc build "val * 2 + x" 64 64 1 3 --cache sqlite://objs.db`,

		"check": `pixc check - Validate an expression without writing output

USAGE:
  pixc check <expr> <width> <height> <frames> <channels> [--cache dsn]
  pixc c <expr> <width> <height> <frames> <channels>      # Using alias

DESCRIPTION:
  Runs the same pipeline as build but discards the object bytes,
  printing a structured CompileError (kind + message) on failure.
  --cache has the same meaning as in build.`,

		"dump-ir": `pixc dump-ir - Print the channel-specialized IR as textual LLVM IR

USAGE:
  pixc dump-ir <expr> <width> <height> <frames> <channels>
  pixc d <expr> <width> <height> <frames> <channels>      # Using alias

DESCRIPTION:
  A diagnostic side channel only: this never feeds the x86-64 backend.
  One function per output channel (pixel_r/pixel_g/pixel_b), with
  transcendentals rendered as opaque external calls.`,

		"serve": `pixc serve - Run the websocket compile service

USAGE:
  pixc serve [addr] [--cache dsn]
  pixc s [addr]                                            # Using alias

DESCRIPTION:
  Starts a long-running HTTP server upgrading every connection to a
  websocket and compiling one JSON request per message. --cache has
  the same meaning as in build/check.

EXAMPLES:
  pixc serve :8088
  pixc serve :8088 --cache sqlite://objs.db`,

		"completion": `pixc completion - Generate shell completion

USAGE:
  pixc completion <bash|zsh|fish>`,
	}
	if text, ok := help[command]; ok {
		fmt.Println(text)
		return
	}
	fmt.Printf("No detailed help available for %q\n", command)
	fmt.Println("Run 'pixc help' to see all available commands")
}

func suggestCommand(cmd string) {
	all := []string{"build", "check", "dump-ir", "serve", "help", "version", "completion"}
	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", cmd)
	for _, want := range all {
		if levenshteinDistance(cmd, want) <= 2 {
			fmt.Fprintf(os.Stderr, "Did you mean 'pixc %s'?\n", want)
		}
	}
	fmt.Fprintln(os.Stderr, "Run 'pixc help' to see all available commands")
	os.Exit(1)
}

func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del, ins, sub := row[j]+1, row[j-1]+1, prev+cost
			prev = row[j]
			row[j] = minInt(minInt(del, ins), sub)
		}
	}
	return row[len(b)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

const bashCompletion = `# Bash completion for pixc
_pixc() {
    local cur prev
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"
    case "${prev}" in
        pixc)
            COMPREPLY=( $(compgen -W "build check dump-ir serve help version completion b c d s" -- ${cur}) )
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            ;;
    esac
}
complete -F _pixc pixc`

const zshCompletion = `#compdef pixc
_pixc() {
    local -a commands
    commands=(
        'build:Compile an expression to an object file'
        'check:Validate an expression'
        'dump-ir:Print textual LLVM IR'
        'serve:Run the websocket compile service'
        'help:Show help'
        'version:Show version'
        'completion:Generate shell completion'
    )
    _describe 'command' commands
}
_pixc`

const fishCompletion = `# Fish completion for pixc
complete -c pixc -f -n "__fish_use_subcommand" -a "build" -d "Compile an expression to an object file"
complete -c pixc -f -n "__fish_use_subcommand" -a "check" -d "Validate an expression"
complete -c pixc -f -n "__fish_use_subcommand" -a "dump-ir" -d "Print textual LLVM IR"
complete -c pixc -f -n "__fish_use_subcommand" -a "serve" -d "Run the websocket compile service"
complete -c pixc -f -n "__fish_use_subcommand" -a "help" -d "Show help"
complete -c pixc -f -n "__fish_use_subcommand" -a "version" -d "Show version"
complete -c pixc -f -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion"
`

func generateCompletion(shell string) {
	switch shell {
	case "bash":
		fmt.Println(bashCompletion)
	case "zsh":
		fmt.Println(zshCompletion)
	case "fish":
		fmt.Println(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\n", shell)
		fmt.Fprintln(os.Stderr, "Supported shells: bash, zsh, fish")
		os.Exit(1)
	}
}
