// Flint CLI - scan projects, decode and re-encode embedded scripts, and
// serve the language server.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tliron/commonlog"

	"flint/apidb"
	"flint/codec"
	"flint/document"
	"flint/manifest"
	"flint/project"
	"flint/script"
	"flint/server"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.1.0"

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (0=warnings, 1=info, 2=debug)")
	serveMode := flag.Bool("serve", false, "Start language server on stdio")
	extractPath := flag.String("extract", "", "Decode a script from the given file and print it")
	injectPath := flag.String("inject", "", "Encode stdin into a script of the given file")
	key := flag.String("key", "script", "Script key for -extract / -inject")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: flint [options] [project-dir]\n\n")
		fmt.Fprintf(os.Stderr, "Scans a Flint project and lists every embedded script it finds.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  flint                                # Scan the project in the current directory\n")
		fmt.Fprintf(os.Stderr, "  flint ./site-project                 # Scan a specific project\n")
		fmt.Fprintf(os.Stderr, "  flint -serve                         # Start the language server on stdio\n")
		fmt.Fprintf(os.Stderr, "  flint -extract view.json -key script # Print the decoded script\n")
		fmt.Fprintf(os.Stderr, "  flint -inject view.json -key script < new.py\n")
	}
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	if *showVersion {
		fmt.Printf("flint %s\n", version)
		os.Exit(0)
	}

	root := "."
	if flag.NArg() > 0 {
		root = flag.Arg(0)
	}
	root, err := filepath.Abs(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid path: %v\n", err)
		os.Exit(1)
	}

	mf, _ := manifest.FindAndLoad(root)

	switch {
	case *extractPath != "":
		err = runExtract(os.Stdout, *extractPath, *key)
	case *injectPath != "":
		err = runInject(os.Stdin, *injectPath, *key)
	case *serveMode:
		err = runServe(root, mf)
	default:
		err = runScan(root, mf)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func scriptKeys(mf *manifest.Manifest) []string {
	if mf == nil {
		return nil
	}
	return mf.ScriptKeys()
}

// runScan indexes the project and prints every script location.
func runScan(root string, mf *manifest.Manifest) error {
	scanner := project.NewScanner(root, scriptKeys(mf))
	if !scanner.IsProject() {
		return fmt.Errorf("%s is not a Flint project (no project.json)", root)
	}

	index := scanner.Scan()
	if index.ScriptCount() == 0 {
		fmt.Println("No scripts found.")
		return nil
	}

	byType := index.ByType()
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		locs := byType[t]
		fmt.Printf("%s (%d)\n", t, len(locs))
		for _, loc := range locs {
			rel, err := filepath.Rel(root, loc.FilePath)
			if err != nil {
				rel = loc.FilePath
			}
			label := loc.Key
			if loc.ModulePath != "" {
				label = loc.ModulePath
			}
			if loc.ContextName != "" {
				label = loc.ContextName + "." + loc.Key
			}
			fmt.Printf("  %-40s %s:%d\n", label, rel, loc.Line)
		}
	}
	fmt.Printf("\n%d scripts", index.ScriptCount())
	if len(index.ParentRoots) > 0 {
		fmt.Printf(" (including %d inherited projects)", len(index.ParentRoots))
	}
	fmt.Println()
	return nil
}

// runServe starts the LSP server on stdio.
func runServe(root string, mf *manifest.Manifest) error {
	apiVersion := "8.1"
	var cachePath string
	if mf != nil {
		apiVersion = mf.API.Version
		cachePath = mf.SnapshotPath()
	}

	api, err := apidb.Load(apiVersion)
	if err != nil {
		return fmt.Errorf("loading API definitions: %w", err)
	}

	srv := server.NewLSP(server.Config{
		API:       api,
		Keys:      scriptKeys(mf),
		CachePath: cachePath,
		Version:   version,
	})
	return srv.Run()
}

// runExtract decodes one script value from a file and writes it to out.
func runExtract(out io.Writer, path, key string) error {
	doc, err := document.NewStore().OpenFile(path)
	if err != nil {
		return err
	}

	refs := script.Scan(doc.Lines(), []string{key})
	if len(refs) == 0 {
		return fmt.Errorf("no script found for key %q in %s", key, path)
	}
	if len(refs) > 1 {
		fmt.Fprintf(os.Stderr, "Warning: %d scripts for key %q, extracting line %d\n", len(refs), key, refs[0].Line)
	}

	fmt.Fprint(out, codec.Decode(refs[0].Encoded))
	return nil
}

// runInject encodes in and splices it over one script value in a file.
func runInject(in io.Reader, path, key string) error {
	content, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	doc, err := document.NewStore().OpenFile(path)
	if err != nil {
		return err
	}

	refs := script.Scan(doc.Lines(), []string{key})
	if len(refs) == 0 {
		return fmt.Errorf("no script found for key %q in %s", key, path)
	}

	ref := refs[0]
	line, _ := doc.Line(ref.Line)
	// Trailing newline from shell heredocs and editors is not part of the
	// script body.
	encoded := codec.Encode(strings.TrimSuffix(string(content), "\n"))
	updated := script.Replace(line, key, encoded)
	if !doc.SetLine(ref.Line, updated) {
		return fmt.Errorf("line %d gone in %s", ref.Line, path)
	}

	return os.WriteFile(path, []byte(doc.Text()), 0o644)
}
