// Copyright (c) 2023 BVK Chaitanya

package cli

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
)

// builtins are answered by the root group itself.
var builtins = [][2]string{
	{"help", "describe subcommands and flags"},
	{"flags", "describe all known flags"},
	{"commands", "list all command paths"},
}

func commandName(c Command) string {
	fs, _ := c.Command()
	return filepath.Base(fs.Name())
}

func countFlags(fs *flag.FlagSet) (n int) {
	fs.VisitAll(func(*flag.Flag) { n++ })
	return n
}

func synopsis(c Command) string {
	switch v := c.(type) {
	case interface{ Synopsis() string }:
		return v.Synopsis()
	case *cmdGroup:
		return v.synopsis
	}
	return ""
}

func helpText(c Command) string {
	if v, ok := c.(interface{ CommandHelp() string }); ok {
		return v.CommandHelp()
	}
	return synopsis(c)
}

// usageLine renders "marketgate journal list <flags> <args>" for a path.
func usageLine(cmdpath []Command) string {
	var words []string
	hasFlags := false
	for _, c := range cmdpath {
		fs, _ := c.Command()
		words = append(words, commandName(c))
		hasFlags = hasFlags || countFlags(fs) != 0
	}
	if hasFlags {
		words = append(words, "<flags>")
	}
	if _, ok := cmdpath[len(cmdpath)-1].(*cmdGroup); ok {
		words = append(words, "<subcommand>")
	}
	return strings.Join(append(words, "<args>"), " ")
}

// inheritedFlags merges the flags of all ancestors. When a name is defined
// more than once the deepest definition wins.
func inheritedFlags(cmdpath []Command) *flag.FlagSet {
	byName := make(map[string]*flag.Flag)
	for _, c := range cmdpath[:len(cmdpath)-1] {
		fs, _ := c.Command()
		fs.VisitAll(func(f *flag.Flag) { byName[f.Name] = f })
	}
	fset := flag.NewFlagSet("inherited", flag.ContinueOnError)
	for _, f := range byName {
		fset.Var(f.Value, f.Name, f.Usage)
	}
	return fset
}

// subcommands returns name and synopsis pairs of the last command in the
// path. Entries without a synopsis are listed first.
func subcommands(cmdpath []Command) [][2]string {
	cg, ok := cmdpath[len(cmdpath)-1].(*cmdGroup)
	if !ok {
		return nil
	}
	var subs [][2]string
	for _, c := range cg.subcmds {
		subs = append(subs, [2]string{commandName(c), synopsis(c)})
	}
	slices.SortFunc(subs, func(a, b [2]string) int {
		if (a[1] == "") != (b[1] == "") {
			if a[1] == "" {
				return -1
			}
			return 1
		}
		return strings.Compare(a[0], b[0])
	})
	return subs
}

func writeTable(w io.Writer, rows [][2]string) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintf(tw, "\t%s\t%s\n", row[0], row[1])
	}
	tw.Flush()
}

func writeFlags(w io.Writer, title string, fs *flag.FlagSet) {
	if countFlags(fs) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func printHelp(w io.Writer, cmdpath []Command) error {
	cmd := cmdpath[len(cmdpath)-1]

	fmt.Fprintf(w, "Usage: %s\n", usageLine(cmdpath))
	if help := helpText(cmd); help != "" {
		fmt.Fprintf(w, "\n%s\n", help)
	}

	subs := subcommands(cmdpath)
	if len(cmdpath) == 1 {
		subs = append(slices.Clone(builtins), subs...)
	}
	if len(subs) > 0 {
		fmt.Fprintf(w, "\nSubcommands:\n")
		writeTable(w, subs)
	}

	fs, _ := cmd.Command()
	writeFlags(w, "Flags", fs)
	writeFlags(w, "Inherited Flags", inheritedFlags(cmdpath))
	return nil
}

// printCommands lists the full path of every runnable command below the
// last command in the path, for example "journal list".
func printCommands(w io.Writer, cmdpath []Command) error {
	var rows [][2]string
	var walk func(prefix []string, c Command)
	walk = func(prefix []string, c Command) {
		cg, ok := c.(*cmdGroup)
		if !ok {
			rows = append(rows, [2]string{strings.Join(prefix, " "), synopsis(c)})
			return
		}
		for _, sub := range cg.subcmds {
			walk(append(slices.Clone(prefix), commandName(sub)), sub)
		}
	}
	walk(nil, cmdpath[len(cmdpath)-1])
	slices.SortFunc(rows, func(a, b [2]string) int { return strings.Compare(a[0], b[0]) })
	writeTable(w, rows)
	return nil
}

func printFlags(w io.Writer, cmdpath []Command) error {
	fs, _ := cmdpath[len(cmdpath)-1].Command()
	fs.SetOutput(w)
	fs.PrintDefaults()
	return nil
}
