// Copyright (c) 2023 BVK Chaitanya

package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

type cmdGroup struct {
	flags    *flag.FlagSet
	synopsis string
	subcmds  []Command

	// out receives help output; defaults to os.Stderr.
	out io.Writer
}

// Command implements Command interface.
func (cg *cmdGroup) Command() (*flag.FlagSet, CmdFunc) {
	return cg.flags, nil
}

func (cg *cmdGroup) lookup(name string) (Command, bool) {
	for _, c := range cg.subcmds {
		if commandName(c) == name {
			return c, true
		}
	}
	return nil, false
}

// resolution is the outcome of walking the arguments: the command path, the
// remaining positional arguments and an optional builtin to run instead.
type resolution struct {
	cmdpath []Command
	args    []string
	builtin string
}

func (cg *cmdGroup) resolve(args []string) (*resolution, error) {
	res := &resolution{cmdpath: []Command{cg}}

	// group is the innermost group that can still take subcommands.
	group := cg
	fspath := []*flag.FlagSet{cg.flags}

	i := 0
	for ; i < len(args); i++ {
		s := args[i]
		if s == "--" {
			i++
			break
		}

		if len(s) < 2 || s[0] != '-' {
			if group == nil {
				break
			}
			sub, ok := group.lookup(s)
			if !ok {
				if len(res.cmdpath) == 1 && slices.ContainsFunc(builtins, func(b [2]string) bool { return b[0] == s }) {
					res.builtin = s
					continue
				}
				return nil, fmt.Errorf("command not defined: %s", s)
			}
			res.cmdpath = append(res.cmdpath, sub)
			fs, _ := sub.Command()
			fspath = append(fspath, fs)
			group, _ = sub.(*cmdGroup)
			continue
		}

		used, err := setFlag(fspath, s, args[i+1:])
		if err != nil {
			return nil, err
		}
		i += used
	}

	res.args = args[i:]
	return res, nil
}

// setFlag applies one "-name", "-name=value" or "-name value" argument to
// the deepest flag set that defines the name. It returns the number of
// following arguments consumed as the value.
func setFlag(fspath []*flag.FlagSet, arg string, rest []string) (int, error) {
	name := strings.TrimPrefix(arg[1:], "-")
	if len(name) == 0 || name[0] == '-' || name[0] == '=' {
		return 0, fmt.Errorf("bad flag syntax: %s", arg)
	}
	name, value, hasValue := strings.Cut(name, "=")

	var f *flag.Flag
	for i := len(fspath) - 1; i >= 0 && f == nil; i-- {
		f = fspath[i].Lookup(name)
	}
	if f == nil {
		return 0, fmt.Errorf("flag provided but not defined: -%s", name)
	}

	if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
		if !hasValue {
			value = "true"
		}
		if err := f.Value.Set(value); err != nil {
			return 0, fmt.Errorf("invalid boolean value %q for -%s: %w", value, name, err)
		}
		return 0, nil
	}

	used := 0
	if !hasValue {
		if len(rest) == 0 {
			return 0, fmt.Errorf("flag needs an argument: -%s", name)
		}
		value, used = rest[0], 1
	}
	if err := f.Value.Set(value); err != nil {
		return 0, fmt.Errorf("invalid value %q for flag -%s: %w", value, name, err)
	}
	return used, nil
}

func (cg *cmdGroup) run(ctx context.Context, args []string) error {
	res, err := cg.resolve(args)
	if err != nil {
		return err
	}

	out := cg.out
	if out == nil {
		out = os.Stderr
	}

	switch res.builtin {
	case "help":
		return printHelp(out, res.cmdpath)
	case "flags":
		return printFlags(out, res.cmdpath)
	case "commands":
		return printCommands(out, res.cmdpath)
	}

	_, fun := res.cmdpath[len(res.cmdpath)-1].Command()
	if fun == nil {
		return printHelp(out, res.cmdpath)
	}
	return fun(ctx, res.args)
}
