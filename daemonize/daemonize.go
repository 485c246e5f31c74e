// Copyright (c) 2023 BVK Chaitanya

// Package daemonize respawns the gateway as a background process.
package daemonize

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"log/syslog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// CheckFunc verifies that the background process with the given pid has
// initialized and is serving.
type CheckFunc func(ctx context.Context, pid int) error

// Daemonize uses an environment variable to identify if current process is a
// parent or child process. The variable must be unique to the program; in the
// child it holds the parent's pid.
//
// In the parent process, Daemonize respawns the current program in the
// background with the same arguments and environment, waits for check to
// succeed and returns isParent as true. Callers are expected to return from
// their command without doing any further work.
//
// In the child process, Daemonize starts a new session, redirects the
// standard library log to syslog and returns isParent as false.
//
// Daemonize must be called before opening databases, starting servers, etc.
func Daemonize(ctx context.Context, envKey string, check CheckFunc) (isParent bool, status error) {
	if v := os.Getenv(envKey); len(v) != 0 {
		if err := daemonizeChild(); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := daemonizeParent(ctx, envKey, check); err != nil {
		return true, err
	}
	return true, nil
}

func daemonizeParent(ctx context.Context, envKey string, check CheckFunc) error {
	binaryPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("could not determine the program binary: %w", err)
	}
	if binaryPath, err = filepath.EvalSymlinks(binaryPath); err != nil {
		return fmt.Errorf("could not resolve program binary path: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("could not determine working directory: %w", err)
	}

	file, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer file.Close()

	// Receive signal when child-process dies.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGCHLD, os.Interrupt)
	defer stop()

	// Working directory is kept so that .env lookup and relative paths
	// resolve the same way in the child.
	attr := &os.ProcAttr{
		Dir:   cwd,
		Env:   append(os.Environ(), envKey+"="+strconv.Itoa(os.Getpid())),
		Files: []*os.File{file, file, file},
	}
	child, err := os.StartProcess(binaryPath, os.Args, attr)
	if err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}
	pid := child.Pid
	child.Release()

	if check != nil {
		time.Sleep(time.Second)
		for ctx.Err() == nil {
			if err := check(ctx, pid); err != nil {
				slog.WarnContext(ctx, "background process not yet initialized", "pid", pid, "err", err)
				time.Sleep(time.Second)
				continue
			}
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("could not initialize the background process: %w", err)
	}
	return nil
}

func daemonizeChild() error {
	syslogger, err := syslog.New(syslog.LOG_INFO, filepath.Base(os.Args[0]))
	if err != nil {
		return fmt.Errorf("could not create syslog: %w", err)
	}
	log.SetOutput(syslogger)

	if _, err := unix.Setsid(); err != nil {
		return fmt.Errorf("could not set session id: %w", err)
	}
	return nil
}
