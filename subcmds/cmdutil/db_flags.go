// Copyright (c) 2023 BVK Chaitanya

package cmdutil

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path"

	"github.com/bvk/marketgate/kvutil"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvhttp"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/bvkgo/kvbadger"
	"github.com/dgraph-io/badger/v4"
)

// DBFlags select the journal database: a data directory, a backup file or
// the /db/ handler of a running gateway.
type DBFlags struct {
	ClientFlags

	dbURLPath string

	dataDir string

	fromBackup string

	backupBefore string
}

func (f *DBFlags) SetFlags(fset *flag.FlagSet) {
	fset.StringVar(&f.dataDir, "data-dir", "", "Path to the gateway data directory (gateway must not be running)")

	fset.StringVar(&f.fromBackup, "from-backup", "", "Path to a database backup file")

	f.ClientFlags.SetFlags(fset)
	fset.StringVar(&f.dbURLPath, "db-url-path", "/db", "path to db api handler")

	fset.StringVar(&f.backupBefore, "backup-before", "", "Path to a file to receive db backup before cmd is run")
}

// IsRemoteDatabase returns true if target database is a remote database over
// http.
func (f *DBFlags) IsRemoteDatabase() bool {
	return f.fromBackup == "" && f.dataDir == ""
}

// IsGoodKey accepts clean absolute paths as database keys.
func IsGoodKey(k string) bool {
	return path.IsAbs(k) && k == path.Clean(k)
}

func (f *DBFlags) GetDatabase(ctx context.Context) (db kv.Database, closer func(), status error) {
	defer func() {
		if status == nil && len(f.backupBefore) != 0 {
			if err := kvutil.BackupDB(ctx, db, f.backupBefore); err != nil {
				log.Printf("could not take a db backup before it is used: %v", err)
				closer()
				db, closer, status = nil, nil, err
			}
		}
	}()

	if len(f.fromBackup) != 0 {
		fp, err := os.Open(f.fromBackup)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open file %q: %w", f.fromBackup, err)
		}
		defer fp.Close()

		db := kvmemdb.New()
		if err := kvutil.Restore(ctx, bufio.NewReader(fp), db); err != nil {
			return nil, nil, fmt.Errorf("could not restore in-memory db from backup: %w", err)
		}
		return db, func() {}, nil
	}

	if len(f.dataDir) != 0 {
		bopts := badger.DefaultOptions(path.Join(f.dataDir, "db"))
		bopts.Logger = nil
		bdb, err := badger.Open(bopts)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open the database: %w", err)
		}
		return kvbadger.New(bdb, IsGoodKey), closerFunc(bdb), nil
	}

	addrURL := f.ClientFlags.AddressURL()
	addrURL.Path = f.dbURLPath
	return kvhttp.New(addrURL, f.ClientFlags.HttpClient()), func() {}, nil
}

func closerFunc(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Printf("could not close the database (ignored): %v", err)
		}
	}
}
