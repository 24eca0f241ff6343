package database

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	errs "spots-pipeline/pkg/errors"
)

// Backup snapshots the store to a dated SQL file under dir via mysqldump and
// prunes old snapshots down to retain. A missing mysqldump binary degrades
// to a skip (the caller logs it), not a failure.
func (db *DB) Backup(ctx context.Context, dir string, retain int) (string, error) {
	if _, err := exec.LookPath("mysqldump"); err != nil {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errs.NewDB("database.Backup", "mkdir failed", err)
	}

	user, pass, host, port, name, err := parseDSN(db.dsn)
	if err != nil {
		return "", err
	}

	out := filepath.Join(dir, fmt.Sprintf("spots-%s.sql", time.Now().UTC().Format("20060102-150405")))
	args := []string{
		"--single-transaction", "--skip-lock-tables",
		"-h", host, "-P", port, "-u", user, name,
	}
	cmd := exec.CommandContext(ctx, "mysqldump", args...)
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+pass)

	f, err := os.Create(out)
	if err != nil {
		return "", errs.NewDB("database.Backup", "create snapshot file", err)
	}
	defer f.Close()
	cmd.Stdout = f

	if err := cmd.Run(); err != nil {
		os.Remove(out)
		return "", errs.NewDB("database.Backup", "mysqldump failed", err)
	}

	pruneBackups(dir, retain)
	return out, nil
}

// parseDSN pulls credentials out of a go-sql-driver DSN:
// user:pass@tcp(host:port)/dbname?params
func parseDSN(dsn string) (user, pass, host, port, name string, err error) {
	host, port = "127.0.0.1", "3306"
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return "", "", "", "", "", errs.NewDB("database.parseDSN", "unrecognized DSN shape", nil)
	}
	cred := dsn[:at]
	rest := dsn[at+1:]
	if i := strings.Index(cred, ":"); i >= 0 {
		user, pass = cred[:i], cred[i+1:]
	} else {
		user = cred
	}
	if i := strings.Index(rest, "("); i >= 0 {
		if j := strings.Index(rest, ")"); j > i {
			addr := rest[i+1 : j]
			if k := strings.LastIndex(addr, ":"); k >= 0 {
				host, port = addr[:k], addr[k+1:]
			} else {
				host = addr
			}
			rest = rest[j+1:]
		}
	}
	rest = strings.TrimPrefix(rest, "/")
	if i := strings.Index(rest, "?"); i >= 0 {
		rest = rest[:i]
	}
	name = rest
	if name == "" {
		return "", "", "", "", "", errs.NewDB("database.parseDSN", "missing database name", nil)
	}
	return user, pass, host, port, name, nil
}

func pruneBackups(dir string, retain int) {
	if retain <= 0 {
		retain = 7
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var snaps []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "spots-") && strings.HasSuffix(e.Name(), ".sql") {
			snaps = append(snaps, e.Name())
		}
	}
	sort.Strings(snaps)
	for len(snaps) > retain {
		os.Remove(filepath.Join(dir, snaps[0]))
		snaps = snaps[1:]
	}
}
