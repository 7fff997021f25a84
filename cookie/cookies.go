package cookie

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/elvis972602/blob-unprotect/cookie/chromium"

	_ "github.com/mattn/go-sqlite3"
)

// from this meta version on, chromium prefixes decrypted values with the
// SHA-256 of the host key
const hostDigestVersion = 24

// windows epoch, in seconds before the unix epoch
const webkitEpochOffset = 11644473600

type Decryptor interface {
	Decrypt(encrypted []byte) ([]byte, error)
}

// ReadBrowser reads the cookies of a chromium based browser. profile may be
// empty, a profile name or an absolute path to a profile directory.
func ReadBrowser(browser, profile string, u chromium.BlobUnprotector) ([]*http.Cookie, error) {
	if !chromium.SupportedBrowsers[browser] {
		return nil, fmt.Errorf("browser %s not supported", browser)
	}
	browserDir, err := chromium.BrowserDir(browser)
	if err != nil {
		return nil, err
	}

	searchRoot := browserDir
	if filepath.IsAbs(profile) {
		searchRoot = profile
		if chromium.SupportsProfiles(browser) {
			browserDir = filepath.Dir(profile)
		} else {
			browserDir = profile
		}
	} else if profile != "" && chromium.SupportsProfiles(browser) {
		searchRoot = filepath.Join(browserDir, profile)
	}

	cookieDatabasePath := chromium.FindMostRecentlyUsedFile(searchRoot, "Cookies")
	if cookieDatabasePath == "" {
		return nil, fmt.Errorf("could not find cookies database for %s", browser)
	}
	log.Println("found cookie database")

	decryptor, err := chromium.NewCookieDecryptorFromLocalState(u, browserDir)
	if err != nil {
		return nil, fmt.Errorf("could not get cookie decryptor: %w", err)
	}
	cookies, err := ReadChromium(cookieDatabasePath, decryptor)
	if err != nil {
		return nil, err
	}
	c := decryptor.Counts()
	log.Printf("decrypted %d v10 and %d legacy cookies", c.V10, c.Legacy)
	return cookies, nil
}

// ReadChromium reads a chromium Cookies database. The database is copied
// first since the browser keeps it locked while running.
func ReadChromium(dbPath string, decryptor Decryptor) ([]*http.Cookie, error) {
	tmpdir, err := os.MkdirTemp("", "cookies")
	if err != nil {
		return nil, fmt.Errorf("could not create temporary directory: %w", err)
	}
	defer os.RemoveAll(tmpdir)

	db, err := openDatabaseCopy(dbPath, tmpdir)
	if err != nil {
		return nil, fmt.Errorf("could not open database copy: %w", err)
	}
	defer db.Close()

	version, err := metaVersion(db)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query("SELECT host_key, name, value, encrypted_value, path, expires_utc, is_secure, is_httponly FROM cookies")
	if err != nil {
		return nil, fmt.Errorf("could not query cookies: %w", err)
	}
	defer rows.Close()

	cookies := make([]*http.Cookie, 0)
	for rows.Next() {
		var (
			host, name, value, p string
			encryptedValue       []byte
			expires              int64
			isSecure, isHttpOnly int
		)
		if err = rows.Scan(&host, &name, &value, &encryptedValue, &p, &expires, &isSecure, &isHttpOnly); err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		if value == "" && len(encryptedValue) > 0 {
			decrypted, err := decryptor.Decrypt(encryptedValue)
			if err != nil {
				return nil, fmt.Errorf("could not decrypt cookie %s for %s: %w", name, host, err)
			}
			if version >= hostDigestVersion {
				if len(decrypted) < 32 {
					return nil, fmt.Errorf("decrypted cookie %s for %s is missing its host digest", name, host)
				}
				decrypted = decrypted[32:]
			}
			value = string(decrypted)
		}
		cookies = append(cookies, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     p,
			Domain:   host,
			Secure:   isSecure == 1,
			HttpOnly: isHttpOnly == 1,
			Expires:  webkitTime(expires),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read cookies: %w", err)
	}
	return cookies, nil
}

// FilterDomain keeps the cookies set for domain or .domain.
func FilterDomain(cookies []*http.Cookie, domain string) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range cookies {
		if strings.TrimPrefix(c.Domain, ".") == domain {
			out = append(out, c)
		}
	}
	return out
}

func openDatabaseCopy(dbPath, tmpdir string) (*sql.DB, error) {
	src, err := os.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not open database file: %w", err)
	}
	defer src.Close()

	cpPath := filepath.Join(tmpdir, filepath.Base(dbPath)+".sqlite")
	dst, err := os.OpenFile(cpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("could not create database copy: %w", err)
	}
	if _, err = io.Copy(dst, src); err != nil {
		dst.Close()
		return nil, fmt.Errorf("could not copy database file: %w", err)
	}
	if err = dst.Close(); err != nil {
		return nil, fmt.Errorf("could not copy database file: %w", err)
	}
	return sql.Open("sqlite3", cpPath)
}

// metaVersion is 0 for databases without a meta table or version row.
func metaVersion(db *sql.DB) (int, error) {
	var tables int
	err := db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'meta'").Scan(&tables)
	if err != nil {
		return 0, fmt.Errorf("could not read database schema: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}

	var v string
	err = db.QueryRow("SELECT value FROM meta WHERE key = 'version'").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("could not read database version: %w", err)
	}
	version, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid database version %q", v)
	}
	return version, nil
}

func webkitTime(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.Unix(us/1e6-webkitEpochOffset, (us%1e6)*1e3).UTC()
}
