package cookie

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elvis972602/blob-unprotect/cookie/chromium"
	"github.com/elvis972602/blob-unprotect/unprotect"
	"github.com/elvis972602/blob-unprotect/unprotect/unprotecttest"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type row struct {
	host, name, value string
	encrypted         []byte
	expires           int64
	secure, httpOnly  int
}

func newUnprotector(svc unprotect.Service) *unprotect.Unprotector {
	return unprotect.New(
		unprotect.WithService(svc),
		unprotect.SetLog(unprotect.NewDefaultLog(io.Discard)),
	)
}

func newDecryptor(u chromium.BlobUnprotector) *chromium.CookieDecryptor {
	return chromium.NewCookieDecryptor(u, testKey)
}

func sealV10(t *testing.T, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(testKey)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("gcm: %v", err)
	}
	nonce := []byte("nonce-twelve")
	return gcm.Seal(append([]byte("v10"), nonce...), nonce, plaintext, nil)
}

func createCookieDB(t *testing.T, path string, version string, rows []row) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE cookies (host_key TEXT, name TEXT, value TEXT, encrypted_value BLOB, path TEXT,
			expires_utc INTEGER, is_secure INTEGER, is_httponly INTEGER)`,
	}
	if version != "" {
		stmts = append(stmts,
			`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT)`,
			`INSERT INTO meta (key, value) VALUES ('version', '`+version+`')`,
		)
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO cookies VALUES (?, ?, ?, ?, '/', ?, ?, ?)`,
			r.host, r.name, r.value, r.encrypted, r.expires, r.secure, r.httpOnly)
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
}

func byName(cookies []*http.Cookie) map[string]*http.Cookie {
	m := make(map[string]*http.Cookie)
	for _, c := range cookies {
		m[c.Name] = c
	}
	return m
}

func Test_ReadChromium(t *testing.T) {
	svc := unprotecttest.NewService(unprotecttest.RandomPrincipal("alice"))
	legacy, err := svc.Protect([]byte("legacy-value"), "", nil)
	if err != nil {
		t.Fatalf("protect: %v", err)
	}
	// 2023-01-01 00:00:00 UTC
	expires := (time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).Unix() + webkitEpochOffset) * 1e6

	dbPath := filepath.Join(t.TempDir(), "Cookies")
	createCookieDB(t, dbPath, "", []row{
		{host: ".example.com", name: "plain", value: "visible", expires: expires, secure: 1, httpOnly: 1},
		{host: "example.com", name: "v10", encrypted: sealV10(t, []byte("hidden")), expires: expires},
		{host: "other.org", name: "legacy", encrypted: legacy},
	})

	u := newUnprotector(svc)
	d := newDecryptor(u)
	cookies, err := ReadChromium(dbPath, d)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if len(cookies) != 3 {
		t.Fatalf("got %d cookies", len(cookies))
	}
	m := byName(cookies)
	if c := m["plain"]; c.Value != "visible" || !c.Secure || !c.HttpOnly || !c.Expires.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("plain cookie: %+v", c)
	}
	if c := m["v10"]; c.Value != "hidden" || c.Secure || c.HttpOnly {
		t.Fatalf("v10 cookie: %+v", c)
	}
	if c := m["legacy"]; c.Value != "legacy-value" || !c.Expires.IsZero() {
		t.Fatalf("legacy cookie: %+v", c)
	}

	if got := FilterDomain(cookies, "example.com"); len(got) != 2 {
		t.Fatalf("FilterDomain returned %d cookies", len(got))
	}
}

func Test_ReadChromium_HostDigest(t *testing.T) {
	digest := sha256.Sum256([]byte("example.com"))
	dbPath := filepath.Join(t.TempDir(), "Cookies")
	createCookieDB(t, dbPath, "24", []row{
		{host: "example.com", name: "sid", encrypted: sealV10(t, append(digest[:], []byte("abc")...))},
	})

	svc := unprotecttest.NewService(unprotecttest.RandomPrincipal("alice"))
	cookies, err := ReadChromium(dbPath, newDecryptor(newUnprotector(svc)))
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if len(cookies) != 1 || cookies[0].Value != "abc" {
		t.Fatalf("got %+v", cookies)
	}
}

func Test_ReadChromium_ForeignBlob(t *testing.T) {
	alice := unprotecttest.NewService(unprotecttest.RandomPrincipal("alice"))
	legacy, err := alice.Protect([]byte("x"), "", nil)
	if err != nil {
		t.Fatalf("protect: %v", err)
	}
	dbPath := filepath.Join(t.TempDir(), "Cookies")
	createCookieDB(t, dbPath, "", []row{{host: "example.com", name: "sid", encrypted: legacy}})

	bob := unprotecttest.NewService(unprotecttest.RandomPrincipal("bob"))
	if _, err := ReadChromium(dbPath, newDecryptor(newUnprotector(bob))); err == nil {
		t.Fatal("expected error")
	}
}

func Test_ReadBrowser(t *testing.T) {
	svc := unprotecttest.NewService(unprotecttest.RandomPrincipal("alice"))
	local := t.TempDir()
	t.Setenv("LOCALAPPDATA", local)
	userData := filepath.Join(local, "Google", "Chrome", "User Data")

	blob, err := svc.Protect(testKey, "", nil)
	if err != nil {
		t.Fatalf("protect: %v", err)
	}
	if err := os.MkdirAll(userData, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	state := `{"os_crypt":{"encrypted_key":"` + base64.StdEncoding.EncodeToString(append([]byte("DPAPI"), blob...)) + `"}}`
	if err := os.WriteFile(filepath.Join(userData, "Local State"), []byte(state), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	createCookieDB(t, filepath.Join(userData, "Default", "Network", "Cookies"), "", []row{
		{host: ".example.com", name: "sid", encrypted: sealV10(t, []byte("from-browser"))},
	})

	for _, profile := range []string{"", "Default", filepath.Join(userData, "Default")} {
		cookies, err := ReadBrowser("chrome", profile, newUnprotector(svc))
		if err != nil {
			t.Fatalf("profile %q: %v", profile, err)
		}
		if len(cookies) != 1 || cookies[0].Value != "from-browser" {
			t.Fatalf("profile %q: got %+v", profile, cookies)
		}
	}

	if _, err := ReadBrowser("firefox", "", newUnprotector(svc)); err == nil {
		t.Fatal("expected error for unsupported browser")
	}
	if _, err := ReadBrowser("chrome", "Profile 9", newUnprotector(svc)); err == nil {
		t.Fatal("expected error for missing profile")
	}
}

func Test_MetaVersion(t *testing.T) {
	cases := []struct {
		name  string
		stmts []string
		want  int
	}{
		{"no meta table", nil, 0},
		{"no version row", []string{
			`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT)`,
			`INSERT INTO meta (key, value) VALUES ('last_compatible_version', '5')`,
		}, 0},
		{"version", []string{
			`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT)`,
			`INSERT INTO meta (key, value) VALUES ('version', '24')`,
		}, 24},
	}
	for _, c := range cases {
		db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "Cookies"))
		if err != nil {
			t.Fatalf("%s: open: %v", c.name, err)
		}
		for _, s := range c.stmts {
			if _, err := db.Exec(s); err != nil {
				t.Fatalf("%s: exec %q: %v", c.name, s, err)
			}
		}
		got, err := metaVersion(db)
		db.Close()
		if err != nil {
			t.Fatalf("%s: error: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("%s: got version %d, want %d", c.name, got, c.want)
		}
	}
}

func Test_MetaVersion_Invalid(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "Cookies"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	for _, s := range []string{
		`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT)`,
		`INSERT INTO meta (key, value) VALUES ('version', 'abc')`,
	} {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	if _, err := metaVersion(db); err == nil {
		t.Fatal("expected error for non-numeric version")
	}
}
