package main

import (
	"bufio"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/elvis972602/blob-unprotect/cookie"
	"github.com/elvis972602/blob-unprotect/unprotect"
	"golang.org/x/term"
)

func main() {
	flag.Parse()

	if help {
		PrintDefaults(os.Stderr)
		return
	}

	setPassedFlags()
	if err := setFlag(); err != nil {
		log.Fatalf("%v", err)
	}

	options := []unprotect.Option{
		unprotect.SetLog(unprotect.NewDefaultLog(log.Writer())),
	}
	if uiForbidden {
		options = append(options, unprotect.UIForbidden())
	}
	if entropyPrompt {
		e, err := readEntropy()
		if err != nil {
			log.Fatalf("read entropy error: %v", err)
		}
		options = append(options, unprotect.WithEntropy(e))
	} else if entropy != "" {
		options = append(options, unprotect.WithEntropy([]byte(entropy)))
	}
	u := unprotect.New(options...)

	if cookieBrowser != "" {
		cookies, err := cookie.ReadBrowser(cookieBrowser, cookieProfile, u)
		if err != nil {
			log.Fatalf("Error reading cookies: %s", err)
		}
		if cookieDomain != "" {
			cookies = cookie.FilterDomain(cookies, cookieDomain)
		}
		if err := writeCookies(os.Stdout, cookies); err != nil {
			log.Fatalf("write cookies error: %v", err)
		}
		return
	}

	blob, err := readInput(input, base64Blob, os.Stdin)
	if err != nil {
		log.Fatalf("read input error: %v", err)
	}
	decrypted, desc, err := u.UnprotectWithDescription(blob)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if description {
		log.Printf("description: %q", desc)
	}
	if err := writeResult(os.Stdout, decrypted, term.IsTerminal(int(os.Stdout.Fd()))); err != nil {
		log.Fatalf("write output error: %v", err)
	}
}

func readInput(path, b64 string, stdin io.Reader) ([]byte, error) {
	if b64 != "" {
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
		if err != nil {
			return nil, fmt.Errorf("invalid base64 blob: %w", err)
		}
		return b, nil
	}
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// writeResult prints the cleartext for a person when tty is set, raw bytes
// otherwise.
func writeResult(w io.Writer, data []byte, tty bool) error {
	if tty {
		_, err := fmt.Fprintf(w, "Decrypted: %v\n", data)
		return err
	}
	_, err := w.Write(data)
	return err
}

// writeCookies writes cookies in the netscape cookies.txt format.
func writeCookies(w io.Writer, cookies []*http.Cookie) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# Netscape HTTP Cookie File")
	for _, c := range cookies {
		var expires int64
		if !c.Expires.IsZero() {
			expires = c.Expires.Unix()
		}
		fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.Domain, boolField(strings.HasPrefix(c.Domain, ".")), c.Path, boolField(c.Secure), expires, c.Name, c.Value)
	}
	return bw.Flush()
}

func boolField(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func readEntropy() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("--entropy-prompt needs a terminal")
	}
	fmt.Fprint(os.Stderr, "entropy: ")
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(fd)
}
