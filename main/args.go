package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/mattn/go-colorable"
	"gopkg.in/yaml.v3"
)

var (
	help bool
	// protected blob file, "-" for stdin
	input string
	// protected blob, base64 encoded
	base64Blob string
	// additional entropy
	entropy string
	// read entropy from the terminal
	entropyPrompt bool
	// fail instead of prompting
	uiForbidden bool
	// print the stored description
	description bool

	// cookie browser
	cookieBrowser string
	// cookie profile
	cookieProfile string
	// only cookies for this domain
	cookieDomain string
)

var (
	config      map[string]interface{}
	passedFlags = make(map[string]bool)
)

func init() {
	log.SetOutput(colorable.NewColorableStderr())

	flag.BoolVar(&help, "help", false, "show all usage")
	flag.StringVar(&input, "in", "-", "file holding the protected blob, - reads stdin")
	flag.StringVar(&base64Blob, "base64", "", "protected blob as base64, takes precedence over --in")
	flag.StringVar(&entropy, "entropy", "", "additional entropy the blob was protected with")
	flag.BoolVar(&entropyPrompt, "entropy-prompt", false, "read the additional entropy from the terminal")
	flag.BoolVar(&uiForbidden, "ui-forbidden", false, "fail instead of showing a prompt")
	flag.BoolVar(&description, "description", false, "print the description stored in the blob")
	flag.StringVar(&cookieBrowser, "cookie-browser", "", "dump cookies of a chromium based browser instead, support chrome, chromium, brave, edge, opera, vivaldi")
	flag.StringVar(&cookieProfile, "cookie-profile", "", "browser profile name or path, default searches all profiles")
	flag.StringVar(&cookieDomain, "cookie-domain", "", "only dump cookies for this domain")

	cfg, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("%v", err)
	}
	config = cfg
}

// loadConfig reads a yaml overlay for the flags. A missing file is not an error.
func loadConfig(path string) (map[string]interface{}, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		log.Printf("check %s failed, %v", path, err)
		return nil, nil
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file error: %w", err)
	}
	var cfg map[string]interface{}
	if err = yaml.Unmarshal(bytes, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config file error: %w", err)
	}
	return cfg, nil
}

func setPassedFlags() {
	flag.Visit(func(f *flag.Flag) {
		passedFlags[f.Name] = true
	})
}

func isFlagPassed(name string) bool {
	return passedFlags[name]
}

// setFlag fills every flag that was not passed from the config file
func setFlag() error {
	for name, value := range config {
		// a key without a value leaves the flag default alone
		if value == nil || isFlagPassed(name) {
			continue
		}
		f := flag.Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown config key %s", name)
		}
		if err := f.Value.Set(fmt.Sprint(value)); err != nil {
			return fmt.Errorf("invalid config value for %s: %w", name, err)
		}
	}
	return nil
}

// PrintDefaults writes one line per flag as --name <arg>, followed by its
// usage and non-empty default.
func PrintDefaults(w io.Writer) {
	flag.VisitAll(func(f *flag.Flag) {
		name, usage := flag.UnquoteUsage(f)
		line := "--" + f.Name
		if name != "" {
			line += " <" + name + ">"
		}
		if f.DefValue != "" && f.DefValue != "false" {
			usage += fmt.Sprintf(" (default %q)", f.DefValue)
		}
		fmt.Fprintf(w, "  %-26s %s\n", line, usage)
	})
}
