package main

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/elvis972602/blob-unprotect/unprotect"
	"github.com/elvis972602/blob-unprotect/unprotect/unprotecttest"
)

func main() {
	var (
		protector unprotect.Protector
		service   unprotect.Service
	)
	if runtime.GOOS == "windows" {
		// blobs are bound to the logged in user
		protector, service = unprotect.DPAPI{}, unprotect.DPAPI{}
	} else {
		// no DPAPI here, keep the principal secret in the login keyring instead
		p, err := unprotecttest.KeyringPrincipal("blob-unprotect-example", os.Getenv("USER"))
		if err != nil {
			log.Fatalf("keyring: %v", err)
		}
		s := unprotecttest.NewService(p)
		protector, service = s, s
	}

	blob, err := protector.Protect([]byte("hello world"), "example", nil)
	if err != nil {
		log.Fatalf("protect: %v", err)
	}

	u := unprotect.New(
		unprotect.WithService(service),
		// never block on a credential prompt
		unprotect.UIForbidden(),
	)
	decrypted, err := u.Unprotect(blob)
	if err != nil {
		log.Fatalf("unprotect: %v", err)
	}
	fmt.Printf("Decrypted: %v\n", decrypted)

	// a blob that was never protected
	if _, err := u.Unprotect([]byte{0x00}); err != nil {
		fmt.Println("rejected:", err)
	}
}
