// Command genvapid prints a fresh VAPID key pair for Web Push.
package main

import (
	"fmt"

	"teamup/logging"
	"teamup/notify"
)

func main() {
	publicKey, privateKey, err := notify.GenerateVAPIDKeys()
	if err != nil {
		logging.Logger.Fatalf("generate VAPID keys: %v", err)
	}

	fmt.Println("Add these to your .env file:")
	fmt.Println()
	fmt.Printf("VAPID_PUBLIC_KEY=%s\n", publicKey)
	fmt.Printf("VAPID_PRIVATE_KEY=%s\n", privateKey)
	fmt.Println("VAPID_SUBJECT=mailto:admin@teamup.local")
}
