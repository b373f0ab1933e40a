// Manual integration smoke checks for the recovery toolchain: transport
// configuration, ciphertext normalization, and decoder extraction patterns.
// Self-contained so it can run before the main module builds.
package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

func main() {
	fmt.Println("🧪 Integration Testing: embed-provider probing toolchain")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Println("\n1️⃣ Testing HTTP transport configuration...")
	testTransportConfig()

	fmt.Println("\n2️⃣ Testing ciphertext normalization...")
	testCiphertextNormalization()

	fmt.Println("\n3️⃣ Testing decoder extraction patterns...")
	testExtractionPatterns()

	fmt.Println("\n✅ Integration smoke checks completed!")
}

func testTransportConfig() {
	client := &http.Client{
		Transport: &http.Transport{
			DisableCompression:  true,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 30 * time.Second,
	}

	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		fmt.Println("   ❌ transport is not *http.Transport")
		return
	}
	if transport.DisableCompression {
		fmt.Println("   ✅ compression negotiation is manual (br handled by the client)")
	} else {
		fmt.Println("   ❌ automatic compression would hide the Accept-Encoding header")
	}
	if client.Timeout > 0 {
		fmt.Printf("   ✅ per-call timeout set: %s\n", client.Timeout)
	}
}
