package main

import (
	"fmt"
	"regexp"
)

// Embed pages carry the decoder as a hex-named obfuscated function plus a
// config string assignment. These patterns must keep matching the captured
// page shapes or extraction silently breaks when a provider redeploys.
func testExtractionPatterns() {
	funcHeadRe := regexp.MustCompile(`function\s+(_0x[0-9a-fA-F]+)\(([^)]*)\)\{`)
	configRe := regexp.MustCompile(`window\['([A-Za-z0-9_]+)'\]\s*=\s*'([^']*)';`)

	page := `<script>function _0x4f2a(a,b){return a;}` +
		`window['_cfg_key']='ZGF0YQ==';</script>`

	if m := funcHeadRe.FindStringSubmatch(page); m != nil {
		fmt.Printf("   ✅ decoder function head matches: %s\n", m[1])
	} else {
		fmt.Println("   ❌ decoder function head pattern broke")
	}

	if m := configRe.FindStringSubmatch(page); m != nil {
		fmt.Printf("   ✅ config assignment matches: key %s\n", m[1])
	} else {
		fmt.Println("   ❌ config assignment pattern broke")
	}

	// Minified pages drop whitespace entirely; the patterns must not
	// depend on it.
	minified := `function _0xab12(x){return x;}window['k']='v';`
	if funcHeadRe.MatchString(minified) && configRe.MatchString(minified) {
		fmt.Println("   ✅ patterns survive minified pages")
	} else {
		fmt.Println("   ❌ patterns require whitespace the providers do not emit")
	}
}
