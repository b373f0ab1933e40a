package oracle

import (
	"regexp"
	"strings"
)

// The obfuscator family used by the embed providers emits three pieces that
// together form the decoder: a string-table function that returns the
// shuffled literal pool, the decoder function proper, and an IIFE that
// rotates the table until a checksum matches. A window-scoped config string
// carries the transform parameters. ExtractDecoder pulls all four out of a
// captured embed page so they can be run locally by ScriptedOracle.

var (
	funcHeadRe   = regexp.MustCompile(`function\s+(_0x[0-9a-fA-F]+)\(([^)]*)\)\{`)
	shuffleRe    = regexp.MustCompile(`\(function\(_0x[0-9a-fA-F]+,\s*_0x[0-9a-fA-F]+\)\{`)
	configRe     = regexp.MustCompile(`window\['([A-Za-z0-9_]+)'\]\s*=\s*'([^']*)';`)
	shuffleEndRe = regexp.MustCompile(`\(_0x[0-9a-fA-F]+,\s*0x[0-9a-fA-F]+\)\);`)
)

// DecoderScript holds the decoder pieces extracted from a captured page.
type DecoderScript struct {
	// TableFunc is the string-table function source.
	TableFunc string
	// TableFuncName is its identifier.
	TableFuncName string
	// DecodeFunc is the decoder function source.
	DecodeFunc string
	// DecodeFuncName is its identifier.
	DecodeFuncName string
	// Shuffle is the table-rotation IIFE source.
	Shuffle string
	// ConfigKey and ConfigString are the window-scoped transform parameters.
	ConfigKey    string
	ConfigString string
}

// ExtractDecoder locates the decoder parts in a captured embed page.
func ExtractDecoder(html string) (*DecoderScript, error) {
	out := &DecoderScript{}

	// String-table function: zero-arg, ends by re-invoking itself.
	for _, m := range funcHeadRe.FindAllStringSubmatchIndex(html, -1) {
		name := html[m[2]:m[3]]
		args := html[m[4]:m[5]]
		if strings.TrimSpace(args) != "" {
			continue
		}
		endMarker := "return " + name + "();}"
		endIdx := strings.Index(html[m[0]:], endMarker)
		if endIdx < 0 {
			continue
		}
		out.TableFuncName = name
		out.TableFunc = html[m[0] : m[0]+endIdx+len(endMarker)]
		break
	}
	if out.TableFunc == "" {
		return nil, NewError(ErrCodeDecoderNotFound, "string-table function not found")
	}

	// Decoder function: first non-table function with arguments after the
	// table function. It runs up to the shuffle IIFE.
	tableEnd := strings.Index(html, out.TableFunc) + len(out.TableFunc)
	rest := html[tableEnd:]
	shuffleLoc := shuffleRe.FindStringIndex(rest)
	if shuffleLoc == nil {
		return nil, NewError(ErrCodeDecoderNotFound, "shuffle IIFE not found")
	}
	for _, m := range funcHeadRe.FindAllStringSubmatchIndex(rest, -1) {
		if m[0] >= shuffleLoc[0] {
			break
		}
		name := rest[m[2]:m[3]]
		args := rest[m[4]:m[5]]
		if name == out.TableFuncName || strings.TrimSpace(args) == "" {
			continue
		}
		out.DecodeFuncName = name
		out.DecodeFunc = strings.TrimSpace(rest[m[0]:shuffleLoc[0]])
		break
	}
	if out.DecodeFunc == "" {
		return nil, NewError(ErrCodeDecoderNotFound, "decoder function not found")
	}

	// Shuffle IIFE: ends at the self-invocation passing the table function.
	shuffleRest := rest[shuffleLoc[0]:]
	endLoc := shuffleEndRe.FindStringIndex(shuffleRest)
	if endLoc == nil {
		return nil, NewError(ErrCodeDecoderNotFound, "shuffle IIFE end not found")
	}
	out.Shuffle = shuffleRest[:endLoc[1]]

	if m := configRe.FindStringSubmatch(html); m != nil {
		out.ConfigKey = m[1]
		out.ConfigString = m[2]
	} else {
		return nil, NewError(ErrCodeDecoderNotFound, "config string not found")
	}

	return out, nil
}

// Assemble joins the extracted parts into a runnable script. The decoder
// function is exposed under the global name "decode" with the config string
// bound as its second argument, matching what ScriptedOracle calls.
func (d *DecoderScript) Assemble() string {
	var b strings.Builder
	b.WriteString(d.TableFunc)
	b.WriteString("\n")
	b.WriteString(d.DecodeFunc)
	b.WriteString("\n")
	b.WriteString(d.Shuffle)
	b.WriteString("\n")
	b.WriteString("var configString='" + d.ConfigString + "';\n")
	b.WriteString("function decode(t){return " + d.DecodeFuncName + "(t, configString);}\n")
	return b.String()
}
