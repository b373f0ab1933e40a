package oracle

import (
	"context"
	"testing"
)

// rot13Script is a stand-in decoder with both directions defined.
const rot13Script = `
function rot(t) {
	var out = '';
	for (var i = 0; i < t.length; i++) {
		var c = t.charCodeAt(i);
		if (c >= 65 && c <= 90) { c = ((c - 65 + 13) % 26) + 65; }
		else if (c >= 97 && c <= 122) { c = ((c - 97 + 13) % 26) + 97; }
		out += String.fromCharCode(c);
	}
	return out;
}
function encode(t) { return rot(t); }
function decode(t) { return rot(t); }
`

func TestScriptedOracleEngines(t *testing.T) {
	for _, engine := range []struct {
		name   string
		engine Engine
	}{
		{"otto", EngineOtto},
		{"goja", EngineGoja},
	} {
		t.Run(engine.name, func(t *testing.T) {
			o := NewScripted(ScriptConfig{
				Provider: "rot13",
				Script:   rot13Script,
				Engine:   engine.engine,
			})

			out, err := o.Encode(context.Background(), "Hello")
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if out != "Uryyb" {
				t.Errorf("Encode = %q, want Uryyb", out)
			}

			back, err := o.Decode(context.Background(), out)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if back != "Hello" {
				t.Errorf("round trip = %q", back)
			}
		})
	}
}

func TestScriptedOracleMissingFunction(t *testing.T) {
	o := NewScripted(ScriptConfig{Script: `function decode(t) { return t; }`})
	_, err := o.Encode(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error for missing encode function")
	}
	oerr, ok := err.(*Error)
	if !ok || oerr.Code != ErrCodeDecoderNotFound {
		t.Errorf("expected decoder-not-found, got %v", err)
	}
}

func TestScriptedOracleParseError(t *testing.T) {
	o := NewScripted(ScriptConfig{Script: `function broken( {`})
	_, err := o.Decode(context.Background(), "x")
	if err == nil {
		t.Fatal("expected parse error")
	}
	oerr, ok := err.(*Error)
	if !ok || oerr.Code != ErrCodeScriptParse {
		t.Errorf("expected script-parse error, got %v", err)
	}
}

func TestScriptedOracleUnsupportedDirection(t *testing.T) {
	o := NewScripted(ScriptConfig{
		Script:     `function decode(t) { return t; }`,
		EncodeFunc: "-",
	})
	_, err := o.Encode(context.Background(), "x")
	oerr, ok := err.(*Error)
	if !ok || oerr.Code != ErrCodeDecodeUnsupported {
		t.Errorf("expected unsupported-op error, got %v", err)
	}
}

func TestScriptedOracleName(t *testing.T) {
	if got := NewScripted(ScriptConfig{Provider: "animekai"}).Name(); got != "animekai" {
		t.Errorf("Name() = %q", got)
	}
	if got := NewScripted(ScriptConfig{}).Name(); got != "scripted" {
		t.Errorf("Name() = %q", got)
	}
}
