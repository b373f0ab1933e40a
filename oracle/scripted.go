package oracle

import (
	"context"

	"github.com/dop251/goja"
	"github.com/robertkrimen/otto"
)

// Engine selects the JS engine a ScriptedOracle runs on.
type Engine int

const (
	// EngineOtto runs the script on otto. Default; sufficient for the ES5
	// output of the providers' obfuscators.
	EngineOtto Engine = iota
	// EngineGoja runs the script on goja, for scripts using newer syntax.
	EngineGoja
)

const (
	defaultEncodeFunc = "encode"
	defaultDecodeFunc = "decode"
)

// ScriptConfig configures a ScriptedOracle.
type ScriptConfig struct {
	// Provider names the emulated service.
	Provider string
	// Script is the decoder script source, typically DecoderScript.Assemble().
	Script string
	// EncodeFunc / DecodeFunc are the global function names to call.
	// Defaults are "encode" and "decode"; leave EncodeFunc empty only via
	// explicit "-" to mark the direction unsupported.
	EncodeFunc string
	DecodeFunc string
	Engine     Engine
}

// ScriptedOracle runs an extracted decoder script locally, exposing the same
// interface as the live oracle. A fresh VM is created per call so concurrent
// use needs no locking.
type ScriptedOracle struct {
	cfg ScriptConfig
}

// NewScripted creates a local oracle from a decoder script.
func NewScripted(cfg ScriptConfig) *ScriptedOracle {
	if cfg.EncodeFunc == "" {
		cfg.EncodeFunc = defaultEncodeFunc
	}
	if cfg.DecodeFunc == "" {
		cfg.DecodeFunc = defaultDecodeFunc
	}
	return &ScriptedOracle{cfg: cfg}
}

// Name returns the configured provider name.
func (o *ScriptedOracle) Name() string {
	if o.cfg.Provider != "" {
		return o.cfg.Provider
	}
	return "scripted"
}

// Encode calls the script's encode function.
func (o *ScriptedOracle) Encode(ctx context.Context, plain string) (string, error) {
	return o.invoke(ctx, o.cfg.EncodeFunc, plain)
}

// Decode calls the script's decode function.
func (o *ScriptedOracle) Decode(ctx context.Context, cipher string) (string, error) {
	return o.invoke(ctx, o.cfg.DecodeFunc, cipher)
}

func (o *ScriptedOracle) invoke(ctx context.Context, fn, input string) (string, error) {
	if fn == "-" {
		return "", NewError(ErrCodeDecodeUnsupported, "direction not supported by script")
	}
	if err := ctx.Err(); err != nil {
		return "", NewError(ErrCodeScriptExecution, "context canceled", err.Error())
	}
	switch o.cfg.Engine {
	case EngineGoja:
		return o.invokeGoja(fn, input)
	default:
		return o.invokeOtto(fn, input)
	}
}

func (o *ScriptedOracle) invokeOtto(fn, input string) (string, error) {
	vm := otto.New()
	if _, err := vm.Run(o.cfg.Script); err != nil {
		return "", NewError(ErrCodeScriptParse, "failed to run decoder script", err.Error())
	}

	target, err := vm.Get(fn)
	if err != nil || !target.IsFunction() {
		return "", NewError(ErrCodeDecoderNotFound, "function not defined in script", fn)
	}

	value, err := vm.Call(fn, nil, input)
	if err != nil {
		return "", NewError(ErrCodeScriptExecution, "decoder call failed", err.Error())
	}
	result, err := value.ToString()
	if err != nil {
		return "", NewError(ErrCodeScriptExecution, "decoder did not return a string", err.Error())
	}
	return result, nil
}

func (o *ScriptedOracle) invokeGoja(fn, input string) (string, error) {
	vm := goja.New()
	// Minimal console so extracted scripts with debug output still run.
	_ = vm.Set("console", map[string]any{
		"log": func(...any) {},
	})

	if _, err := vm.RunScript("oracle.js", o.cfg.Script); err != nil {
		return "", NewError(ErrCodeScriptParse, "failed to run decoder script", err.Error())
	}

	callable, ok := goja.AssertFunction(vm.Get(fn))
	if !ok {
		return "", NewError(ErrCodeDecoderNotFound, "function not defined in script", fn)
	}

	res, err := callable(goja.Undefined(), vm.ToValue(input))
	if err != nil {
		return "", NewError(ErrCodeScriptExecution, "decoder call failed", err.Error())
	}
	if goja.IsUndefined(res) || goja.IsNull(res) {
		return "", NewError(ErrCodeScriptExecution, "decoder returned undefined")
	}
	return res.String(), nil
}
