package main

import (
	"encoding/json"
	"os"

	"tlog.app/go/errors"

	"github.com/myelin-ml/myelin/flow"
)

// flowFile is the on-disk JSON shape a .flow fixture is read from: a
// flat variable list and a flat operation list, referencing variables
// by name. It exists only to give the CLI something to compile; the
// compiler's real input is a flow.Flow built by a frontend.
type flowFile struct {
	Variables []struct {
		Name   string `json:"name"`
		Type   string `json:"type"`
		Shape  []int  `json:"shape"`
		Output bool   `json:"output,omitempty"`
		Data   []byte `json:"data,omitempty"`
	} `json:"variables"`

	Operations []struct {
		Name   string            `json:"name"`
		Type   string            `json:"type"`
		Inputs []string          `json:"inputs"`
		Output []string          `json:"outputs"`
		Attrs  map[string]string `json:"attrs,omitempty"`
		Task   int               `json:"task,omitempty"`
	} `json:"operations"`
}

var typeNames = map[string]flow.Type{
	"float32": flow.Float32, "float64": flow.Float64,
	"int8": flow.Int8, "int16": flow.Int16, "int32": flow.Int32, "int64": flow.Int64,
	"uint8": flow.UInt8, "uint16": flow.UInt16, "bool": flow.Bool,
}

func loadFlow(path string) (*flow.Flow, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read %s", path)
	}

	var ff flowFile
	if err := json.Unmarshal(b, &ff); err != nil {
		return nil, errors.Wrap(err, "parse %s", path)
	}

	f := flow.New()
	vars := map[string]*flow.Variable{}

	for _, v := range ff.Variables {
		t, ok := typeNames[v.Type]
		if !ok {
			return nil, errors.New("variable %s: unknown type %q", v.Name, v.Type)
		}

		fv := f.NewVariable(v.Name, t, flow.NewShape(v.Shape...))
		vars[v.Name] = fv

		if v.Output {
			f.MarkOutput(fv)
		}

		if len(v.Data) > 0 {
			f.AllocateMemory(fv, v.Data)
		}
	}

	for _, o := range ff.Operations {
		op := f.NewOperation(o.Name, o.Type)
		op.Task = o.Task

		for k, v := range o.Attrs {
			op.SetAttr(k, v)
		}

		for _, name := range o.Inputs {
			v, ok := vars[name]
			if !ok {
				return nil, errors.New("op %s: unknown input variable %q", o.Name, name)
			}

			f.AddInput(op, v)
		}

		for _, name := range o.Output {
			v, ok := vars[name]
			if !ok {
				return nil, errors.New("op %s: unknown output variable %q", o.Name, name)
			}

			f.AddOutput(op, v)
		}
	}

	return f, nil
}
