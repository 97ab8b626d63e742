// Package progfile reads and writes whole programs as YAML documents.
//
// A document lists classes in program order, and optionally the classes and members
// that must be kept:
//
//	keep:
//	  classes: [p.Main]
//	  members: ["p.Main.main()void"]
//	classes:
//	  - name: p.A
//	    flags: public
//	    fields:
//	      - {name: x, type: int, flags: private}
//	    methods:
//	      - name: <init>
//	        proto: ()void
//	        flags: public
//	        body: |
//	          v0 = arg 0
//	          invoke-direct java.lang.Object.<init>()void v0
//	          return
//
// The super type defaults to java.lang.Object; use "-" for none. Method bodies use
// the format of program.Body.String.
package progfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cottand/hmerge/program"
	"gopkg.in/yaml.v3"
)

const noSuper = "-"

type File struct {
	Keep    Keep    `yaml:"keep,omitempty"`
	Classes []Class `yaml:"classes"`
}

type Keep struct {
	Classes []string `yaml:"classes,omitempty"`
	Members []string `yaml:"members,omitempty"`
}

type Class struct {
	Name       string   `yaml:"name"`
	Flags      string   `yaml:"flags,omitempty"`
	Super      string   `yaml:"super,omitempty"`
	Interfaces []string `yaml:"interfaces,omitempty,flow"`
	Fields     []Field  `yaml:"fields,omitempty"`
	Methods    []Method `yaml:"methods,omitempty"`
}

type Field struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Flags string `yaml:"flags,omitempty"`
}

type Method struct {
	Name   string `yaml:"name"`
	Proto  string `yaml:"proto"`
	Flags  string `yaml:"flags,omitempty"`
	Inline bool   `yaml:"inline,omitempty"`
	Body   string `yaml:"body,omitempty"`
}

// Parse decodes a YAML document into a Program and the keep rules it declares.
func Parse(data []byte) (*program.Program, program.KeepAll, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, program.KeepAll{}, fmt.Errorf("decoding program: %w", err)
	}
	return f.Program()
}

func MustParse(data string) (*program.Program, program.KeepAll) {
	p, keep, err := Parse([]byte(data))
	if err != nil {
		panic(err)
	}
	return p, keep
}

func Load(path string) (*program.Program, program.KeepAll, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, program.KeepAll{}, fmt.Errorf("reading program: %w", err)
	}
	p, keep, err := Parse(data)
	if err != nil {
		return nil, program.KeepAll{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, keep, nil
}

// Program builds the classes of f.
func (f File) Program() (*program.Program, program.KeepAll, error) {
	keep := program.KeepAll{
		PinnedClasses: make(map[program.Type]bool),
		PinnedMembers: make(map[string]bool),
	}
	for _, c := range f.Keep.Classes {
		keep.PinnedClasses[program.Type(c)] = true
	}
	for _, m := range f.Keep.Members {
		keep.PinnedMembers[m] = true
	}
	classes := make([]*program.Class, 0, len(f.Classes))
	for _, c := range f.Classes {
		class, err := c.build()
		if err != nil {
			return nil, keep, fmt.Errorf("class %s: %w", c.Name, err)
		}
		classes = append(classes, class)
	}
	p, err := program.New(classes...)
	return p, keep, err
}

func parseFlags(s string) (program.Flags, error) {
	flags, unknown := program.ParseFlags(s)
	if len(unknown) > 0 {
		return 0, fmt.Errorf("unknown flags %v", unknown)
	}
	return flags, nil
}

func (c Class) build() (*program.Class, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	flags, err := parseFlags(c.Flags)
	if err != nil {
		return nil, err
	}
	class := &program.Class{Type: program.Type(c.Name), Flags: flags}
	switch c.Super {
	case "":
		class.Super = program.Object
	case noSuper:
	default:
		class.Super = program.Type(c.Super)
	}
	for _, i := range c.Interfaces {
		class.Interfaces = append(class.Interfaces, program.Type(i))
	}
	for _, f := range c.Fields {
		flags, err := parseFlags(f.Flags)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		class.AddField(&program.Field{
			Ref:   program.FieldRef{Holder: class.Type, Name: f.Name, Type: program.Type(f.Type)},
			Flags: flags,
		})
	}
	for _, m := range c.Methods {
		method, err := m.build(class.Type)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", m.Name, err)
		}
		class.AddMethod(method)
	}
	return class, nil
}

func (m Method) build(holder program.Type) (*program.Method, error) {
	flags, err := parseFlags(m.Flags)
	if err != nil {
		return nil, err
	}
	proto, err := program.ParseProto(m.Proto)
	if err != nil {
		return nil, err
	}
	method := &program.Method{
		Ref:   program.MethodRef{Holder: holder, Name: m.Name, Proto: proto},
		Flags: flags,
	}
	if m.Inline {
		method.Inline = program.InlineForce
	}
	if strings.TrimSpace(m.Body) != "" {
		if method.Body, err = program.ParseBody(m.Body); err != nil {
			return nil, err
		}
	}
	return method, nil
}

// FromProgram is the inverse of File.Program. Keep rules are not recorded.
func FromProgram(p *program.Program) File {
	var f File
	for c := range p.Classes() {
		fc := Class{Name: string(c.Type), Flags: c.Flags.String(), Super: string(c.Super)}
		switch c.Super {
		case program.Object:
			fc.Super = ""
		case "":
			fc.Super = noSuper
		}
		for _, i := range c.Interfaces {
			fc.Interfaces = append(fc.Interfaces, string(i))
		}
		for _, field := range c.Fields() {
			fc.Fields = append(fc.Fields, Field{
				Name:  field.Ref.Name,
				Type:  string(field.Ref.Type),
				Flags: field.Flags.String(),
			})
		}
		for _, m := range c.Methods() {
			fm := Method{
				Name:   m.Ref.Name,
				Proto:  m.Ref.Proto.String(),
				Flags:  m.Flags.String(),
				Inline: m.Inline == program.InlineForce,
			}
			if m.Body != nil {
				fm.Body = m.Body.String()
			}
			fc.Methods = append(fc.Methods, fm)
		}
		f.Classes = append(f.Classes, fc)
	}
	return f
}

// Dump writes p as a YAML document.
func Dump(w io.Writer, p *program.Program) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(FromProgram(p)); err != nil {
		return fmt.Errorf("encoding program: %w", err)
	}
	return enc.Close()
}
