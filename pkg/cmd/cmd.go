package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"

	"github.com/jessevdk/go-flags"
	"github.com/mitchellh/cli"
	"github.com/pavelzw/pixi-install-to-prefix/pkg/progress"
)

// UsageError marks errors caused by invalid flag combinations. They are
// reported together with the help text.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

// Tracer is implemented by option structs that can ask for errors to be
// printed with stack traces.
type Tracer interface {
	Trace() bool
}

type Cmd struct {
	syn, name string
	f         reflect.Value

	opts   reflect.Value
	parser *flags.Parser

	// UI defaults to a cli.BasicUi on stdout and stderr.
	UI cli.Ui
}

var _ cli.Command = (*Cmd)(nil)

// New wraps f, a func(context.Context, T) error where T is a struct
// of go-flags options, into a command.
func New(name, syn string, f interface{}) *Cmd {
	rv := reflect.ValueOf(f)

	if rv.Kind() != reflect.Func {
		panic("must pass a function")
	}

	rt := rv.Type()

	if rt.NumIn() != 2 {
		panic("must provide two arguments only")
	}

	if rt.NumOut() != 1 {
		panic("must return one argument only")
	}

	in := rt.In(1)

	if in.Kind() != reflect.Struct {
		panic("argument must be a struct")
	}

	sv := reflect.New(in)

	parser := flags.NewNamedParser(name, flags.HelpFlag|flags.PassDoubleDash)
	parser.ShortDescription = syn
	parser.LongDescription = syn

	_, err := parser.AddGroup("Application Options", "", sv.Interface())
	if err != nil {
		panic(err)
	}

	return &Cmd{
		syn:    syn,
		name:   name,
		f:      rv,
		opts:   sv,
		parser: parser,
	}
}

func (w *Cmd) ui() cli.Ui {
	if w.UI != nil {
		return w.UI
	}

	return &cli.BasicUi{Writer: os.Stdout, ErrorWriter: os.Stderr}
}

func (w *Cmd) Help() string {
	var buf bytes.Buffer
	w.parser.WriteHelp(&buf)
	return buf.String()
}

func (w *Cmd) Synopsis() string {
	return w.syn
}

func (w *Cmd) Run(args []string) int {
	ui := w.ui()

	_, err := w.parser.ParseArgs(args)
	if err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			ui.Output(fe.Message)
			return 0
		}

		ui.Error(err.Error())
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cancelOnSignal(cancel, cancelSignals...)

	ctx = progress.Open(ctx, os.Stderr)

	rets := w.f.Call([]reflect.Value{reflect.ValueOf(ctx), w.opts.Elem()})

	if err, ok := rets[0].Interface().(error); ok && err != nil {
		if ue, ok := err.(*UsageError); ok {
			ui.Error(ue.Msg)
			ui.Error(w.Help())
			return 2
		}

		if t, ok := w.opts.Interface().(Tracer); ok && t.Trace() {
			ui.Error(fmt.Sprintf("! Error: %+v", err))
		} else {
			ui.Error(fmt.Sprintf("! Error: %v", err))
		}

		return 1
	}

	return 0
}

func cancelOnSignal(cancel func(), signals ...os.Signal) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, signals...)

	go func() {
		for range c {
			cancel()
		}
	}()
}
