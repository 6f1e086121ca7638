// gosh is a proof of concept shell built on top of package shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/tv-labs/bash-sub005/session"
	"github.com/tv-labs/bash-sub005/shell"
)

var command = flag.String("c", "", "command to be executed")

func main() {
	flag.Parse()
	if err := runAll(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAll() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	sess := session.New(cwd)
	in := shell.New()
	defer in.Close()

	if *command != "" {
		return run(ctx, in, sess, *command)
	}
	if flag.NArg() == 0 {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return runInteractive(ctx, in, sess, os.Stdin, os.Stdout)
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		return run(ctx, in, sess, string(data))
	}
	for _, path := range flag.Args() {
		if err := runPath(ctx, in, sess, path); err != nil {
			return err
		}
	}
	return nil
}

func run(ctx context.Context, in *shell.Interpreter, sess *session.Session, script string) error {
	res, err := in.Run(ctx, script, sess)
	os.Stdout.Write(res.Stdout)
	os.Stderr.Write(res.Stderr)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		os.Exit(int(res.ExitCode))
	}
	return nil
}

func runPath(ctx context.Context, in *shell.Interpreter, sess *session.Session, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return run(ctx, in, sess, string(data))
}

func runInteractive(ctx context.Context, in *shell.Interpreter, sess *session.Session, stdin io.Reader, stdout io.Writer) error {
	fmt.Fprint(stdout, "$ ")
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 256)
	for {
		n, err := stdin.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if idx := strings.IndexByte(string(buf), '\n'); idx >= 0 {
				line := string(buf[:idx])
				buf = buf[idx+1:]
				if strings.TrimSpace(line) != "" {
					if e := run(ctx, in, sess, line); e != nil {
						fmt.Fprintln(os.Stderr, e)
					}
				}
				fmt.Fprint(stdout, "$ ")
			}
		}
		if err != nil {
			return nil
		}
	}
}
