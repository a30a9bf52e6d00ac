// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gogama/reqx"
	"github.com/gogama/reqx/request"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func getCmd(a *app) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "get <url>...",
		Short: "Send GET requests, concurrently when given several URLs",
		Long: `Send GET requests, concurrently when given several URLs.

Requests for the same URL and parameters are duplicates: when one is
issued while another is in flight, the older one is canceled and
reported as superseded.`,
		Args: cobra.MinimumNArgs(1),
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "maximum number of requests in flight")
	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		opts, err := a.options()
		if err != nil {
			return err
		}

		type result struct {
			e   *request.Execution
			err error
		}
		results := make([]result, len(args))
		var g errgroup.Group
		g.SetLimit(concurrency)
		for i, u := range args {
			g.Go(func() error {
				e, err := a.client.Get(ctx, u, opts...)
				results[i] = result{e, err}
				return nil
			})
		}
		_ = g.Wait()

		var firstErr error
		for i, r := range results {
			if len(args) > 1 {
				fmt.Fprintf(a.stdout, "# %s\n", args[i])
			}
			if r.e != nil && r.e.Superseded() {
				fmt.Fprintln(a.stdout, "superseded")
				continue
			}
			if err := a.print(r.e, r.err); err != nil {
				a.logger.Error("Request failed", zap.String("url", args[i]), zap.Error(err))
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		return firstErr
	})
	return cmd
}

func bodyCmd(a *app, method string) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " <url>",
		Short: "Send a " + method + " request with a JSON body",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body, or @file to read it from a file")
	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		opts, err := a.options()
		if err != nil {
			return err
		}
		body, err := jsonBody(data)
		if err != nil {
			return err
		}
		var e *request.Execution
		if method == "PUT" {
			e, err = a.client.Put(ctx, args[0], body, opts...)
		} else {
			e, err = a.client.Post(ctx, args[0], body, opts...)
		}
		return a.print(e, err)
	})
	return cmd
}

func deleteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <url>",
		Short: "Send a DELETE request",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		opts, err := a.options()
		if err != nil {
			return err
		}
		e, err := a.client.Delete(ctx, args[0], opts...)
		return a.print(e, err)
	})
	return cmd
}

// jsonBody returns data, or the contents of the file it names with a
// leading @, as a JSON body. An empty data means no body.
func jsonBody(data string) (interface{}, error) {
	if data == "" {
		return nil, nil
	}
	b := []byte(data)
	if name, ok := strings.CutPrefix(data, "@"); ok {
		var err error
		if b, err = os.ReadFile(name); err != nil {
			return nil, err
		}
	}
	if !json.Valid(b) {
		return nil, errors.New("request body is not valid JSON")
	}
	return json.RawMessage(b), nil
}

// print writes the response body of e, or with --envelope the data
// member of the envelope, indented when it is JSON.
func (a *app) print(e *request.Execution, err error) error {
	var out []byte
	if a.envelope {
		data, err := reqx.Decode[json.RawMessage](e, err)
		if err != nil {
			return err
		}
		out = data
	} else {
		if err != nil {
			return err
		}
		out = e.Body
	}
	var buf bytes.Buffer
	if json.Indent(&buf, out, "", "  ") == nil {
		out = buf.Bytes()
	}
	_, err = fmt.Fprintf(a.stdout, "%s\n", bytes.TrimRight(out, "\n"))
	return err
}
