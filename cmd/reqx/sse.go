// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gogama/reqx"
	"github.com/gogama/reqx/sse"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func sseCmd(a *app) *cobra.Command {
	var (
		method string
		data   string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "sse <url>",
		Short: "Subscribe to a message stream and print each message",
		Long: `Subscribe to a message stream and print each message.

A GET stream is a text/event-stream; the bearer token travels as a query
parameter. With --method POST the JSON body from --data is sent and each
"data: " line of the response is a message.`,
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body of a chunked stream, or @file")
	cmd.Flags().IntVar(&limit, "max", 0, "stop after this many messages (0 means no limit)")
	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		query, header, err := a.requestParts()
		if err != nil {
			return err
		}
		body, err := jsonBody(data)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			count     int
			streamErr error
		)
		sub, err := a.client.Subscribe(ctx, reqx.Stream{
			Method: method,
			URL:    args[0],
			Query:  query,
			Header: header,
			Body:   body,
			OnOpen: func(resp *http.Response) {
				a.logger.Debug("Stream open", zap.String("contentType", resp.Header.Get("Content-Type")))
			},
			OnMessage: func(m sse.Message) {
				if limit > 0 && count >= limit {
					return
				}
				fmt.Fprintln(a.stdout, m.String())
				count++
				if limit > 0 && count >= limit {
					cancel()
				}
			},
			OnError: func(err error) {
				if ctx.Err() == nil {
					streamErr = err
				}
			},
		})
		if err != nil {
			return err
		}
		<-sub.Done()
		return streamErr
	})
	return cmd
}
