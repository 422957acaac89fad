package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/radio-control/rcpilot/internal/api"
	"github.com/radio-control/rcpilot/internal/command"
)

const defaultSendTimeout = 10 * time.Second

func sendCommand(c *cli.Context) error {
	line := strings.Join(c.Args(), " ")
	if strings.TrimSpace(line) == "" {
		return cli.NewExitError("send: missing command line, try \"rcpilot send help\"", 2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	result, err := send(ctx, http.DefaultClient, c.String("addr"), c.String("token"), line)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	for _, out := range result.Output {
		fmt.Fprintln(c.App.Writer, out)
	}
	return nil
}

// send posts one command line and decodes the result envelope.
func send(ctx context.Context, client *http.Client, baseURL, token, line string) (*command.Result, error) {
	body, err := json.Marshal(map[string]string{"line": line})
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(baseURL, "/") + api.BasePath + "/commands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var envelope struct {
		api.Response
		Data *command.Result `json:"data,omitempty"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if envelope.Result != "ok" {
		return nil, fmt.Errorf("%s: %s", envelope.Code, envelope.Message)
	}
	if envelope.Data == nil {
		return &command.Result{}, nil
	}
	return envelope.Data, nil
}
