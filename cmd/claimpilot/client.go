// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 3 * time.Minute}

// callService issues one request and returns the decoded JSON body.
func callService(method, path string, body io.Reader) (map[string]any, error) {
	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed (is the service running at %s?): %w", serverURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, raw)
	}
	if resp.StatusCode >= 400 {
		return decoded, fmt.Errorf("service returned %d: %v", resp.StatusCode, decoded["error"])
	}
	return decoded, nil
}

// printJSON pretty-prints a response for the terminal.
func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Error formatting response: %v", err)
	}
	fmt.Println(string(out))
}

func runSubmit(cmd *cobra.Command, args []string) {
	raw, err := os.ReadFile(claimFile)
	if err != nil {
		log.Fatalf("Error reading claim file: %v", err)
	}

	resp, err := callService(http.MethodPost, "/v1/claims", bytes.NewReader(raw))
	if err != nil {
		log.Fatalf("Error submitting claim: %v", err)
	}
	printJSON(resp)
}

func runProcess(cmd *cobra.Command, args []string) {
	claimID := args[0]

	resp, err := callService(http.MethodPost, "/v1/claims/"+claimID+"/process", nil)
	if err != nil {
		log.Fatalf("Error processing claim: %v", err)
	}
	printJSON(resp)
}

func runResolve(cmd *cobra.Command, args []string) {
	claimID := args[0]

	body, err := json.Marshal(map[string]string{
		"outcome":   outcome,
		"rationale": rationale,
	})
	if err != nil {
		log.Fatalf("Error encoding resolution: %v", err)
	}

	resp, err := callService(http.MethodPost, "/v1/claims/"+claimID+"/resolution", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Error resolving claim: %v", err)
	}
	printJSON(resp)
}

func runList(cmd *cobra.Command, args []string) {
	path := "/v1/claims"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	resp, err := callService(http.MethodGet, path, nil)
	if err != nil {
		log.Fatalf("Error listing claims: %v", err)
	}
	printJSON(resp)
}

func runTrace(cmd *cobra.Command, args []string) {
	claimID := args[0]

	resp, err := callService(http.MethodGet, "/v1/claims/"+claimID+"/trace", nil)
	if err != nil {
		log.Fatalf("Error fetching trace: %v", err)
	}
	printJSON(resp)
}
