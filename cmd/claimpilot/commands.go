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
	"github.com/spf13/cobra"
)

var (
	configPath string
	serverURL  string
	claimFile  string
	outcome    string
	rationale  string
	status     string

	rootCmd = &cobra.Command{
		Use:   "claimpilot",
		Short: "A multi-agent insurance claim processing service",
		Long: `Claimpilot runs submitted insurance claims through a pipeline of
reviewing agents: intake validation, parallel eligibility, clinical,
and fraud review, then adjudication. Claims that cannot be decided
escalate to human review, and resolved escalations are learned as
patterns for future automation.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the claim processing HTTP service",
		Run:   runServe, // Defined in serve.go
	}

	submitCmd = &cobra.Command{
		Use:   "submit",
		Short: "Submit a claim from a JSON file to a running service",
		Run:   runSubmit, // Defined in client.go
	}

	processCmd = &cobra.Command{
		Use:   "process [claim-id]",
		Short: "Run a submitted claim through the review pipeline",
		Args:  cobra.ExactArgs(1),
		Run:   runProcess, // Defined in client.go
	}

	resolveCmd = &cobra.Command{
		Use:   "resolve [claim-id]",
		Short: "Apply a human resolution to an escalated claim",
		Args:  cobra.ExactArgs(1),
		Run:   runResolve, // Defined in client.go
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List claims, optionally filtered by status",
		Run:   runList, // Defined in client.go
	}

	traceCmd = &cobra.Command{
		Use:   "trace [claim-id]",
		Short: "Show the full processing trace for a claim",
		Args:  cobra.ExactArgs(1),
		Run:   runTrace, // Defined in client.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:12410",
		"Base URL of the claimpilot service")

	serveCmd.Flags().StringVar(&configPath, "config", "",
		"Path to a YAML config file (optional)")

	submitCmd.Flags().StringVar(&claimFile, "file", "",
		"Path to a JSON claim submission (required)")
	_ = submitCmd.MarkFlagRequired("file")

	resolveCmd.Flags().StringVar(&outcome, "outcome", "",
		"Resolution outcome: APPROVED or DENIED (required)")
	resolveCmd.Flags().StringVar(&rationale, "rationale", "",
		"Explanation for the resolution (required)")
	_ = resolveCmd.MarkFlagRequired("outcome")
	_ = resolveCmd.MarkFlagRequired("rationale")

	listCmd.Flags().StringVar(&status, "status", "",
		"Filter by claim status (SUBMITTED, APPROVED, DENIED, ...)")

	rootCmd.AddCommand(serveCmd, submitCmd, processCmd, resolveCmd, listCmd, traceCmd)
}
