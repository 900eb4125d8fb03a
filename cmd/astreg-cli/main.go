/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command astreg-cli requests a registry dump from a running astreg daemon
// over NATS and renders it as tables.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/nats-io/nats.go"

	"github.com/carverauto/astreg/pkg/consumers/fwevents"
	"github.com/carverauto/astreg/pkg/models"
)

// Dracula theme colors.
const (
	draculaForeground = "#F8F8F2"
	draculaCyan       = "#8BE9FD"
	draculaGreen      = "#50FA7B"
	draculaOrange     = "#FFB86C"
	draculaPurple     = "#BD93F9"
	draculaRed        = "#FF5555"
	draculaComment    = "#6272A4"
)

type options struct {
	natsURL      string
	credsFile    string
	subject      string
	includePeers bool
	stuck        time.Duration
	timeout      time.Duration
	rawJSON      bool
}

func main() {
	var opts options

	flag.StringVar(&opts.natsURL, "nats", nats.DefaultURL, "NATS server URL")
	flag.StringVar(&opts.credsFile, "creds", "", "NATS credentials file")
	flag.StringVar(&opts.subject, "subject", fwevents.DefaultDiagSubject, "Diagnostics request subject")
	flag.BoolVar(&opts.includePeers, "peers", false, "List every indexed peer")
	flag.DurationVar(&opts.stuck, "stuck", 0, "Also list delete-pending peers held longer than this")
	flag.DurationVar(&opts.timeout, "timeout", 5*time.Second, "Request timeout")
	flag.BoolVar(&opts.rawJSON, "json", false, "Print the raw JSON reply")
	flag.Parse()

	if err := run(&opts); err != nil {
		fmt.Fprintln(os.Stderr, lipgloss.NewStyle().Foreground(lipgloss.Color(draculaRed)).Bold(true).Render(err.Error()))
		os.Exit(1)
	}
}

func run(opts *options) error {
	var natsOpts []nats.Option
	if opts.credsFile != "" {
		natsOpts = append(natsOpts, nats.UserCredentials(opts.credsFile))
	}

	nc, err := nats.Connect(opts.natsURL, natsOpts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	req, err := json.Marshal(fwevents.DiagRequest{
		IncludePeers:   opts.includePeers,
		StuckThreshold: models.Duration(opts.stuck),
	})
	if err != nil {
		return err
	}

	reply, err := nc.Request(opts.subject, req, opts.timeout)
	if err != nil {
		return fmt.Errorf("diagnostics request on %s failed: %w", opts.subject, err)
	}

	if opts.rawJSON {
		_, err = os.Stdout.Write(append(reply.Data, '\n'))
		return err
	}

	dump, err := decodeDump(reply.Data)
	if err != nil {
		return err
	}

	fmt.Println(render(dump))

	return nil
}

func decodeDump(data []byte) (*fwevents.DiagDump, error) {
	var envelope struct {
		Type string            `json:"type"`
		Data fwevents.DiagDump `json:"data"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed diagnostics reply: %w", err)
	}

	if envelope.Type != fwevents.DiagEventType {
		return nil, fmt.Errorf("unexpected reply type %q", envelope.Type)
	}

	return &envelope.Data, nil
}

func render(dump *fwevents.DiagDump) string {
	title := lipgloss.NewStyle().Foreground(lipgloss.Color(draculaPurple)).Bold(true)
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color(draculaComment))

	s := dump.Stats

	out := title.Render("astreg registry") + " " +
		muted.Render(s.GeneratedAt.Format(time.RFC3339)) + "\n" +
		fmt.Sprintf("peers %d/%d   ast %d/%d   ast free pending %d\n\n",
			s.PeersInUse, s.PeerCapacity, s.ASTInUse, s.ASTCapacity, s.ASTFreePending)

	out += scopeTable(s.Scopes).Render() + "\n"

	if len(s.Peers) > 0 {
		out += "\n" + title.Render("peers") + "\n" + peerTable(s.Peers).Render() + "\n"
	}

	if len(dump.Stuck) > 0 {
		out += "\n" + title.Foreground(lipgloss.Color(draculaRed)).Render("stuck peers") + "\n" +
			peerTable(dump.Stuck).Render() + "\n"
	}

	return out
}

func baseTable(headers ...string) *table.Table {
	header := lipgloss.NewStyle().Foreground(lipgloss.Color(draculaCyan)).Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Foreground(lipgloss.Color(draculaForeground)).Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(draculaPurple))).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}

			return cell
		})
}

func scopeTable(scopes []models.ScopeStats) *table.Table {
	t := baseTable("pdev", "active", "delete pending", "ast entries")

	for _, sc := range scopes {
		t.Row(
			strconv.Itoa(int(sc.PdevID)),
			strconv.Itoa(sc.ActivePeers),
			strconv.Itoa(sc.DeletePendingPeers),
			strconv.Itoa(sc.ASTEntries),
		)
	}

	return t
}

func peerTable(peers []models.PeerStats) *table.Table {
	pending := lipgloss.NewStyle().Foreground(lipgloss.Color(draculaOrange))
	active := lipgloss.NewStyle().Foreground(lipgloss.Color(draculaGreen))

	t := baseTable("peer", "mac", "vdev", "pdev", "refs", "state", "pending", "ast")

	for i := range peers {
		p := &peers[i]

		state := active.Render("active")
		if p.DeletePending {
			state = pending.Render("delete pending")
		}

		t.Row(
			strconv.Itoa(int(p.PeerID)),
			p.MAC.String(),
			strconv.Itoa(int(p.VdevID)),
			strconv.Itoa(int(p.PdevID)),
			strconv.Itoa(p.RefCount),
			state,
			(time.Duration(p.PendingForMs) * time.Millisecond).String(),
			strconv.Itoa(p.ASTCount),
		)
	}

	return t
}
