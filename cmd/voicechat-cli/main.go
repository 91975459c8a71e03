/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"
)

const (
	defaultServerURL = "http://localhost:3000"
)

type Turn struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Text  string `json:"text"`
	Audio *struct {
		Handle     string `json:"handle"`
		DurationMS int64  `json:"duration_ms"`
	} `json:"audio,omitempty"`
	Played    bool      `json:"played"`
	CreatedAt time.Time `json:"created_at"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionResponse struct {
	SessionID    string       `json:"session_id"`
	Conversation Conversation `json:"conversation"`
}

type ArchiveEntry struct {
	Index        int          `json:"index"`
	Conversation Conversation `json:"conversation"`
}

type TurnResult struct {
	UserTurn      Turn `json:"user_turn"`
	AssistantTurn Turn `json:"assistant_turn"`
	Notices       []struct {
		Stage   string `json:"stage"`
		Message string `json:"message"`
	} `json:"notices"`
	SilentReply bool   `json:"silent_reply"`
	EventID     string `json:"event_id"`
}

type TurnEvent struct {
	UUID          string    `json:"uuid"`
	SessionID     string    `json:"session_id"`
	Transcription string    `json:"transcription"`
	ResponseText  string    `json:"response_text"`
	Success       bool      `json:"success"`
	ErrorReason   string    `json:"error_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func main() {
	var (
		serverURL = flag.String("server", defaultServerURL, "URL of the voice chat server")
		action    = flag.String("action", "new", "Action to perform: new, send, conversation, new-chat, history, select, end, events")
		sessionID = flag.String("session", "", "Session ID for session actions")
		file      = flag.String("file", "", "WAV recording for the send action")
		index     = flag.Int("index", -1, "Archive index for the select action")
		format    = flag.String("format", "table", "Output format: table, json")
	)
	flag.Parse()

	client := &VoiceChatCLI{
		serverURL: *serverURL,
		format:    *format,
		http:      &http.Client{Timeout: 5 * time.Minute},
	}

	needsSession := map[string]bool{
		"send": true, "conversation": true, "new-chat": true,
		"history": true, "select": true, "end": true,
	}
	if needsSession[*action] && *sessionID == "" {
		fail(fmt.Errorf("session ID required for %s action", *action))
	}

	var err error
	switch *action {
	case "new":
		err = client.newSession()
	case "send":
		if *file == "" {
			fail(fmt.Errorf("recording file required for send action"))
		}
		err = client.sendRecording(*sessionID, *file)
	case "conversation":
		err = client.conversation(*sessionID)
	case "new-chat":
		err = client.newChat(*sessionID)
	case "history":
		err = client.history(*sessionID)
	case "select":
		if *index < 0 {
			fail(fmt.Errorf("archive index required for select action"))
		}
		err = client.selectConversation(*sessionID, *index)
	case "end":
		err = client.endSession(*sessionID)
	case "events":
		err = client.events(*sessionID)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown action %s\n", *action)
		fmt.Fprintf(os.Stderr, "Valid actions: new, send, conversation, new-chat, history, select, end, events\n")
		os.Exit(1)
	}

	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

type VoiceChatCLI struct {
	serverURL string
	format    string
	http      *http.Client
}

// call sends a request and decodes a JSON reply into out when out is non-nil
func (c *VoiceChatCLI) call(method, path, contentType string, body io.Reader, want int, out any) error {
	req, err := http.NewRequest(method, c.serverURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *VoiceChatCLI) printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (c *VoiceChatCLI) newSession() error {
	var resp SessionResponse
	if err := c.call(http.MethodPost, "/api/sessions", "", nil, http.StatusCreated, &resp); err != nil {
		return err
	}
	if c.format == "json" {
		return c.printJSON(resp)
	}

	fmt.Printf("Session: %s\n\n", resp.SessionID)
	return printConversation(resp.Conversation)
}

func (c *VoiceChatCLI) sendRecording(sessionID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read recording: %w", err)
	}

	var result TurnResult
	if err := c.call(http.MethodPost, "/api/sessions/"+sessionID+"/turns", "audio/wav", bytes.NewReader(data), http.StatusOK, &result); err != nil {
		return err
	}
	if c.format == "json" {
		return c.printJSON(result)
	}

	fmt.Printf("You:       %s\n", result.UserTurn.Text)
	fmt.Printf("Assistant: %s\n", result.AssistantTurn.Text)
	for _, n := range result.Notices {
		fmt.Printf("  ⚠️  %s: %s\n", n.Stage, n.Message)
	}
	if result.SilentReply {
		fmt.Println("  (reply audio unavailable, silence played)")
	}
	return nil
}

func (c *VoiceChatCLI) conversation(sessionID string) error {
	var resp SessionResponse
	if err := c.call(http.MethodGet, "/api/sessions/"+sessionID+"/conversation", "", nil, http.StatusOK, &resp); err != nil {
		return err
	}
	if c.format == "json" {
		return c.printJSON(resp)
	}
	return printConversation(resp.Conversation)
}

func (c *VoiceChatCLI) newChat(sessionID string) error {
	var resp struct {
		ArchivedIndex int          `json:"archived_index"`
		Conversation  Conversation `json:"conversation"`
	}
	if err := c.call(http.MethodPost, "/api/sessions/"+sessionID+"/new-chat", "", nil, http.StatusOK, &resp); err != nil {
		return err
	}
	if c.format == "json" {
		return c.printJSON(resp)
	}

	fmt.Printf("Archived previous conversation as #%d\n\n", resp.ArchivedIndex)
	return printConversation(resp.Conversation)
}

func (c *VoiceChatCLI) history(sessionID string) error {
	var entries []ArchiveEntry
	if err := c.call(http.MethodGet, "/api/sessions/"+sessionID+"/archive", "", nil, http.StatusOK, &entries); err != nil {
		return err
	}
	if c.format == "json" {
		return c.printJSON(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tSTARTED\tTURNS\tFIRST QUESTION")
	fmt.Fprintln(w, "-----\t-------\t-----\t--------------")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n",
			e.Index,
			e.Conversation.CreatedAt.Format("2006-01-02 15:04"),
			len(e.Conversation.Turns),
			firstQuestion(e.Conversation),
		)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("error flushing output: %w", err)
	}
	fmt.Printf("\nTotal: %d conversations\n", len(entries))
	return nil
}

func (c *VoiceChatCLI) selectConversation(sessionID string, index int) error {
	var resp SessionResponse
	path := "/api/sessions/" + sessionID + "/archive/" + strconv.Itoa(index) + "/select"
	if err := c.call(http.MethodPost, path, "", nil, http.StatusOK, &resp); err != nil {
		return err
	}
	if c.format == "json" {
		return c.printJSON(resp)
	}
	return printConversation(resp.Conversation)
}

func (c *VoiceChatCLI) endSession(sessionID string) error {
	if err := c.call(http.MethodDelete, "/api/sessions/"+sessionID, "", nil, http.StatusNoContent, nil); err != nil {
		return err
	}
	fmt.Printf("Session %s ended\n", sessionID)
	return nil
}

func (c *VoiceChatCLI) events(sessionID string) error {
	path := "/api/turn-events?page_size=50"
	if sessionID != "" {
		path += "&session_id=" + sessionID
	}

	var resp struct {
		Events []TurnEvent `json:"events"`
		Total  int64       `json:"total"`
	}
	if err := c.call(http.MethodGet, path, "", nil, http.StatusOK, &resp); err != nil {
		return err
	}
	if c.format == "json" {
		return c.printJSON(resp.Events)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSESSION\tOK\tREASON\tTRANSCRIPTION")
	fmt.Fprintln(w, "----\t-------\t--\t------\t-------------")
	for _, e := range resp.Events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"),
			shortID(e.SessionID),
			formatBool(e.Success),
			e.ErrorReason,
			e.Transcription,
		)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("error flushing output: %w", err)
	}
	fmt.Printf("\nTotal: %d events\n", resp.Total)
	return nil
}

func printConversation(conv Conversation) error {
	for _, t := range conv.Turns {
		label := "Assistant"
		if t.Role == "user" {
			label = "You"
		}
		fmt.Printf("%-9s  %s\n", label+":", t.Text)
	}
	return nil
}

func firstQuestion(conv Conversation) string {
	for _, t := range conv.Turns {
		if t.Role == "user" {
			return t.Text
		}
	}
	return "-"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatBool(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}
